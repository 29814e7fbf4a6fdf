package protocol

import (
	"strconv"
	"strings"
)

// Kind identifies the command carried by a request line
type Kind int

const (
	KindInvalid Kind = iota
	KindTotals
	KindList
	KindJoin
)

// String returns the lower-case command name
func (k Kind) String() string {
	switch k {
	case KindTotals:
		return "totals"
	case KindList:
		return "list"
	case KindJoin:
		return "join"
	default:
		return "invalid"
	}
}

// Command is a parsed request line
type Command struct {
	Kind Kind
	// List is the list number as sent by the client (one-based)
	List int
	// Name is the member name for join, inner whitespace collapsed to single spaces
	Name string
}

// Totals returns the totals command
func Totals() Command {
	return Command{Kind: KindTotals}
}

// List returns the list command for list number n
func List(n int) Command {
	return Command{Kind: KindList, List: n}
}

// Join returns the join command for list number n
func Join(n int, name string) Command {
	return Command{Kind: KindJoin, List: n, Name: name}
}

// Invalid returns a command that always yields the generic error response
func Invalid() Command {
	return Command{Kind: KindInvalid}
}

// ParseCommand turns one request line into a Command.
//
// Dispatch is on the first whitespace-delimited token. Tokens after the ones
// a command needs are ignored for totals and list. For join everything after
// the list number is the name. A missing or non-integer list number, or a
// join without a name, yields an Invalid command.
func ParseCommand(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Invalid()
	}

	switch fields[0] {
	case "totals":
		return Totals()

	case "list":
		if len(fields) < 2 {
			return Invalid()
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return Invalid()
		}
		return List(n)

	case "join":
		if len(fields) < 3 {
			return Invalid()
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return Invalid()
		}
		return Join(n, strings.Join(fields[2:], " "))

	default:
		return Invalid()
	}
}

// String renders the command back into request-line form
func (c Command) String() string {
	switch c.Kind {
	case KindTotals:
		return "totals"
	case KindList:
		return "list " + strconv.Itoa(c.List)
	case KindJoin:
		return "join " + strconv.Itoa(c.List) + " " + c.Name
	default:
		return ""
	}
}
