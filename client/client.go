// Package client talks to a membership server.
//
// BuildRequest validates command line style arguments before anything is
// sent, so malformed requests are caught locally. Client sends one request
// per connection and returns the full response text.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the address the server listens on by default
	DefaultAddr = "localhost:9246"

	// DefaultTimeout bounds a whole request
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 16 << 20
)

// Usage lines for each command
const (
	UsageTotals = "totals"
	UsageList   = "list <int::list number>"
	UsageJoin   = "join <int::list number> <String::name>"
)

// ErrResponseTooLarge is returned when a response exceeds the read limit
var ErrResponseTooLarge = errors.New("client: response too large")

// UsageError reports arguments that do not form a valid request
type UsageError struct {
	// Command is empty when the command itself is unknown or missing
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	if e.Command == "" {
		return "Error: Usage is <command> <args>"
	}
	return fmt.Sprintf("Error: Usage for '%s' is %s", e.Command, e.Usage)
}

// Usages lists every accepted command form
func Usages() []string {
	return []string{UsageTotals, UsageList, UsageJoin}
}

// BuildRequest checks args and joins them into a request line. A join
// name may be given as several arguments; they are joined with single
// spaces.
func BuildRequest(args []string) (string, error) {
	if len(args) == 0 {
		return "", &UsageError{}
	}

	switch args[0] {
	case "totals":
		if len(args) != 1 {
			return "", &UsageError{Command: "totals", Usage: UsageTotals}
		}
		return "totals", nil

	case "list":
		if len(args) != 2 {
			return "", &UsageError{Command: "list", Usage: UsageList}
		}
		if _, err := strconv.Atoi(args[1]); err != nil {
			return "", &UsageError{Command: "list", Usage: UsageList}
		}
		return "list " + args[1], nil

	case "join":
		if len(args) < 3 {
			return "", &UsageError{Command: "join", Usage: UsageJoin}
		}
		if _, err := strconv.Atoi(args[1]); err != nil {
			return "", &UsageError{Command: "join", Usage: UsageJoin}
		}
		name := strings.Join(strings.Fields(strings.Join(args[2:], " ")), " ")
		if name == "" {
			return "", &UsageError{Command: "join", Usage: UsageJoin}
		}
		return "join " + args[1] + " " + name, nil

	default:
		return "", &UsageError{}
	}
}

// Client sends requests to one server
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// Option configures a Client
type Option func(*Client)

// WithTimeout bounds each request; zero relies on the context alone
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client for the server at addr
func New(addr string, opts ...Option) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	c := &Client{addr: addr, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the server address
func (c *Client) Addr() string {
	return c.addr
}

// Totals requests the totals summary
func (c *Client) Totals(ctx context.Context) (string, error) {
	return c.Do(ctx, "totals")
}

// List requests the members of list n
func (c *Client) List(ctx context.Context, n int) (string, error) {
	return c.Do(ctx, "list "+strconv.Itoa(n))
}

// Join asks for name to join list n
func (c *Client) Join(ctx context.Context, n int, name string) (string, error) {
	return c.Do(ctx, "join "+strconv.Itoa(n)+" "+name)
}

// Do sends request on a fresh connection and returns the response without
// its final line terminator
func (c *Client) Do(ctx context.Context, request string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", fmt.Errorf("client: dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := io.WriteString(conn, request+"\n"); err != nil {
		return "", fmt.Errorf("client: send: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(conn, maxResponseSize+1))
	if err != nil {
		return "", fmt.Errorf("client: read: %w", err)
	}
	if len(data) > maxResponseSize {
		return "", ErrResponseTooLarge
	}
	return strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r"), nil
}

// Do sends one request to addr with a default client
func Do(ctx context.Context, addr, request string) (string, error) {
	return New(addr).Do(ctx, request)
}
