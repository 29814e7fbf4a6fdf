package protocol

import "fmt"

// MsgInvalid is returned for anything that does not parse as a known command
const MsgInvalid = "Error: Could not process input."

// Summary is the first line of the totals response
func Summary(lists, capacity int) string {
	return fmt.Sprintf("There are %d list(s), each with a maximum size of %d.", lists, capacity)
}

// ListCount is one per-list line of the totals response
func ListCount(n, count int) string {
	return fmt.Sprintf("List %d has %d member(s).", n, count)
}

// NoMembers is the list response for an empty list
func NoMembers(n int) string {
	return fmt.Sprintf("There are no members in list %d.", n)
}

// NoSuchList is the failure for a list number outside [1, lists]
func NoSuchList(n int) string {
	return fmt.Sprintf("Failed. There is no list %d.", n)
}

// ListFull is the failure for a join to a list at capacity
func ListFull(n int) string {
	return fmt.Sprintf("Failed. List %d is full.", n)
}

// Joined is the success response for join
func Joined(name string, n int) string {
	return fmt.Sprintf("Success. \"%s\" joined list %d.", name, n)
}

// NotAdmitted is the failure for a join refused by the admission policy
func NotAdmitted(name string, n int) string {
	return fmt.Sprintf("Failed. \"%s\" was not admitted to list %d.", name, n)
}

// StorageFailure is returned when the record of list n could not be accessed
func StorageFailure(n int) string {
	return fmt.Sprintf("Error: Could not access list %d.", n)
}
