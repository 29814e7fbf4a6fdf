// Package protocol implements the line-oriented membership protocol.
//
// A client sends exactly one newline-terminated request per connection and
// reads the response until the server closes the connection. Three requests
// are understood:
//
//	totals
//	list <n>
//	join <n> <name with optional spaces>
//
// Anything else, including a list number that is not an integer, gets the
// generic "Error: Could not process input." response.
//
// Basic usage:
//
//	d := protocol.NewDispatcher(store, nil)
//	line, _ := protocol.NewReader(conn).ReadRequest()
//	res := d.Handle(ctx, line)
//	_ = protocol.WriteResponse(conn, res.Text)
//
// List numbers on the wire are one-based; the store is addressed with
// zero-based indexes.
package protocol
