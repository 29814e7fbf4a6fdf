// Package server provides the TCP front end of the membership service.
//
// Every connection carries exactly one request: the server reads one line,
// records it in the audit log, hands it to a Handler, writes the response
// and closes the connection.
//
// Connections are handled by a fixed pool of workers fed from a bounded
// queue. When every worker is busy and the queue is full the accept loop
// stops accepting until a slot frees up, so concurrency and memory stay
// bounded under load.
//
// The server supports:
//   - Configurable worker count and queue size
//   - Read and write deadlines per connection
//   - Append-only audit of every request
//   - Per-connection correlation ids in the operational log
package server
