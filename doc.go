// Package memberlists provides a networked membership list service.
//
// The service keeps a fixed number of lists, each holding at most the same
// number of member names, and serves them over a one-request-per-connection
// line protocol. Clients can ask for totals, read a list, or join one.
//
// Basic usage:
//
//	svc, err := memberlists.New(
//		memberlists.WithLists(2),
//		memberlists.WithCapacity(10),
//		memberlists.WithAddr(":9246"),
//		memberlists.WithDataDir("./data"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	if err := svc.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// Talking to it:
//
//	$ printf 'join 1 Bob Smith\n' | nc localhost 9246
//	Success. "Bob Smith" joined list 1.
//
// The service supports:
//
//   - One flat file per list, or an in-memory store
//   - Joins serialized per list so capacity is never exceeded
//   - A bounded worker pool with a bounded accept queue
//   - An append-only audit log of every request
//   - Optional Lua admission rules, reloaded on change
//   - Prometheus metrics through the MetricsCollector interface
//
// For a runnable server see cmd/memberlistd, and examples/ for embedding.
package memberlists
