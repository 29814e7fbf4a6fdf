// Package storage provides the list store behind the membership server.
//
// A store holds a fixed number of lists, each an ordered sequence of member
// names bounded by a capacity shared by all lists. Two implementations are
// provided: FileStorage, which keeps one flat file per list with one name per
// line, and MemoryStorage, which keeps everything in process.
//
// Basic usage:
//
//	store, err := storage.NewFile("./data", 2, 10)
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = store.Reset()
//	n, err := store.Append(0, "Alice")
//	members, _ := store.Members(0)
//
// The package guarantees:
//   - One writer at a time per list, readers never see a partial append
//   - No lock shared between lists
//   - A list never holds more than Capacity() members
//   - An I/O failure on one list is reported for that list only
package storage
