package storage

// Storage defines the interface for membership list storage.
//
// Lists are addressed by a zero-based index in [0, Lists()). Every list holds
// at most Capacity() members. Implementations must serialize appends per list
// so that the capacity check and the write happen as one step, and must not
// make operations on one list wait on another.
type Storage interface {
	// Layout
	Lists() int
	Capacity() int

	// Read operations
	Count(list int) (int, error)
	Members(list int) ([]string, error)

	// Append adds name to the end of list and returns the new member count.
	// It returns ErrListFull without mutating the list when the list is at
	// capacity.
	Append(list int, name string) (int, error)

	// Reset discards every member of every list.
	Reset() error

	// Shutdown
	Close() error
}

// Limits describes the fixed layout of a store.
type Limits struct {
	Lists    int
	Capacity int
}

// Validate reports whether both limits are positive.
func (l Limits) Validate() error {
	if l.Lists < 1 || l.Capacity < 1 {
		return ErrInvalidLimits
	}
	return nil
}

// Totals returns the member count of every list, in list order.
// It stops at the first list that cannot be read.
func Totals(s Storage) ([]int, error) {
	counts := make([]int, s.Lists())
	for i := range counts {
		n, err := s.Count(i)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}
	return counts, nil
}
