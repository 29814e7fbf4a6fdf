package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrListFull indicates the list already holds Capacity() members
	ErrListFull = errors.New("list is full")

	// ErrNoSuchList indicates a list index outside [0, Lists())
	ErrNoSuchList = errors.New("no such list")

	// ErrInvalidName indicates a member name that cannot be stored as one record
	ErrInvalidName = errors.New("invalid member name")

	// ErrInvalidLimits indicates a non-positive list count or capacity
	ErrInvalidLimits = errors.New("list count and capacity must be positive")

	// ErrClosed indicates the storage has been closed
	ErrClosed = errors.New("storage is closed")
)

// StorageError represents a failure to read or write the record of one list
type StorageError struct {
	Op   string // "count", "members", "append", "reset"
	List int
	Path string
	Err  error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage: %s list %d (%s): %v", e.Op, e.List, e.Path, e.Err)
	}
	return fmt.Sprintf("storage: %s list %d: %v", e.Op, e.List, e.Err)
}

// Unwrap returns the wrapped error
func (e *StorageError) Unwrap() error {
	return e.Err
}
