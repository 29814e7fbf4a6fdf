// Package audit records every handled request in an append-only log.
//
// Each entry is one line of the form
//
//	2006-01-02|15:04:05|client|request
//
// with date and time in local time. The log file is created when missing and
// never truncated.
package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultFileName is the log file name used inside a data directory
	DefaultFileName = "log.txt"

	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
	separator  = "|"
)

// ErrClosed is returned by Record after Close
var ErrClosed = errors.New("audit: log closed")

// Entry is one handled request
type Entry struct {
	Time    time.Time
	Client  string
	Request string
}

// NewEntry captures the current local time for a request
func NewEntry(client, request string) Entry {
	return Entry{Time: time.Now(), Client: client, Request: request}
}

// Format renders the entry as a single terminated line. Line breaks inside
// the request are replaced so an entry never spans lines.
func (e Entry) Format() string {
	t := e.Time.Local()
	var b strings.Builder
	b.Grow(len(dateLayout) + len(timeLayout) + len(e.Client) + len(e.Request) + 4)
	b.WriteString(t.Format(dateLayout))
	b.WriteString(separator)
	b.WriteString(t.Format(timeLayout))
	b.WriteString(separator)
	b.WriteString(e.Client)
	b.WriteString(separator)
	b.WriteString(strings.NewReplacer("\r", " ", "\n", " ").Replace(e.Request))
	b.WriteString("\n")
	return b.String()
}

// Log is an append-only sink for entries
type Log interface {
	Record(Entry) error
	Close() error
}

// FileLog appends entries to a file, one write per entry
type FileLog struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// Open opens or creates the log at path for appending
func Open(path string) (*FileLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: prepare directory %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", path, err)
	}
	return &FileLog{f: f, path: path}, nil
}

// Path returns the file path of the log
func (l *FileLog) Path() string {
	return l.path
}

// Size returns the current size of the log file in bytes
func (l *FileLog) Size() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	st, err := l.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("audit: stat %q: %w", l.path, err)
	}
	return st.Size(), nil
}

// Record appends e as a single write
func (l *FileLog) Record(e Entry) error {
	line := e.Format()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if _, err := l.f.WriteString(line); err != nil {
		return fmt.Errorf("audit: write %q: %w", l.path, err)
	}
	return nil
}

// Close closes the underlying file
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}

// Discard drops every entry
type Discard struct{}

func (Discard) Record(Entry) error { return nil }
func (Discard) Close() error       { return nil }

var (
	_ Log = (*FileLog)(nil)
	_ Log = Discard{}
)
