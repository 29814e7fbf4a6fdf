package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/raniellyferreira/memberlists/internal/logutil"
	"pkt.systems/pslog"
)

const (
	listFilePrefix = "list-"
	listFileSuffix = ".txt"
	maxNameSize    = 64 * 1024
)

// ListFileName returns the file name used for the zero-based list index
func ListFileName(list int) string {
	return fmt.Sprintf("%s%d%s", listFilePrefix, list, listFileSuffix)
}

// fileShard guards the record of one list
type fileShard struct {
	mu   sync.RWMutex
	path string
}

// FileStorage keeps one flat file per list, one member name per line.
// The file is the only source of truth; nothing is cached in memory.
type FileStorage struct {
	dir      string
	capacity int
	shards   []fileShard
	fsync    bool
	logger   pslog.Logger
	closed   atomic.Bool
}

// FileOption configures a FileStorage instance
type FileOption func(*FileStorage)

// WithFsync makes every append call fsync before returning
func WithFsync(enabled bool) FileOption {
	return func(s *FileStorage) {
		s.fsync = enabled
	}
}

// WithFileLogger sets the logger used for storage failures
func WithFileLogger(logger pslog.Logger) FileOption {
	return func(s *FileStorage) {
		s.logger = logger
	}
}

// NewFile creates a file-backed store rooted at dir. Existing list files are
// left untouched until Reset is called.
func NewFile(dir string, lists, capacity int, opts ...FileOption) (*FileStorage, error) {
	if err := (Limits{Lists: lists, Capacity: capacity}).Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: prepare directory %q: %w", dir, err)
	}
	s := &FileStorage{
		dir:      dir,
		capacity: capacity,
		shards:   make([]fileShard, lists),
	}
	for i := range s.shards {
		s.shards[i].path = filepath.Join(dir, ListFileName(i))
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logutil.WithSubsystem(s.logger, "storage.disk")
	return s, nil
}

// Dir returns the directory holding the list files
func (s *FileStorage) Dir() string {
	return s.dir
}

// Lists returns the number of lists
func (s *FileStorage) Lists() int {
	return len(s.shards)
}

// Capacity returns the maximum number of members per list
func (s *FileStorage) Capacity() int {
	return s.capacity
}

func (s *FileStorage) shard(list int) (*fileShard, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if list < 0 || list >= len(s.shards) {
		return nil, ErrNoSuchList
	}
	return &s.shards[list], nil
}

// Count returns the number of lines in the list file
func (s *FileStorage) Count(list int) (int, error) {
	sh, err := s.shard(list)
	if err != nil {
		return 0, err
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	n := 0
	if err := scanLines(sh.path, func(string) { n++ }); err != nil {
		return 0, s.fail("count", list, sh.path, err)
	}
	return n, nil
}

// Members returns every line of the list file in order
func (s *FileStorage) Members(list int) ([]string, error) {
	sh, err := s.shard(list)
	if err != nil {
		return nil, err
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	members := []string{}
	if err := scanLines(sh.path, func(line string) { members = append(members, line) }); err != nil {
		return nil, s.fail("members", list, sh.path, err)
	}
	return members, nil
}

// Append writes name as a new line unless the list is full. The count and the
// write happen under the list's write lock.
func (s *FileStorage) Append(list int, name string) (int, error) {
	if strings.ContainsAny(name, "\r\n") || len(name) > maxNameSize {
		return 0, ErrInvalidName
	}
	sh, err := s.shard(list)
	if err != nil {
		return 0, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()

	n := 0
	if err := scanLines(sh.path, func(string) { n++ }); err != nil {
		return 0, s.fail("append", list, sh.path, err)
	}
	if n >= s.capacity {
		return n, ErrListFull
	}

	f, err := os.OpenFile(sh.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return n, s.fail("append", list, sh.path, err)
	}
	if _, err := f.WriteString(name + "\n"); err != nil {
		f.Close()
		return n, s.fail("append", list, sh.path, err)
	}
	if s.fsync {
		if err := f.Sync(); err != nil {
			f.Close()
			return n, s.fail("append", list, sh.path, err)
		}
	}
	if err := f.Close(); err != nil {
		return n, s.fail("append", list, sh.path, err)
	}
	return n + 1, nil
}

// Reset removes every list file in the directory, including files left by a
// run with more lists, and creates one empty file per list.
func (s *FileStorage) Reset() error {
	if s.closed.Load() {
		return ErrClosed
	}
	for i := range s.shards {
		s.shards[i].mu.Lock()
	}
	defer func() {
		for i := range s.shards {
			s.shards[i].mu.Unlock()
		}
	}()

	stale, err := filepath.Glob(filepath.Join(s.dir, listFilePrefix+"*"+listFileSuffix))
	if err != nil {
		return fmt.Errorf("storage: scan %q: %w", s.dir, err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("storage: remove %q: %w", path, err)
		}
	}
	for i := range s.shards {
		if err := os.WriteFile(s.shards[i].path, nil, 0o644); err != nil {
			return s.fail("reset", i, s.shards[i].path, err)
		}
	}
	s.logger.Debug("storage.disk.reset", "dir", s.dir, "lists", len(s.shards), "removed", len(stale))
	return nil
}

// Close releases the store; later calls fail with ErrClosed
func (s *FileStorage) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *FileStorage) fail(op string, list int, path string, err error) error {
	s.logger.Error("storage.disk.io_error", "op", op, "list", list, "path", path, "error", err)
	return &StorageError{Op: op, List: list, Path: path, Err: err}
}

func scanLines(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 4096), maxNameSize+1)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}
