package storage_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/memberlists/storage"
)

type storeFactory func(t *testing.T, lists, capacity int) storage.Storage

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, lists, capacity int) storage.Storage {
			s, err := storage.NewMemory(lists, capacity)
			require.NoError(t, err)
			return s
		},
		"file": func(t *testing.T, lists, capacity int) storage.Storage {
			s, err := storage.NewFile(t.TempDir(), lists, capacity)
			require.NoError(t, err)
			require.NoError(t, s.Reset())
			return s
		},
	}
}

func TestStorage_AppendAndMembers(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 2, 3)
			defer s.Close()

			assert.Equal(t, 2, s.Lists())
			assert.Equal(t, 3, s.Capacity())

			members, err := s.Members(0)
			require.NoError(t, err)
			assert.Empty(t, members)

			for i, who := range []string{"Alice", "Bob Smith", "Carol"} {
				n, err := s.Append(0, who)
				require.NoError(t, err)
				assert.Equal(t, i+1, n)
			}

			members, err = s.Members(0)
			require.NoError(t, err)
			assert.Equal(t, []string{"Alice", "Bob Smith", "Carol"}, members)

			count, err := s.Count(1)
			require.NoError(t, err)
			assert.Zero(t, count, "appends to list 0 must not touch list 1")
		})
	}
}

func TestStorage_Full(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 1, 2)
			defer s.Close()

			_, err := s.Append(0, "Alice")
			require.NoError(t, err)
			_, err = s.Append(0, "Bob")
			require.NoError(t, err)

			n, err := s.Append(0, "Carol")
			assert.ErrorIs(t, err, storage.ErrListFull)
			assert.Equal(t, 2, n)

			members, err := s.Members(0)
			require.NoError(t, err)
			assert.Equal(t, []string{"Alice", "Bob"}, members)
		})
	}
}

func TestStorage_OutOfRange(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 2, 2)
			defer s.Close()

			for _, list := range []int{-1, 2, 100} {
				_, err := s.Count(list)
				assert.ErrorIs(t, err, storage.ErrNoSuchList)
				_, err = s.Members(list)
				assert.ErrorIs(t, err, storage.ErrNoSuchList)
				_, err = s.Append(list, "x")
				assert.ErrorIs(t, err, storage.ErrNoSuchList)
			}
		})
	}
}

func TestStorage_InvalidName(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 1, 5)
			defer s.Close()

			_, err := s.Append(0, "two\nlines")
			assert.ErrorIs(t, err, storage.ErrInvalidName)

			count, err := s.Count(0)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestStorage_Reset(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 2, 2)
			defer s.Close()

			_, err := s.Append(0, "Alice")
			require.NoError(t, err)
			_, err = s.Append(1, "Bob")
			require.NoError(t, err)

			require.NoError(t, s.Reset())

			counts, err := storage.Totals(s)
			require.NoError(t, err)
			assert.Equal(t, []int{0, 0}, counts)
		})
	}
}

func TestStorage_Closed(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 1, 1)
			require.NoError(t, s.Close())

			_, err := s.Count(0)
			assert.ErrorIs(t, err, storage.ErrClosed)
		})
	}
}

// K concurrent joins to the same list with capacity M < K: exactly M succeed.
func TestStorage_ConcurrentAppendRespectsCapacity(t *testing.T) {
	const (
		capacity = 7
		joiners  = 64
	)
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 2, capacity)
			defer s.Close()

			var ok, full atomic.Int64
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < joiners; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, err := s.Append(0, fmt.Sprintf("member-%d", i))
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, storage.ErrListFull):
						full.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int64(capacity), ok.Load())
			assert.Equal(t, int64(joiners-capacity), full.Load())

			count, err := s.Count(0)
			require.NoError(t, err)
			assert.Equal(t, capacity, count)
		})
	}
}

func TestFileStorage_ResetRemovesStaleLists(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, storage.ListFileName(i)), []byte("old\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log.txt"), []byte("keep\n"), 0o644))

	s, err := storage.NewFile(dir, 2, 5)
	require.NoError(t, err)
	require.NoError(t, s.Reset())

	for i := 0; i < 2; i++ {
		data, err := os.ReadFile(filepath.Join(dir, storage.ListFileName(i)))
		require.NoError(t, err)
		assert.Empty(t, data)
	}
	for i := 2; i < 4; i++ {
		_, err := os.Stat(filepath.Join(dir, storage.ListFileName(i)))
		assert.True(t, os.IsNotExist(err), "list file %d should be removed", i)
	}
	data, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep\n", string(data))
}

func TestFileStorage_OnDiskFormat(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewFile(dir, 1, 5, storage.WithFsync(true))
	require.NoError(t, err)
	require.NoError(t, s.Reset())

	_, err = s.Append(0, "Alice")
	require.NoError(t, err)
	_, err = s.Append(0, "Bob Smith")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "list-0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Alice\nBob Smith\n", string(data))
}

func TestFileStorage_FailureIsolatedToOneList(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewFile(dir, 2, 5)
	require.NoError(t, err)
	require.NoError(t, s.Reset())

	require.NoError(t, os.Remove(filepath.Join(dir, storage.ListFileName(0))))

	_, err = s.Count(0)
	var serr *storage.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "count", serr.Op)
	assert.Equal(t, 0, serr.List)

	_, err = s.Append(0, "Alice")
	require.ErrorAs(t, err, &serr)

	n, err := s.Append(1, "Bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewStorage_InvalidLimits(t *testing.T) {
	_, err := storage.NewMemory(0, 1)
	assert.ErrorIs(t, err, storage.ErrInvalidLimits)
	_, err = storage.NewFile(t.TempDir(), 1, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidLimits)
}
