package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryFormat(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 2, 0, time.Local)

	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name:  "join",
			entry: Entry{Time: ts, Client: "127.0.0.1", Request: "join 1 Bob Smith"},
			want:  "2024-03-09|07:05:02|127.0.0.1|join 1 Bob Smith\n",
		},
		{
			name:  "empty request",
			entry: Entry{Time: ts, Client: "::1", Request: ""},
			want:  "2024-03-09|07:05:02|::1|\n",
		},
		{
			name:  "embedded newline",
			entry: Entry{Time: ts, Client: "10.0.0.1", Request: "list 1\r\nlist 2"},
			want:  "2024-03-09|07:05:02|10.0.0.1|list 1  list 2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Format(); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileLog_AppendsAndNeverTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Record(NewEntry("127.0.0.1", "totals")))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Record(NewEntry("127.0.0.1", "list 1")))
	size, err := l.Size()
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "previous run", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "|127.0.0.1|totals"))
	assert.True(t, strings.HasSuffix(lines[2], "|127.0.0.1|list 1"))
}

func TestFileLog_CreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", DefaultFileName)
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, path, l.Path())
}

func TestFileLog_ConcurrentEntriesDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	l, err := Open(path)
	require.NoError(t, err)

	const writers, perWriter = 16, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				req := fmt.Sprintf("join %d %s", w, strings.Repeat("x", 200))
				if err := l.Record(NewEntry("10.0.0.1", req)); err != nil {
					t.Errorf("record: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, writers*perWriter)
	for _, line := range lines {
		parts := strings.Split(line, "|")
		require.Len(t, parts, 4, "malformed line %q", line)
		assert.True(t, strings.HasSuffix(parts[3], strings.Repeat("x", 200)))
	}
}

func TestFileLog_RecordAfterClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.Record(NewEntry("x", "totals")), ErrClosed)
}
