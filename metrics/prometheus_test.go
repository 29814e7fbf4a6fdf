package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Records(t *testing.T) {
	p := NewPrometheus()

	p.RecordConnection()
	p.RecordConnection()
	p.RecordCommand("join", "ok", 2*time.Millisecond)
	p.RecordCommand("join", "full", time.Millisecond)
	p.RecordCommand("join", "ok", time.Millisecond)
	p.RecordListSize(1, 3)
	p.RecordListSize(1, 4)
	p.RecordQueueDepth(7)
	p.RecordError("audit")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.commands.WithLabelValues("join", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.commands.WithLabelValues("join", "full")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.listSize.WithLabelValues("1")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.errors.WithLabelValues("audit")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.duration))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.RecordCommand("totals", "ok", time.Millisecond)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `memberlists_commands_total{command="totals",outcome="ok"} 1`), text)
	assert.True(t, strings.Contains(text, "memberlists_command_duration_seconds_bucket"))
	assert.True(t, strings.Contains(text, "go_goroutines"))
}
