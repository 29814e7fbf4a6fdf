package memberlists

import (
	"time"

	"github.com/raniellyferreira/memberlists/server"
)

// metricsAdapter feeds server measurements into ServiceStats and, when
// configured, the user's MetricsCollector
type metricsAdapter struct {
	stats   *ServiceStats
	metrics MetricsCollector
}

var _ server.Metrics = (*metricsAdapter)(nil)

func (ma *metricsAdapter) RecordConnection() {
	if ma.metrics != nil {
		ma.metrics.RecordConnection()
	}
}

func (ma *metricsAdapter) RecordCommand(command, outcome string, duration time.Duration) {
	ma.stats.mu.Lock()
	ma.stats.CommandsProcessed[command]++
	ma.stats.Outcomes[command+"/"+outcome]++
	ma.stats.mu.Unlock()

	if ma.metrics != nil {
		ma.metrics.RecordCommand(command, outcome, duration)
	}
}

func (ma *metricsAdapter) RecordListSize(list, members int) {
	if ma.metrics != nil {
		ma.metrics.RecordListSize(list, members)
	}
}

func (ma *metricsAdapter) RecordQueueDepth(depth int) {
	if ma.metrics != nil {
		ma.metrics.RecordQueueDepth(depth)
	}
}

func (ma *metricsAdapter) RecordError(errorType string) {
	ma.stats.mu.Lock()
	ma.stats.Errors[errorType]++
	ma.stats.mu.Unlock()

	if ma.metrics != nil {
		ma.metrics.RecordError(errorType)
	}
}
