package memberlists

import (
	"sync"
	"time"
)

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordConnection records a connection picked up by a worker
	RecordConnection()

	// RecordCommand records a dispatched command with its outcome and duration
	RecordCommand(command, outcome string, duration time.Duration)

	// RecordListSize records the member count of a list (one-based)
	RecordListSize(list, members int)

	// RecordQueueDepth records the number of connections waiting for a worker
	RecordQueueDepth(depth int)

	// RecordError records an error event
	RecordError(errorType string)
}

// ServiceStats counts dispatched commands by command and outcome
type ServiceStats struct {
	mu sync.RWMutex

	StartedAt time.Time

	// CommandsProcessed is keyed by command name
	CommandsProcessed map[string]int64
	// Outcomes is keyed by "command/outcome"
	Outcomes map[string]int64
	Errors   map[string]int64
}

func newServiceStats() *ServiceStats {
	return &ServiceStats{
		CommandsProcessed: make(map[string]int64),
		Outcomes:          make(map[string]int64),
		Errors:            make(map[string]int64),
	}
}

// GetCommandCount returns the count for a specific command (thread-safe)
func (s *ServiceStats) GetCommandCount(cmd string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CommandsProcessed[cmd]
}

// GetOutcomeCount returns how often cmd ended with outcome (thread-safe)
func (s *ServiceStats) GetOutcomeCount(cmd, outcome string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Outcomes[cmd+"/"+outcome]
}

// GetErrorCount returns the count for an error type (thread-safe)
func (s *ServiceStats) GetErrorCount(errorType string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Errors[errorType]
}

// GetStartedAt returns when the service started listening (thread-safe)
func (s *ServiceStats) GetStartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StartedAt
}

func (s *ServiceStats) snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	commands := make(map[string]int64, len(s.CommandsProcessed))
	for k, v := range s.CommandsProcessed {
		commands[k] = v
	}
	outcomes := make(map[string]int64, len(s.Outcomes))
	for k, v := range s.Outcomes {
		outcomes[k] = v
	}
	errs := make(map[string]int64, len(s.Errors))
	for k, v := range s.Errors {
		errs[k] = v
	}
	return map[string]interface{}{
		"started_at": s.StartedAt,
		"commands":   commands,
		"outcomes":   outcomes,
		"errors":     errs,
	}
}
