package memberlists

import (
	"time"

	"pkt.systems/pslog"

	"github.com/raniellyferreira/memberlists/server"
)

// DefaultPort is the TCP port the service listens on by default
const DefaultPort = 9246

// config holds the configuration for a Service
type config struct {
	// List layout
	lists    int
	capacity int

	// Listener settings
	addr         string
	workers      int
	queueSize    int
	readTimeout  time.Duration
	writeTimeout time.Duration

	// Persistence
	dataDir     string
	memoryStore bool
	fsync       bool
	auditPath   string
	auditOff    bool

	// Join admission
	scriptPath    string
	scriptWatch   bool
	scriptTimeout time.Duration

	// Observability
	logger  pslog.Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults. The list
// layout has no default and must be set.
func defaultConfig() *config {
	return &config{
		addr:        ":9246",
		workers:     server.DefaultWorkers,
		queueSize:   server.DefaultQueueSize,
		readTimeout: server.DefaultReadTimeout,
		dataDir:     ".",
	}
}

// validate checks the settings that options cannot check on their own
func (c *config) validate() error {
	if c.lists < 1 {
		return &ConfigError{Field: "lists", Value: c.lists}
	}
	if c.capacity < 1 {
		return &ConfigError{Field: "capacity", Value: c.capacity}
	}
	if c.scriptWatch && c.scriptPath == "" {
		return &ConfigError{Field: "script-watch", Value: "no script configured"}
	}
	return nil
}

// Option represents a configuration option for a Service
type Option func(*config) error

// WithLists sets the number of lists
//
// Example:
//
//	WithLists(2)
func WithLists(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return &ConfigError{Field: "lists", Value: n}
		}
		c.lists = n
		return nil
	}
}

// WithCapacity sets the maximum number of members of every list
//
// Example:
//
//	WithCapacity(10)
func WithCapacity(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return &ConfigError{Field: "capacity", Value: n}
		}
		c.capacity = n
		return nil
	}
}

// WithAddr sets the listen address
//
// Example:
//
//	WithAddr(":9246")
//	WithAddr("127.0.0.1:0")
func WithAddr(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return &ConfigError{Field: "addr", Value: addr}
		}
		c.addr = addr
		return nil
	}
}

// WithWorkers sets how many connections are handled at the same time
func WithWorkers(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return &ConfigError{Field: "workers", Value: n}
		}
		c.workers = n
		return nil
	}
}

// WithQueueSize sets how many accepted connections may wait for a worker.
// Zero hands connections straight to an idle worker.
func WithQueueSize(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return &ConfigError{Field: "queue-size", Value: n}
		}
		c.queueSize = n
		return nil
	}
}

// WithReadTimeout bounds the wait for a request line; zero waits forever
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return &ConfigError{Field: "read-timeout", Value: d}
		}
		c.readTimeout = d
		return nil
	}
}

// WithWriteTimeout bounds the response write; zero waits forever
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return &ConfigError{Field: "write-timeout", Value: d}
		}
		c.writeTimeout = d
		return nil
	}
}

// WithDataDir sets the directory holding the list files and, unless
// WithAuditLog says otherwise, the audit log
func WithDataDir(dir string) Option {
	return func(c *config) error {
		if dir == "" {
			return &ConfigError{Field: "data-dir", Value: dir}
		}
		c.dataDir = dir
		return nil
	}
}

// WithMemoryStore keeps lists in memory instead of list files
func WithMemoryStore() Option {
	return func(c *config) error {
		c.memoryStore = true
		return nil
	}
}

// WithSync makes every join fsync its list file
func WithSync(enabled bool) Option {
	return func(c *config) error {
		c.fsync = enabled
		return nil
	}
}

// WithAuditLog sets the audit log path
//
// Example:
//
//	WithAuditLog("/var/log/memberlists/log.txt")
func WithAuditLog(path string) Option {
	return func(c *config) error {
		if path == "" {
			return &ConfigError{Field: "audit-log", Value: path}
		}
		c.auditPath = path
		c.auditOff = false
		return nil
	}
}

// WithoutAuditLog disables the audit log
func WithoutAuditLog() Option {
	return func(c *config) error {
		c.auditOff = true
		return nil
	}
}

// WithAdmissionScript loads a Lua admission script consulted before every join
func WithAdmissionScript(path string) Option {
	return func(c *config) error {
		if path == "" {
			return &ConfigError{Field: "join-script", Value: path}
		}
		c.scriptPath = path
		return nil
	}
}

// WithScriptWatch reloads the admission script when the file changes
func WithScriptWatch(enabled bool) Option {
	return func(c *config) error {
		c.scriptWatch = enabled
		return nil
	}
}

// WithScriptTimeout bounds a single admission call
func WithScriptTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return &ConfigError{Field: "script-timeout", Value: d}
		}
		c.scriptTimeout = d
		return nil
	}
}

// WithLogger sets the operational logger
func WithLogger(logger pslog.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithMetrics sets a metrics collector
func WithMetrics(metrics MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = metrics
		return nil
	}
}
