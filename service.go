package memberlists

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/raniellyferreira/memberlists/audit"
	"github.com/raniellyferreira/memberlists/internal/logutil"
	"github.com/raniellyferreira/memberlists/protocol"
	"github.com/raniellyferreira/memberlists/script"
	"github.com/raniellyferreira/memberlists/server"
	"github.com/raniellyferreira/memberlists/storage"
	"github.com/raniellyferreira/memberlists/storage/policy"
)

// Service is a membership list server: a fixed set of capacity-bounded
// lists served over TCP
type Service struct {
	// Configuration
	config *config
	logger pslog.Logger

	// Components
	storage    storage.Storage
	audit      audit.Log
	engine     *script.Engine
	dispatcher *protocol.Dispatcher
	server     *server.Server
	stats      *ServiceStats

	// State
	mu          sync.RWMutex
	started     bool
	closed      bool
	watchCancel context.CancelFunc
}

// New creates a Service with the given options
//
// Configuration is validated before anything touches the disk. On success
// every list exists and is empty, and the audit log is open for appending.
// The listener is not bound until Start.
//
// Example:
//
//	svc, err := memberlists.New(
//		memberlists.WithLists(2),
//		memberlists.WithCapacity(10),
//		memberlists.WithDataDir("./data"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := logutil.Ensure(cfg.logger)
	svc := &Service{
		config: cfg,
		logger: logutil.WithSubsystem(logger, "service"),
		stats:  newServiceStats(),
	}

	// Create storage
	if err := svc.openStorage(logger); err != nil {
		return nil, err
	}

	// Audit log, appended to and never truncated
	if cfg.auditOff {
		svc.audit = audit.Discard{}
	} else {
		log, err := audit.Open(svc.AuditLogPath())
		if err != nil {
			svc.storage.Close()
			return nil, err
		}
		svc.audit = log
	}

	// Join admission
	var admission policy.AdmissionPolicy = policy.NoopAdmission{}
	if cfg.scriptPath != "" {
		engineOpts := []script.Option{script.WithLogger(logger)}
		if cfg.scriptTimeout > 0 {
			engineOpts = append(engineOpts, script.WithTimeout(cfg.scriptTimeout))
		}
		svc.engine = script.NewEngine(svc.storage, engineOpts...)
		if _, err := svc.engine.LoadFile(cfg.scriptPath); err != nil {
			svc.audit.Close()
			svc.storage.Close()
			return nil, err
		}
		admission = svc.engine
	}

	svc.dispatcher = protocol.NewDispatcher(svc.storage, admission)

	adapter := &metricsAdapter{stats: svc.stats, metrics: cfg.metrics}
	for i := 1; i <= cfg.lists; i++ {
		adapter.RecordListSize(i, 0)
	}

	svc.server = server.NewServer(cfg.addr, svc.dispatcher,
		server.WithWorkers(cfg.workers),
		server.WithQueueSize(cfg.queueSize),
		server.WithReadTimeout(cfg.readTimeout),
		server.WithWriteTimeout(cfg.writeTimeout),
		server.WithAudit(svc.audit),
		server.WithLogger(logger),
		server.WithMetrics(adapter),
	)

	return svc, nil
}

// openStorage creates the list store and discards lists left by a
// previous run
func (s *Service) openStorage(logger pslog.Logger) error {
	cfg := s.config
	var (
		stor storage.Storage
		err  error
	)
	if cfg.memoryStore {
		stor, err = storage.NewMemory(cfg.lists, cfg.capacity)
	} else {
		stor, err = storage.NewFile(cfg.dataDir, cfg.lists, cfg.capacity,
			storage.WithFsync(cfg.fsync),
			storage.WithFileLogger(logger),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := stor.Reset(); err != nil {
		stor.Close()
		return fmt.Errorf("failed to initialise lists: %w", err)
	}
	s.storage = stor
	return nil
}

// Start binds the listener and starts serving
//
// A bind failure is returned and the service stays stopped. Calling Start
// on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.server.Start(); err != nil {
		s.logger.Error("service.start.failed", "error", err, "addr", s.config.addr)
		return err
	}
	s.started = true

	s.stats.mu.Lock()
	s.stats.StartedAt = time.Now()
	s.stats.mu.Unlock()

	if s.engine != nil && s.config.scriptWatch {
		watchCtx, cancel := context.WithCancel(context.Background())
		if err := s.engine.Watch(watchCtx, s.config.scriptPath); err != nil {
			cancel()
			s.logger.Warn("service.script.watch_failed", "error", err)
		} else {
			s.watchCancel = cancel
		}
	}

	s.logger.Info("service.started",
		"addr", s.server.Addr(),
		"lists", s.config.lists,
		"capacity", s.config.capacity,
	)
	return nil
}

// Close stops the listener and releases the store and the audit log
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.watchCancel != nil {
		s.watchCancel()
	}

	var errs []error
	if err := s.server.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop server: %w", err))
	}
	if err := s.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit log: %w", err))
	}
	if err := s.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	s.logger.Info("service.closed")
	return errors.Join(errs...)
}

// Addr returns the listening address, resolved once started
func (s *Service) Addr() string {
	return s.server.Addr()
}

// Storage returns the underlying list store for direct access
func (s *Service) Storage() storage.Storage {
	return s.storage
}

// Dispatcher returns the command dispatcher, which can run requests
// without going through the network
func (s *Service) Dispatcher() *protocol.Dispatcher {
	return s.dispatcher
}

// Stats returns command and error counters
func (s *Service) Stats() *ServiceStats {
	return s.stats
}

// AuditLogPath returns the audit log path, or "" when auditing is off
func (s *Service) AuditLogPath() string {
	if s.config.auditOff {
		return ""
	}
	if s.config.auditPath != "" {
		return s.config.auditPath
	}
	return filepath.Join(s.config.dataDir, audit.DefaultFileName)
}

// GetInfo returns detailed information about the service
func (s *Service) GetInfo() map[string]interface{} {
	info := map[string]interface{}{
		"lists":    s.config.lists,
		"capacity": s.config.capacity,
		"server":   s.server.Stats(),
		"stats":    s.stats.snapshot(),
		"version":  VersionInfo(),
	}
	if counts, err := storage.Totals(s.storage); err == nil {
		info["members"] = counts
	}
	if s.engine != nil {
		info["script"] = map[string]interface{}{
			"path":        s.config.scriptPath,
			"fingerprint": fmt.Sprintf("%016x", s.engine.Fingerprint()),
			"watch":       s.config.scriptWatch,
		}
	}
	return info
}

// Running reports whether the service is accepting connections (thread-safe)
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.closed
}
