package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"github.com/raniellyferreira/memberlists/audit"
	"github.com/raniellyferreira/memberlists/internal/logutil"
	"github.com/raniellyferreira/memberlists/protocol"
)

const (
	// DefaultWorkers is the number of connections handled at the same time
	DefaultWorkers = 25

	// DefaultQueueSize is the number of accepted connections that may wait
	// for a worker before the accept loop blocks
	DefaultQueueSize = 25

	// DefaultReadTimeout bounds the wait for the request line
	DefaultReadTimeout = 30 * time.Second

	maxAcceptBackoff = time.Second

	// oversized requests are audited by their first bytes only
	maxAuditedRequest = 256
)

// ErrServerStarted is returned by Start when the server is already running
var ErrServerStarted = errors.New("server: already started")

// Handler turns one request line into a response
type Handler interface {
	Handle(ctx context.Context, line string) protocol.Result
}

// Metrics receives per-connection measurements
type Metrics interface {
	RecordConnection()
	RecordCommand(command, outcome string, duration time.Duration)
	RecordListSize(list, members int)
	RecordQueueDepth(depth int)
	RecordError(kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordConnection()                          {}
func (noopMetrics) RecordCommand(string, string, time.Duration) {}
func (noopMetrics) RecordListSize(int, int)                    {}
func (noopMetrics) RecordQueueDepth(int)                       {}
func (noopMetrics) RecordError(string)                         {}

// Server accepts one-shot membership connections and runs each through a
// fixed pool of workers
type Server struct {
	handler Handler
	audit   audit.Log
	logger  pslog.Logger
	metrics Metrics

	// Server configuration
	addr         string
	workers      int
	queueSize    int
	readTimeout  time.Duration
	writeTimeout time.Duration

	// Connection management
	listener net.Listener
	queue    chan net.Conn
	conns    sync.Map // map[net.Conn]struct{}
	started  atomic.Bool

	// Control
	ctx      context.Context
	cancel   context.CancelFunc
	acceptWG sync.WaitGroup
	workerWG sync.WaitGroup
	stopOnce sync.Once

	// Stats
	connCount    atomic.Int64
	commandCount atomic.Int64
	errorCount   atomic.Int64
	active       atomic.Int64
}

// Option configures a Server
type Option func(*Server)

// WithWorkers sets the worker pool size
func WithWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets how many accepted connections may wait for a worker
func WithQueueSize(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.queueSize = n
		}
	}
}

// WithAudit sets the audit log that receives one entry per request
func WithAudit(l audit.Log) Option {
	return func(s *Server) {
		s.audit = l
	}
}

// WithLogger sets the operational logger
func WithLogger(l pslog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithReadTimeout bounds the wait for the request line; zero waits forever
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// WithWriteTimeout bounds the response write; zero waits forever
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

// NewServer creates a server that hands every request line to handler
func NewServer(addr string, handler Handler, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		handler:     handler,
		addr:        addr,
		workers:     DefaultWorkers,
		queueSize:   DefaultQueueSize,
		readTimeout: DefaultReadTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = audit.Discard{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	s.logger = logutil.WithSubsystem(s.logger, "server")
	return s
}

// Start binds the listening socket and starts the workers and accept loop
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerStarted
	}

	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.queue = make(chan net.Conn, s.queueSize)
	for i := 0; i < s.workers; i++ {
		s.workerWG.Add(1)
		go s.worker()
	}

	s.acceptWG.Add(1)
	go s.acceptConnections()

	s.logger.Info("server.listening",
		"addr", s.listener.Addr().String(),
		"workers", s.workers,
		"queue", s.queueSize,
	)
	return nil
}

// Stop closes the listener, drops queued and in-flight connections and
// waits for every worker to return
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()

		if s.listener == nil {
			return
		}
		s.listener.Close()
		s.acceptWG.Wait()

		// the accept loop is the only sender
		close(s.queue)

		s.conns.Range(func(key, _ interface{}) bool {
			if conn, ok := key.(net.Conn); ok {
				conn.Close()
			}
			return true
		})

		s.workerWG.Wait()
		s.logger.Info("server.stopped")
	})
	return nil
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stats returns server statistics
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"active_connections": s.active.Load(),
		"queued_connections": len(s.queue),
		"total_connections":  s.connCount.Load(),
		"total_commands":     s.commandCount.Load(),
		"total_errors":       s.errorCount.Load(),
		"workers":            s.workers,
	}
}

// acceptConnections feeds accepted connections to the workers. It blocks
// while the queue is full.
func (s *Server) acceptConnections() {
	defer s.acceptWG.Done()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.logger.Warn("server.accept.error", "error", err, "retry_in", backoff)
			s.metrics.RecordError("accept")
			select {
			case <-time.After(backoff):
				continue
			case <-s.ctx.Done():
				return
			}
		}
		backoff = 0

		s.conns.Store(conn, struct{}{})
		select {
		case s.queue <- conn:
			s.metrics.RecordQueueDepth(len(s.queue))
		case <-s.ctx.Done():
			s.conns.Delete(conn)
			conn.Close()
			return
		}
	}
}

func (s *Server) worker() {
	defer s.workerWG.Done()

	for conn := range s.queue {
		s.metrics.RecordQueueDepth(len(s.queue))
		if s.ctx.Err() != nil {
			s.conns.Delete(conn)
			conn.Close()
			continue
		}
		s.handle(conn)
	}
}

// handle runs one connection: read the request line, audit it, dispatch,
// write the response and close
func (s *Server) handle(conn net.Conn) {
	s.active.Add(1)
	defer s.active.Add(-1)
	defer s.conns.Delete(conn)
	defer conn.Close()

	client := clientHost(conn.RemoteAddr())
	logger := s.logger.With("conn", xid.New().String(), "client", client)

	defer func() {
		if r := recover(); r != nil {
			s.errorCount.Add(1)
			s.metrics.RecordError("panic")
			logger.Error("server.conn.panic", "panic", r)
		}
	}()

	s.connCount.Add(1)
	s.metrics.RecordConnection()

	if s.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	line, err := protocol.NewReader(conn).ReadRequest()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		// absent request, dispatched as an empty line
		line = ""
	case errors.Is(err, protocol.ErrLineTooLong):
		s.errorCount.Add(1)
		s.metrics.RecordError("read")
		logger.Warn("server.conn.request_too_long", "max", protocol.MaxRequestSize)
		s.record(logger, client, truncateRequest(line))
		s.respond(conn, logger, protocol.MsgInvalid)
		return
	default:
		if s.ctx.Err() != nil {
			return
		}
		s.errorCount.Add(1)
		s.metrics.RecordError("read")
		logger.Warn("server.conn.read_failed", "error", err)
		return
	}

	s.record(logger, client, line)

	start := time.Now()
	res := s.handler.Handle(s.ctx, line)
	elapsed := time.Since(start)

	s.commandCount.Add(1)
	command := res.Command.Kind.String()
	s.metrics.RecordCommand(command, string(res.Outcome), elapsed)
	if res.Err != nil {
		s.errorCount.Add(1)
		s.metrics.RecordError(string(res.Outcome))
		logger.Error("server.command.failed", "command", command, "outcome", res.Outcome, "error", res.Err)
	}
	if res.Command.Kind == protocol.KindJoin && res.Members >= 0 {
		s.metrics.RecordListSize(res.Command.List, res.Members)
	}

	s.respond(conn, logger, res.Text)
	logger.Debug("server.conn.done", "command", command, "outcome", res.Outcome, "elapsed", elapsed)
}

// record writes the audit entry; a failure is logged and never fails the
// request
func (s *Server) record(logger pslog.Logger, client, line string) {
	if err := s.audit.Record(audit.NewEntry(client, line)); err != nil {
		s.errorCount.Add(1)
		s.metrics.RecordError("audit")
		logger.Warn("server.audit.failed", "error", err)
	}
}

// truncateRequest shortens an oversized request for the audit log
func truncateRequest(line string) string {
	if len(line) <= maxAuditedRequest {
		return line
	}
	return strings.ToValidUTF8(line[:maxAuditedRequest], "") + "..."
}

func (s *Server) respond(conn net.Conn, logger pslog.Logger, text string) {
	if s.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := protocol.WriteResponse(conn, text); err != nil {
		s.errorCount.Add(1)
		s.metrics.RecordError("write")
		logger.Warn("server.conn.write_failed", "error", err)
	}
}

// clientHost returns the host part of a remote address
func clientHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
