package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"

	memberlists "github.com/raniellyferreira/memberlists"
	"github.com/raniellyferreira/memberlists/internal/logutil"
	"github.com/raniellyferreira/memberlists/metrics"
)

const envPrefix = "MEMBERLISTD"

// serviceReady, when set, is called once the service is listening
var serviceReady func(svc *memberlists.Service, metricsAddr string)

// newBaseLogger builds the process logger; MEMBERLISTD_LOG_* overrides the
// structured info-level default
func newBaseLogger(w io.Writer) pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvPrefix(envPrefix+"_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel, NoColor: true}),
		pslog.WithEnvWriter(w),
	).With("app", "memberlistd")
}

func submain(ctx context.Context) int {
	cmd := newRootCommand(newBaseLogger(os.Stderr))
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

// limitsError is printed as is, without logger decoration
type limitsError struct {
	msg string
}

func (e *limitsError) Error() string {
	return e.msg
}

var (
	errLimitsUsage    = &limitsError{msg: "Error: Usage is memberlistd <number of lists> <maximum number of members>"}
	errLimitsInteger  = &limitsError{msg: "Error: Arguments should be integers."}
	errLimitsPositive = &limitsError{msg: "Error: Arguments should be greater than 0."}
)

// resolveLimits takes the list layout from the positional arguments when
// present, otherwise from configuration
func resolveLimits(args []string, lists, capacity int) (int, int, error) {
	switch len(args) {
	case 0:
		if lists == 0 && capacity == 0 {
			return 0, 0, errLimitsUsage
		}
	case 2:
		var err1, err2 error
		lists, err1 = strconv.Atoi(args[0])
		capacity, err2 = strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return 0, 0, errLimitsInteger
		}
	default:
		return 0, 0, errLimitsUsage
	}
	if lists < 1 || capacity < 1 {
		return 0, 0, errLimitsPositive
	}
	return lists, capacity, nil
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// serveConfig is everything the root command reads from flags, env and
// the config file
type serveConfig struct {
	Listen        string
	Lists         int
	Capacity      int
	DataDir       string
	Memory        bool
	Sync          bool
	AuditLog      string
	NoAudit       bool
	Workers       int
	QueueSize     int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	JoinScript    string
	WatchScript   bool
	ScriptTimeout time.Duration
	MetricsListen string
	LogLevel      string
}

func bindConfig(v *viper.Viper, cfg *serveConfig) error {
	cfg.Listen = v.GetString("listen")
	cfg.Lists = v.GetInt("lists")
	cfg.Capacity = v.GetInt("capacity")
	cfg.DataDir = v.GetString("data-dir")
	cfg.Memory = v.GetBool("memory")
	cfg.Sync = v.GetBool("sync")
	cfg.AuditLog = v.GetString("audit-log")
	cfg.NoAudit = v.GetBool("no-audit")
	cfg.Workers = v.GetInt("workers")
	cfg.QueueSize = v.GetInt("queue-size")
	cfg.ReadTimeout = v.GetDuration("read-timeout")
	cfg.WriteTimeout = v.GetDuration("write-timeout")
	cfg.JoinScript = v.GetString("join-script")
	cfg.WatchScript = v.GetBool("watch-script")
	cfg.ScriptTimeout = v.GetDuration("script-timeout")
	cfg.MetricsListen = strings.TrimSpace(v.GetString("metrics-listen"))
	cfg.LogLevel = strings.TrimSpace(v.GetString("log-level"))
	if cfg.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	return nil
}

// options turns the resolved configuration into service options
func (cfg *serveConfig) options(logger pslog.Logger, collector memberlists.MetricsCollector) []memberlists.Option {
	opts := []memberlists.Option{
		memberlists.WithLists(cfg.Lists),
		memberlists.WithCapacity(cfg.Capacity),
		memberlists.WithAddr(cfg.Listen),
		memberlists.WithDataDir(cfg.DataDir),
		memberlists.WithWorkers(cfg.Workers),
		memberlists.WithQueueSize(cfg.QueueSize),
		memberlists.WithReadTimeout(cfg.ReadTimeout),
		memberlists.WithWriteTimeout(cfg.WriteTimeout),
		memberlists.WithSync(cfg.Sync),
		memberlists.WithLogger(logger),
	}
	if cfg.Memory {
		opts = append(opts, memberlists.WithMemoryStore())
	}
	switch {
	case cfg.NoAudit:
		opts = append(opts, memberlists.WithoutAuditLog())
	case cfg.AuditLog != "":
		opts = append(opts, memberlists.WithAuditLog(cfg.AuditLog))
	}
	if cfg.JoinScript != "" {
		opts = append(opts,
			memberlists.WithAdmissionScript(cfg.JoinScript),
			memberlists.WithScriptWatch(cfg.WatchScript),
			memberlists.WithScriptTimeout(cfg.ScriptTimeout),
		)
	}
	if collector != nil {
		opts = append(opts, memberlists.WithMetrics(collector))
	}
	return opts
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "memberlistd [<number of lists> <maximum number of members>]",
		Short:         "memberlistd serves capacity-bounded membership lists over a one-line TCP protocol",
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		Example: `
  # Two lists of ten members each, files in the current directory
  memberlistd 2 10

  # Same layout from the environment, lists kept in memory
  MEMBERLISTD_LISTS=2 MEMBERLISTD_CAPACITY=10 memberlistd --memory

  # Lua admission rules reloaded on save, Prometheus on :9247
  memberlistd 4 25 --join-script ./admit.lua --watch-script --metrics-listen :9247
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			logger := baseLogger
			cliLogger := logutil.WithSubsystem(logger, "cli.root")

			configFile, err := loadConfigFile(v)
			if err != nil {
				return err
			}

			var cfg serveConfig
			if err := bindConfig(v, &cfg); err != nil {
				return err
			}
			cfg.Lists, cfg.Capacity, err = resolveLimits(args, cfg.Lists, cfg.Capacity)
			if err != nil {
				return err
			}

			if cfg.LogLevel == "" {
				cfg.LogLevel = "info"
			}
			if level, ok := pslog.ParseLevel(cfg.LogLevel); ok {
				logger = logger.LogLevel(level)
				cliLogger = logutil.WithSubsystem(logger, "cli.root")
			}
			cliLogger.Info("welcome to memberlistd",
				"version", memberlists.Version,
				"pid", os.Getpid(),
			)
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}

			var collector *metrics.Prometheus
			if cfg.MetricsListen != "" {
				collector = metrics.NewPrometheus()
			}
			var mc memberlists.MetricsCollector
			if collector != nil {
				mc = collector
			}

			svc, err := memberlists.New(cfg.options(logger, mc)...)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Start(ctx); err != nil {
				return err
			}

			auditSize := "off"
			if path := svc.AuditLogPath(); path != "" {
				if st, err := os.Stat(path); err == nil {
					auditSize = humanize.Bytes(uint64(st.Size()))
				}
			}
			cliLogger.Info("serving",
				"addr", svc.Addr(),
				"lists", cfg.Lists,
				"capacity", cfg.Capacity,
				"seats", humanize.Comma(int64(cfg.Lists)*int64(cfg.Capacity)),
				"workers", cfg.Workers,
				"audit_log", svc.AuditLogPath(),
				"audit_size", auditSize,
			)

			g, gctx := errgroup.WithContext(ctx)
			metricsAddr := ""
			if collector != nil {
				srv, ln, err := startMetricsServer(cfg.MetricsListen, collector.Handler())
				if err != nil {
					return err
				}
				metricsAddr = ln.Addr().String()
				cliLogger.Info("metrics listening", "addr", metricsAddr)
				g.Go(func() error {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				return nil
			})

			if serviceReady != nil {
				serviceReady(svc, metricsAddr)
			}

			err = g.Wait()
			cliLogger.Info("shutting down")
			return err
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to a YAML/TOML/JSON config file")
	persistentFlags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	flags := cmd.Flags()
	flags.String("listen", fmt.Sprintf(":%d", memberlists.DefaultPort), "listen address")
	flags.Int("lists", 0, "number of lists (overridden by the first positional argument)")
	flags.Int("capacity", 0, "maximum members per list (overridden by the second positional argument)")
	flags.String("data-dir", ".", "directory holding list-<n>.txt files and the audit log")
	flags.Bool("memory", false, "keep lists in memory instead of list files")
	flags.Bool("sync", false, "fsync list files after every join")
	flags.String("audit-log", "", "audit log path (default <data-dir>/log.txt)")
	flags.Bool("no-audit", false, "disable the audit log")
	flags.Int("workers", 25, "connections handled concurrently")
	flags.Int("queue-size", 25, "accepted connections allowed to wait for a worker")
	flags.Duration("read-timeout", 30*time.Second, "time allowed for a client to send its request (0 disables)")
	flags.Duration("write-timeout", 0, "time allowed for writing a response (0 disables)")
	flags.String("join-script", "", "Lua script defining admit(list, name), consulted before every join")
	flags.Bool("watch-script", false, "reload --join-script when the file changes")
	flags.Duration("script-timeout", 0, "time allowed for one admit call (0 uses the default)")
	flags.String("metrics-listen", "", "Prometheus scrape address (empty disables)")

	bindFlag := func(name string) {
		flag := findFlag(name, flags, persistentFlags)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := v.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, name := range []string{
		"config", "log-level",
		"listen", "lists", "capacity", "data-dir", "memory", "sync", "audit-log", "no-audit",
		"workers", "queue-size", "read-timeout", "write-timeout",
		"join-script", "watch-script", "script-timeout", "metrics-listen",
	} {
		bindFlag(name)
	}

	cmd.AddCommand(newClientCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func findFlag(name string, sets ...*pflag.FlagSet) *pflag.Flag {
	for _, set := range sets {
		if flag := set.Lookup(name); flag != nil {
			return flag
		}
	}
	return nil
}

func startMetricsServer(addr string, handler http.Handler) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv, ln, nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
