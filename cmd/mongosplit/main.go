package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongosplit/internal/engine"
	"github.com/ajitpratap0/mongosplit/pkg/config"
	"github.com/ajitpratap0/mongosplit/pkg/connector/registry"
	"github.com/ajitpratap0/mongosplit/pkg/connector/sources/mongodb"
	"github.com/ajitpratap0/mongosplit/pkg/logger"
	"github.com/ajitpratap0/mongosplit/pkg/observability"

	_ "github.com/ajitpratap0/mongosplit/pkg/store/memstore"
)

var version = "0.1.0"

// GlobalFlags are shared by every command that reads a source
type GlobalFlags struct {
	ConfigFile  string
	Partitions  int
	Workers     int
	Timeout     time.Duration
	LogLevel    string
	MetricsAddr string
	Trace       bool
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "mongosplit",
		Short: "mongosplit - partitioned parallel reads from MongoDB",
		Long: `mongosplit splits the documents matching a filter into equally sized
skip/limit windows and reads the windows in parallel, one connection and
cursor per partition.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.ConfigFile, "config", "c", "", "Path to source configuration YAML file")
	pf.IntVarP(&flags.Partitions, "partitions", "p", 0, "Override the configured partition count")
	pf.IntVar(&flags.Workers, "workers", runtime.NumCPU(), "Number of partitions read concurrently")
	pf.DurationVar(&flags.Timeout, "timeout", 30*time.Minute, "Overall timeout, 0 for none")
	pf.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")
	pf.StringVar(&flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	pf.BoolVar(&flags.Trace, "trace", false, "Export OpenTelemetry spans to stderr")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mongosplit v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "stores",
		Short: "List supported connection string schemes",
		Run: func(cmd *cobra.Command, args []string) {
			for _, scheme := range registry.ListStores() {
				fmt.Printf("  - %s://\n", scheme)
			}
		},
	})

	root.AddCommand(newPlanCmd(flags), newExportCmd(flags), newCountByCmd(flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session holds everything a command needs to read a source
type session struct {
	ctx    context.Context
	cfg    *config.SourceConfig
	log    *zap.Logger
	source *mongodb.Source
	engine *engine.Context

	cleanup []func()
}

// open loads the configuration, sets up logging, metrics and tracing, and
// plans the source. Close must be called when done.
func open(flags *GlobalFlags, withEngine bool) (*session, error) {
	cfg, err := config.LoadSource(flags.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.Partitions > 0 {
		cfg.Partitions = flags.Partitions
	}
	if flags.LogLevel != "" {
		cfg.Observability.LogLevel = flags.LogLevel
	}
	if flags.MetricsAddr != "" {
		cfg.Observability.EnableMetrics = true
		cfg.Observability.MetricsAddr = flags.MetricsAddr
	}
	if flags.Trace {
		cfg.Observability.EnableTracing = true
	}

	if err := logger.Init(logger.Config{Level: cfg.Observability.LogLevel, Encoding: "console"}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.Get()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &session{cfg: cfg, log: log}
	s.cleanup = append(s.cleanup, cancel, func() { _ = logger.Sync() })
	if flags.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, flags.Timeout)
		s.cleanup = append(s.cleanup, cancelTimeout)
	}
	s.ctx = ctx

	if cfg.Observability.EnableTracing {
		tc := observability.DefaultTracingConfig(version)
		tc.Writer = os.Stderr
		shutdown, err := observability.InitTracing(tc)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.cleanup = append(s.cleanup, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn("failed to flush spans", zap.Error(err))
			}
		})
	}

	if cfg.Observability.EnableMetrics {
		s.cleanup = append(s.cleanup, serveMetrics(cfg.Observability.MetricsAddr, log))
	}

	if withEngine {
		ec, err := engine.New(engine.Config{Name: cfg.Name, Workers: flags.Workers}, log)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.engine = ec
		s.ctx = context.WithValue(s.ctx, logger.JobIDKey, ec.JobID())
		s.cleanup = append(s.cleanup, func() { _ = ec.Close() })
	}

	src, err := mongodb.New(s.ctx, cfg, mongodb.WithLogger(log))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.source = src
	s.cleanup = append(s.cleanup, func() { _ = src.Close(context.Background()) })

	return s, nil
}

// Close runs the cleanup functions in reverse order
func (s *session) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

// serveMetrics exposes the default Prometheus registry on addr and returns
// a function stopping the server.
func serveMetrics(addr string, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
