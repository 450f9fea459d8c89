// Command docstore serves JSON document collections over TCP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maruel/docstore/internal/config"
	"github.com/maruel/docstore/internal/docdb"
	"github.com/maruel/docstore/internal/server"
	"github.com/maruel/docstore/internal/server/ipgeo"
	"github.com/maruel/docstore/internal/server/ratelimit"
	"github.com/maruel/docstore/internal/storage"
	"github.com/maruel/docstore/internal/utils"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "docstore: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	level := &slog.LevelVar{}
	slog.SetDefault(utils.NewLogger(level))

	dataDir := flag.String("data-dir", "./data", "Data directory")
	cfgPath := flag.String("config", "", "Configuration file (default <data-dir>/"+config.FileName+")")
	listen := flag.String("listen", "", "Address to listen on")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	metricsAddr := flag.String("metrics", "", "Address serving /metrics and /healthz; disabled when empty")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		utils.ReadBuildInfo().Print(os.Stdout, "docstore")
		return nil
	}

	cfg, err := config.Load(*dataDir, *cfgPath)
	if err != nil {
		return err
	}
	// Explicit flags win over the file and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "log-level":
			cfg.LogLevel = *logLevel
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	l, err := utils.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	level.Set(l)
	bi := utils.ReadBuildInfo()
	slog.InfoContext(ctx, "Starting", "version", bi.Version, "revision", bi.Revision, "data", cfg.DataDir)
	return run(ctx, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	fs, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize file store: %w", err)
	}
	ids, err := docdb.NewIDGenerator(cfg.IDScheme)
	if err != nil {
		return err
	}
	metrics := server.NewMetrics()
	reg := storage.NewRegistry(fs, storage.Options{
		InitialCapacity: cfg.InitialCapacity,
		IDs:             ids,
		OnLoad:          metrics.ObserveLoad,
	})

	if cfg.History.Enabled {
		h, err := storage.OpenHistory(fs, storage.Author{Name: cfg.History.AuthorName, Email: cfg.History.AuthorEmail})
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		reg.AddFlushHook(h.FlushHook())
		slog.InfoContext(ctx, "History enabled", "dir", fs.RootDir())
	}
	if cfg.Watch {
		w, err := storage.StartWatcher(ctx, reg)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", fs.RootDir(), err)
		}
		defer func() { _ = w.Close() }()
	}

	opts := server.Options{
		MaxConnections:  cfg.Limits.MaxConnections,
		MaxRequestBytes: cfg.Limits.MaxRequestBytes,
		IOTimeout:       cfg.Limits.IOTimeout,
		Metrics:         metrics,
	}
	if cfg.Geo.DB != "" {
		geo, err := ipgeo.Open(cfg.Geo.DB, cfg.Geo.AllowCountries)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = geo.Close() }()
		opts.Geo = geo
	}
	if cfg.Limits.RequestsPerMinute > 0 {
		opts.Limiter = ratelimit.NewLimiter(cfg.Limits.RequestsPerMinute, time.Minute, cfg.Limits.Burst)
		defer opts.Limiter.Close()
	}
	auth := server.NewAuthenticator([]byte(cfg.Auth.Secret))
	if auth == nil {
		slog.WarnContext(ctx, "Authentication disabled")
	}
	srv := server.New(server.NewDispatcher(reg, auth, metrics), opts)

	if cfg.MetricsAddr != "" {
		hs := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           server.NewHTTPHandler(srv, reg, metrics),
			BaseContext:       func(net.Listener) context.Context { return ctx },
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.InfoContext(ctx, "Serving metrics", "addr", cfg.MetricsAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.ErrorContext(ctx, "Metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(shutdownCtx)
		}()
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Listen)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Listening", "addr", ln.Addr().String())
	err = srv.Serve(ctx, ln)
	slog.InfoContext(ctx, "Server stopped")
	return err
}
