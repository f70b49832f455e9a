package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-go/terminal/internal/config"
	terrors "github.com/vango-go/terminal/internal/errors"
	"github.com/vango-go/terminal/pkg/middleware"
	"github.com/vango-go/terminal/pkg/server"
	"github.com/vango-go/terminal/pkg/session"
	"github.com/vango-go/terminal/pkg/upload"
)

type serveOptions struct {
	addr     string
	logLevel string
	metrics  bool
	tracing  bool
}

func serveCmd(flags *globalFlags) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the terminal server",
		Long: `Start the terminal server.

Settings are read from the config file and VANGO_TERMINAL_* environment
variables; command-line flags override both.

Examples:
  vango-terminal serve
  vango-terminal serve --addr=:9000
  vango-terminal serve --config=prod.yaml --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Address to listen on (default from config)")
	cmd.Flags().StringVarP(&opts.logLevel, "log-level", "l", "", "Log level: debug, info, warn or error")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics")
	cmd.Flags().BoolVar(&opts.tracing, "tracing", false, "Enable OpenTelemetry tracing")

	return cmd
}

// apply copies the flags that were set onto cfg.
func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
	if cmd.Flags().Changed("tracing") {
		cfg.Tracing.Enabled = o.tracing
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	printBanner(out)
	info(out, "serve %s", version)
	if path := cfg.Path(); path != "" {
		info(out, "config %s", path)
	}

	store, closeBackend, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return terrors.FromError(err, terrors.CodeServe)
	}
	sessions := session.NewContainer(store, cfg.SessionConfig(), logger)
	defer func() {
		store.Close()
		closeBackend()
	}()

	uploads, err := openUploadStore(cfg, logger)
	if err != nil {
		sessions.Shutdown(context.Background())
		return terrors.FromError(err, terrors.CodeServe)
	}
	go sweepUploads(ctx, uploads, cfg.Upload.TempExpiry, logger)

	servletOpts := []server.ServletOption{server.WithServletLogger(logger)}
	if cfg.Server.ThemesDir != "" {
		servletOpts = append(servletOpts, server.WithThemes(os.DirFS(cfg.Server.ThemesDir)))
	}
	if cfg.Tracing.Enabled {
		shutdown := setupTracing(cfg.Tracing, logger)
		defer shutdown(context.Background())
		servletOpts = append(servletOpts, server.WithMiddleware(middleware.OpenTelemetry(
			middleware.WithTracerName(cfg.Tracing.ServiceName),
		)))
	}
	if cfg.Metrics.Enabled {
		metricsSrv := serveMetrics(cfg.Metrics, sessions, logger, &servletOpts)
		defer metricsSrv.Close()
	}

	servlet := server.NewServlet(cfg.ServerConfig(), sessions, demoFactory(uploads, logger), servletOpts...)
	success(out, "listening on %s", cfg.Server.Addr)
	if err := servlet.Run(ctx); err != nil {
		return terrors.FromError(err, terrors.CodeServe)
	}
	return nil
}

// serveMetrics starts the Prometheus listener and adds the metrics
// middleware and observer to opts.
func serveMetrics(cfg config.MetricsConfig, sessions *session.Container, logger *slog.Logger, opts *[]server.ServletOption) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(
		middleware.WithRegistry(reg),
		middleware.WithNamespace(cfg.Namespace),
	)
	metrics.TrackSessions(sessions.Len)
	*opts = append(*opts,
		server.WithMiddleware(metrics.Handler),
		server.WithManagerOptions(server.WithObserver(metrics)),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "address", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

// sweepUploads removes unclaimed uploads older than maxAge until ctx is
// done.
func sweepUploads(ctx context.Context, store upload.Store, maxAge time.Duration, logger *slog.Logger) {
	interval := maxAge / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := store.Cleanup(ctx, maxAge); err != nil {
				logger.Warn("upload cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
