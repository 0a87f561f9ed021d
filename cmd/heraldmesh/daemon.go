package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/codec"
	"github.com/heraldmesh/heraldmesh/internal/config"
	"github.com/heraldmesh/heraldmesh/internal/directory"
	"github.com/heraldmesh/heraldmesh/internal/discovery"
	"github.com/heraldmesh/heraldmesh/internal/httpserver"
	"github.com/heraldmesh/heraldmesh/internal/lifecycle"
	"github.com/heraldmesh/heraldmesh/internal/message"
	"github.com/heraldmesh/heraldmesh/internal/metrics"
	"github.com/heraldmesh/heraldmesh/internal/ratelimit"
	"github.com/heraldmesh/heraldmesh/internal/transport"
)

var (
	listenAddr  string
	metricsPort int
	metricsBind string
	peerUID     string
	peerName    string
	noStore     bool
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start the heraldmesh daemon",
		Long: `Start the heraldmesh daemon: it listens for overlay messages on the
reception path, serves this peer's self-description to pulls from other
peers, and periodically pulls the configured bootstrap peers.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if metricsPort < 0 || metricsPort > 65535 {
				return fmt.Errorf("invalid metrics-port: must be between 0 and 65535")
			}
			return nil
		},
		RunE: runDaemon,
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "reception listen address (host:port, port 0 picks a free one)")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", -1, "Metrics endpoint port (0 to disable)")
	cmd.Flags().StringVar(&metricsBind, "metrics-bind", "", "Metrics endpoint bind address (SECURITY: 0.0.0.0 exposes stats externally)")
	cmd.Flags().StringVar(&peerUID, "uid", "", "local peer identity (defaults to config, then a generated one)")
	cmd.Flags().StringVar(&peerName, "name", "", "local peer display name")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not persist the peer directory")

	return cmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override with command-line flags
	if listenAddr != "" {
		cfg.Transport.ListenAddr = listenAddr
	}
	if metricsPort >= 0 {
		cfg.Transport.MetricsPort = metricsPort
	}
	if metricsBind != "" {
		cfg.Transport.MetricsBind = metricsBind
	}
	if peerUID != "" {
		cfg.Node.UID = peerUID
	}
	if peerName != "" {
		cfg.Node.Name = peerName
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	uid := cfg.Node.UID
	if uid == "" {
		uid = uuid.NewString()
		logger.Info("Generated local peer identity", zap.String("uid", uid))
	}

	logger.Info("Starting heraldmesh daemon",
		zap.String("uid", uid),
		zap.String("listen", cfg.Transport.ListenAddr),
		zap.Int("metricsPort", cfg.Transport.MetricsPort))

	// Peer directory, optionally persistent
	var store *directory.Store
	if !noStore {
		store, err = directory.OpenStore(resolveDataDir(cfg), logger)
		if err != nil {
			return fmt.Errorf("failed to open peer store: %w", err)
		}
		defer store.Close()
	}

	dir, err := directory.New(uid, cfg.Node.Name, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	m := metrics.New()
	jsonCodec := codec.NewJSON()

	// The routing core proper lives outside this process for now; inbound
	// envelopes are logged and dropped.
	router := message.HandlerFunc(func(env *message.Envelope) {
		logger.Info("Message received",
			zap.String("uid", env.UID),
			zap.String("sender", env.Sender),
			zap.String("subject", env.Subject))
	})

	server := httpserver.New(&httpserver.Config{
		Addr:         cfg.Transport.ListenAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}, logger)

	receiver := transport.NewReceiver(&transport.Config{
		Path:    cfg.Transport.ReceptionPath,
		Metrics: m,
	}, dir, jsonCodec, router, server, logger)

	limiter := ratelimit.NewPeerLimiter(&ratelimit.Config{
		MessagesPerSecond: cfg.Limits.MessagesPerSecond,
		Burst:             cfg.Limits.Burst,
	}, logger)
	receiver.SetServlet(transport.NewServlet(receiver, limiter, logger))

	// Bind: listen first so the real port is known, then notify the
	// receiver, then start serving.
	port, err := server.Listen()
	if err != nil {
		return fmt.Errorf("failed to bind listener: %w", err)
	}
	if err := receiver.BindListener(port); err != nil {
		return err
	}

	lm := lifecycle.New(context.Background())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve()
	}()

	lm.Go(limiter.Run)

	fetcher := transport.NewFetcher(&transport.FetcherConfig{Metrics: m}, jsonCodec, logger)
	if len(cfg.Discovery.BootstrapPeers) > 0 {
		disc := discovery.New(&discovery.Config{
			Bootstrap:   cfg.Discovery.BootstrapPeers,
			Interval:    cfg.Discovery.PullInterval,
			MaxAttempts: cfg.Discovery.PullAttempts,
			Metrics:     m,
		}, fetcher, dir, logger)
		lm.Go(disc.Run)
	}

	if cfg.Transport.MetricsPort > 0 {
		go startMetricsServer(cfg, m, receiver, logger)
	}

	logger.Info("Receiver ready",
		zap.Int("port", port),
		zap.String("path", receiver.Path()),
		zap.Bool("ready", receiver.Ready()))

	// Wait for shutdown signal or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP layer failed", zap.Error(err))
		}
	}

	receiver.UnbindListener()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP layer shutdown incomplete", zap.Error(err))
	}

	if err := lm.StopWithTimeout(10 * time.Second); err != nil {
		logger.Warn("Background tasks did not stop in time", zap.Error(err))
	}

	logger.Info("Daemon stopped")
	return nil
}

func startMetricsServer(cfg *config.Config, m *metrics.Metrics, receiver *transport.Receiver, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !receiver.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Transport.MetricsBind, cfg.Transport.MetricsPort)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server failed", zap.Error(err))
	}
}
