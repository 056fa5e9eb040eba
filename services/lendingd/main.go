package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	engineconfig "lendingmarket/config"
	"lendingmarket/observability/logging"
	"lendingmarket/observability/metrics"
	telemetry "lendingmarket/observability/otel"
	"lendingmarket/services/lendingd/config"
	"lendingmarket/services/lendingd/engine"
	"lendingmarket/services/lendingd/server"
	"lendingmarket/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "lendingd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("LENDING_ENV"))
	logOpts := logging.Options{Service: "lendingd", Env: env, Level: cfg.Log.Level}
	if cfg.Log.File != "" {
		logOpts.File = &logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	logger, logCloser := logging.SetupWithOptions(logOpts)
	defer logCloser.Close()

	headers, err := telemetry.ParseHeaders(cfg.Telemetry.Headers)
	if err != nil {
		return fmt.Errorf("telemetry headers: %w", err)
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "err", err)
		}
	}()
	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, logging.SafeHeaders(headers))
	}

	engineCfg, err := engineconfig.Load(cfg.EnginePath)
	if err != nil {
		return fmt.Errorf("load engine config: %w", err)
	}
	opts := engine.Options{
		Logger:  logger,
		Metrics: metrics.Lending(),
		Emitter: engine.LogEmitter(logger),
	}
	if cfg.ClockInterval > 0 {
		opts.BlockHeight = uint64(time.Now().Unix())
	}
	eng, err := engine.Build(engineCfg, opts)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	var db storage.Database = storage.NewMemDB()
	if cfg.DataDir != "" {
		db, err = openStore(cfg)
		if err != nil {
			return fmt.Errorf("open data dir: %w", err)
		}
	}
	defer db.Close()
	restored, err := eng.Load(db)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	logger.Info("engine ready", "markets", len(eng.Markets), "restored", restored, "blockHeight", eng.Registry.BlockHeight())

	handler, err := server.New(server.Config{
		Engine:    eng,
		APITokens: cfg.Auth.APITokens,
		RateLimit: server.RateLimit{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute, Burst: cfg.RateLimit.Burst},
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	tlsCfg, err := loadServerTLS(cfg.TLS)
	if err != nil {
		return fmt.Errorf("configure tls: %w", err)
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	if tlsCfg == nil {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			listener.Close()
			return fmt.Errorf("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
	} else {
		listener = tls.NewListener(listener, tlsCfg)
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runClock(ctx, eng, cfg.ClockInterval)
	go runSnapshots(ctx, eng, db, cfg.SnapshotInterval, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "address", cfg.ListenAddress, "tls", tlsCfg != nil)
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing server stop", "err", err)
		_ = httpServer.Close()
	}
	root, err := eng.Save(db)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logger.Info("final snapshot saved", "root", root.Hex())
	return nil
}

// runClock drives the registry clock from wall time, one block per second.
func runClock(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			eng.AdvanceClock(uint64(now.Unix()))
		}
	}
}

func runSnapshots(ctx context.Context, eng *engine.Engine, db storage.Database, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.Save(db); err != nil {
				logger.Error("periodic snapshot failed", "err", err)
			}
		}
	}
}

func loadServerTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled() {
		if cfg.AllowInsecure {
			return nil, nil
		}
		return nil, fmt.Errorf("tls credentials are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if cfg.MTLSEnabled() {
		pem, err := os.ReadFile(cfg.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse client ca: invalid pem data")
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsCfg.ClientAuth = tls.NoClientCert
	}
	return tlsCfg, nil
}

func openStore(cfg config.Config) (storage.Database, error) {
	if cfg.Store == config.StoreBolt {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "lending.db"), nil)
	}
	return storage.NewLevelDB(cfg.DataDir)
}
