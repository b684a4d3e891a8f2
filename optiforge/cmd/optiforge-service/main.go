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

	"github.com/optiforge/platform/optiforge/internal/audit"
	"github.com/optiforge/platform/optiforge/internal/config"
	"github.com/optiforge/platform/optiforge/internal/httpserver"
	"github.com/optiforge/platform/optiforge/internal/logging"
	"github.com/optiforge/platform/optiforge/internal/metrics"
	"github.com/optiforge/platform/optiforge/internal/provider"
	"github.com/optiforge/platform/optiforge/internal/service"
	"github.com/optiforge/platform/optiforge/internal/solver"
	"github.com/optiforge/platform/optiforge/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("store open", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		logger.Error("store ping", "error", err)
		os.Exit(1)
	}

	gen, err := provider.New(provider.Config{
		Name:    cfg.Provider,
		Model:   cfg.ProviderModel,
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderTimeout(),
		Retries: cfg.ProviderRetries,
	})
	if err != nil {
		logger.Error("provider init", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := service.Options{
		Store:       st,
		Generator:   gen,
		Solver:      solver.NewTranslator(logger),
		SolveBudget: cfg.SolverBudget(),
		Logger:      logger,
		Metrics:     metrics.New(reg),
	}
	sinks := audit.MultiSink{audit.LogSink{Logger: logger}}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(audit.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			logger.Error("kafka sink init", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		sinks = append(sinks, sink)
		logger.Info("audit events streaming to kafka", "topic", cfg.KafkaTopic)
	}
	opts.Sink = sinks
	if cfg.ArchiveBucket != "" {
		archiver, err := audit.NewS3Archiver(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix, cfg.ArchiveEndpoint)
		if err != nil {
			logger.Error("s3 archiver init", "error", err)
			os.Exit(1)
		}
		opts.Archiver = archiver
		logger.Info("terminal runs archived to s3", "bucket", cfg.ArchiveBucket)
	}

	svc, err := service.New(opts)
	if err != nil {
		logger.Error("service init", "error", err)
		os.Exit(1)
	}
	server := httpserver.New(cfg, svc, st, reg, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("optiforge service listening", "addr", cfg.Addr, "provider", gen.Name(), "model", gen.Model())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(logger, cancel, httpServer)
}

func waitForShutdown(logger *slog.Logger, cancel context.CancelFunc, srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
}
