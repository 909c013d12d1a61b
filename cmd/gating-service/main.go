// Package main provides the entry point for the gating service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openforum/gating-service/internal/access"
	"github.com/openforum/gating-service/internal/api"
	"github.com/openforum/gating-service/internal/checker"
	"github.com/openforum/gating-service/internal/config"
	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/metrics"
	"github.com/openforum/gating-service/internal/storage"
	"github.com/openforum/gating-service/internal/verification"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gating-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("gating service starting", "version", version, "addr", cfg.ListenAddr)

	if err := metrics.Init(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ethChain, err := checker.DialChain(cfg.EthRPCURL, checker.WithRPCTimeout(cfg.RPCTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to ethereum RPC: %w", err)
	}
	defer ethChain.Close()

	luksoChain, err := checker.DialChain(cfg.LuksoRPCURL, checker.WithRPCTimeout(cfg.RPCTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to lukso RPC: %w", err)
	}
	defer luksoChain.Close()

	efpOpts := []checker.EFPOption{checker.WithEFPTimeout(cfg.RPCTimeout)}
	if cfg.EFPAPIURL != "" {
		efpOpts = append(efpOpts, checker.WithEFPBaseURL(cfg.EFPAPIURL))
	}
	efp := checker.NewEFPClient(efpOpts...)
	ens := checker.NewENSResolver(ethChain, "")

	evaluator := verification.NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{
		gating.CategoryEthereumProfile:  checker.NewEthereumChecker(ethChain, ens, efp, logger),
		gating.CategoryUniversalProfile: checker.NewUniversalProfileChecker(luksoChain, "", logger),
	})

	verifier := verification.NewService(store, evaluator, verification.Policy{
		PostGrant:    cfg.PostGrant,
		BoardGrant:   cfg.BoardGrant,
		ChallengeTTL: cfg.ChallengeTTL,
	}, logger)

	handler := api.NewHandler(api.Options{
		Store:       store,
		Verifier:    verifier,
		Access:      access.NewService(store),
		Registry:    gating.BuildRegistry(),
		Logger:      logger,
		LogLevel:    logLevel,
		MasterToken: cfg.MasterToken,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler.NewRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Metrics get their own listener so they are never exposed on the
	// service port.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsListenAddr,
		Handler: metricsMux,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
