// Command blockchain-exporter polls one or more EVM-compatible JSON-RPC
// endpoints and publishes chain head/finalized block height, account and
// contract balances, ERC-20 supply, and Transfer-event counts as
// Prometheus metrics, alongside a health/readiness/reload HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/chalabi2/blockchain-exporter/internal/config"
	"github.com/chalabi2/blockchain-exporter/internal/httpapi"
	"github.com/chalabi2/blockchain-exporter/internal/logging"
	"github.com/chalabi2/blockchain-exporter/internal/metrics"
	"github.com/chalabi2/blockchain-exporter/internal/poller"
	"github.com/chalabi2/blockchain-exporter/internal/reload"
	"github.com/chalabi2/blockchain-exporter/internal/rpcclient"
	"github.com/chalabi2/blockchain-exporter/internal/settings"
)

// defaultPollIntervalSeconds is used when a chain's poll_interval is empty
// or invalid and no environment override is configured.
const defaultPollIntervalSeconds = 300

// shutdownTimeout bounds how long poll loops and HTTP servers are given to
// stop gracefully on SIGINT/SIGTERM.
const shutdownTimeout = 15 * time.Second

func main() {
	if err := runExporter(); err != nil {
		stdlog.Fatalf("blockchain-exporter: %v", err)
	}
}

func runExporter() error {
	cfg := settings.FromEnvironment()

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	configPath, err := cfg.Config.ResolveConfigPath()
	if err != nil {
		return fmt.Errorf("resolving configuration path: %w", err)
	}

	blockchains, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration %s: %w", configPath, err)
	}
	logger.Info("configuration loaded", zap.String("path", configPath), zap.Int("blockchains", len(blockchains)))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	state := metrics.NewState(registry)
	state.SetConfiguredBlockchains(blockchains)

	pool := rpcclient.NewPool(rpcclient.DefaultPoolSize)
	retryPolicy := rpcclient.DefaultRetryPolicy()
	retryPolicy.RequestTimeoutSeconds = cfg.Poller.RPCRequestTimeoutSeconds

	defaultIntervalSeconds := poller.DetermineIntervalSeconds(cfg.Poller.DefaultInterval, defaultPollIntervalSeconds)

	if cfg.Poller.WarmPollEnabled {
		logger.Info("running warm poll", zap.Float64("timeout_seconds", cfg.Poller.WarmPollTimeoutSeconds))
		poller.WarmPoll(context.Background(), blockchains, registry, state,
			pool, retryPolicy, time.Duration(cfg.Poller.WarmPollTimeoutSeconds*float64(time.Second)), logger)
	}

	manager := poller.NewManager(registry, state, pool, retryPolicy, defaultIntervalSeconds, cfg.Poller.MaxFailureBackoffSeconds, logger)

	owner := &struct{}{}
	manager.CreateTasks(blockchains, owner)

	reloader := reload.NewController(manager, state, logger, cfg.Config.ResolveConfigPath, blockchains)

	handlers := &httpapi.Handlers{
		State:                          state,
		Reloader:                       reloader,
		Logger:                         logger,
		ReadinessStaleThresholdSeconds: cfg.Health.ReadinessStaleThresholdSeconds,
	}

	healthSrv := httpapi.NewHealthServer(cfg.Server.HealthPort, handlers)
	metricsSrv := httpapi.NewMetricsServer(cfg.Server.MetricsPort, reg)

	var g run.Group

	g.Add(func() error {
		logger.Info("starting health server", zap.Int("port", cfg.Server.HealthPort))
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpapi.Shutdown(ctx, healthSrv); err != nil {
			logger.Warn("health server shutdown", zap.Error(err))
		}
	})

	g.Add(func() error {
		logger.Info("starting metrics server", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpapi.Shutdown(ctx, metricsSrv); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	})

	{
		stop := make(chan struct{})
		g.Add(func() error {
			<-stop
			return nil
		}, func(error) {
			close(stop)
			if manager.ShouldCleanup(owner) {
				manager.ShutdownTasks(shutdownTimeout)
			}
		})
	}

	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	return g.Run()
}
