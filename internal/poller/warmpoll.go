package poller

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chalabi2/blockchain-exporter/internal/config"
	"github.com/chalabi2/blockchain-exporter/internal/metrics"
	"github.com/chalabi2/blockchain-exporter/internal/rpcclient"
)

// DefaultWarmPollConcurrency bounds how many chains are warm-polled at once.
const DefaultWarmPollConcurrency = 8

// WarmPoll runs one collection pass per blockchain before the long-running
// loops start, so /metrics and /health/readyz have real data on the first
// scrape instead of waiting out a full poll interval. Bounded by both a
// concurrency limit and an overall deadline; a chain that errors or times
// out here is simply picked up by its regular Loop afterwards.
func WarmPoll(ctx context.Context, blockchains []config.BlockchainConfig, reg *metrics.Registry, state *metrics.State, pool *rpcclient.Pool, policy rpcclient.RetryPolicy, timeout time.Duration, logger *zap.Logger) {
	if len(blockchains) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultWarmPollConcurrency)

	for _, bc := range blockchains {
		bc := bc
		g.Go(func() error {
			loop := &Loop{Blockchain: bc, Registry: reg, State: state, Pool: pool, RetryPolicy: policy, Logger: logger}
			success, _ := loop.runOnce(gctx)
			if !success {
				logger.Warn("warm poll pass failed, deferring to regular poll loop", zap.String("blockchain", bc.Name))
			}
			return nil
		})
	}

	_ = g.Wait()
}
