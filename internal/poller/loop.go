package poller

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/chalabi2/blockchain-exporter/internal/collectors"
	"github.com/chalabi2/blockchain-exporter/internal/config"
	"github.com/chalabi2/blockchain-exporter/internal/logging"
	"github.com/chalabi2/blockchain-exporter/internal/metrics"
	"github.com/chalabi2/blockchain-exporter/internal/rpcclient"
)

// Loop polls one chain forever until its context is cancelled, following
// original_source's poll_blockchain: run, observe duration, compute the
// next sleep from either the normal interval or a failure backoff, sleep,
// repeat. Cancellation is honored at every suspension point.
type Loop struct {
	Blockchain               config.BlockchainConfig
	Registry                 *metrics.Registry
	State                    *metrics.State
	Pool                     *rpcclient.Pool
	RetryPolicy              rpcclient.RetryPolicy
	DefaultIntervalSeconds   int
	MaxFailureBackoffSeconds int
	Logger                   *zap.Logger
}

// Run blocks until ctx is cancelled, polling l.Blockchain on each iteration.
func (l *Loop) Run(ctx context.Context) {
	intervalSeconds := DetermineIntervalSeconds(l.Blockchain.PollInterval, l.DefaultIntervalSeconds)
	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		success, chainIDLabel := l.runOnce(ctx)
		elapsed := time.Since(start)

		labels := []string{l.Blockchain.Name, chainIDLabel}
		l.Registry.PollDuration.WithLabelValues(labels...).Observe(elapsed.Seconds())

		if success {
			consecutiveFailures = 0
		} else {
			consecutiveFailures++
		}
		l.Registry.PollConsecutiveFailures.WithLabelValues(labels...).Set(float64(consecutiveFailures))

		var sleepDuration time.Duration
		if consecutiveFailures > 0 {
			failureBackoff := math.Min(
				float64(intervalSeconds)*math.Pow(2, float64(consecutiveFailures-1)),
				float64(l.MaxFailureBackoffSeconds),
			)
			remaining := failureBackoff - elapsed.Seconds()
			if remaining < 0 {
				remaining = 0
			}
			sleepDuration = time.Duration(remaining * float64(time.Second))
			l.Registry.BackoffDuration.WithLabelValues(labels...).Observe(sleepDuration.Seconds())
		} else {
			remaining := float64(intervalSeconds) - elapsed.Seconds()
			if remaining < 0 {
				remaining = 0
			}
			sleepDuration = time.Duration(remaining * float64(time.Second))
		}

		if sleepDuration <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
		}
	}
}

// runOnce acquires a pooled RPC client and runs one collection pass. On
// success the client is returned to the pool; on failure it is closed and
// the endpoint's circuit breaker records the failure. Returns the
// collection result and the chain-id label in effect for this iteration
// (for metric labels even on failure).
func (l *Loop) runOnce(ctx context.Context) (bool, string) {
	identity := l.Blockchain.Identity()
	currentLabel, ok := l.State.GetCachedChainIDLabel(identity)
	if !ok {
		currentLabel = "unknown"
	}

	client, err := l.Pool.Get(ctx, l.Blockchain.Name, l.Blockchain.RPCURL, func(ctx context.Context) (*rpcclient.Client, error) {
		return rpcclient.Dial(ctx, l.Blockchain.Name, l.Blockchain.RPCURL, l.RetryPolicy, nil)
	})
	if err != nil {
		label, _ := l.State.GetCachedChainIDLabel(identity)
		if label == "" {
			label = "unknown"
		}
		l.Logger.Warn("failed to acquire rpc client", append(logging.ChainFields(l.Blockchain.Name, l.Blockchain.RPCURL, label), zap.Error(err))...)
		l.State.RecordPollFailure(l.Blockchain.Name, identity, label)
		return false, label
	}
	rt := &collectors.Runtime{
		Blockchain: l.Blockchain,
		RPC:        client,
		Registry:   l.Registry,
		State:      l.State,
	}
	client.SetObserver(metrics.NewRPCObserver(l.Registry, l.Blockchain.Name, func() string {
		if rt.ChainIDLabel != "" {
			return rt.ChainIDLabel
		}
		return currentLabel
	}))

	success := collectors.CollectChainMetrics(ctx, rt)

	if success {
		l.Pool.Put(l.Blockchain.RPCURL, client)
		l.State.RecordPollSuccess(l.Blockchain.Name, rt.ChainIDLabel, nil)
	} else {
		l.Pool.RecordFailure(l.Blockchain.RPCURL)
		client.Close()
		l.State.RecordPollFailure(l.Blockchain.Name, identity, rt.ChainIDLabel)
	}

	return success, rt.ChainIDLabel
}
