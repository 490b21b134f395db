package collectors

import (
	"context"
	"time"

	"github.com/chalabi2/blockchain-exporter/internal/rpcclient"
)

// recordChainHealth resolves the latest (mandatory) and finalized
// (best-effort) blocks, setting the chain-level gauges. It returns the
// latest block number and whether the mandatory fetch succeeded; the
// transfer-window and caller logic abort the whole iteration on failure,
// matching original_source's _record_chain_health_metrics.
func recordChainHealth(ctx context.Context, rt *Runtime) (uint64, bool) {
	labels := rt.labels()

	head, err := rt.RPC.GetBlock(ctx, rpcclient.TagLatest, 3)
	if err != nil {
		rt.Registry.HeadBlockNumber.WithLabelValues(labels...).Set(0)
		rt.Registry.HeadBlockTimestamp.WithLabelValues(labels...).Set(0)
		rt.Registry.TimeSinceLastBlock.WithLabelValues(labels...).Set(0)
		return 0, false
	}

	rt.Registry.HeadBlockNumber.WithLabelValues(labels...).Set(float64(head.Number))
	rt.Registry.HeadBlockTimestamp.WithLabelValues(labels...).Set(float64(head.Timestamp))
	rt.Registry.TimeSinceLastBlock.WithLabelValues(labels...).Set(
		maxFloat(time.Since(time.Unix(int64(head.Timestamp), 0)).Seconds(), 0),
	)

	finalized, err := rt.RPC.GetBlock(ctx, rpcclient.TagFinalized, 1)
	if err != nil {
		rt.Registry.FinalizedBlockNumber.WithLabelValues(labels...).Set(0)
	} else {
		rt.Registry.FinalizedBlockNumber.WithLabelValues(labels...).Set(float64(finalized.Number))
	}

	return head.Number, true
}
