package collectors

import (
	"context"
	"strconv"

	"github.com/chalabi2/blockchain-exporter/internal/config"
	"github.com/chalabi2/blockchain-exporter/internal/metrics"
)

// CollectChainMetrics runs one full poll iteration for rt.Blockchain:
// resolve the chain-id label, record head/finalized block health (gating
// the rest of the iteration), then contract balances, account balances,
// and contract-embedded account token balances. Returns whether the
// iteration should be considered a success, mirroring
// collect_chain_metrics_sync's bool return.
func CollectChainMetrics(ctx context.Context, rt *Runtime) bool {
	identity := rt.Blockchain.Identity()

	resolveChainIDLabel(ctx, rt, identity)

	rt.LabelState = metrics.NewChainLabelState(rt.ChainIDLabel)

	latestBlock, ok := recordChainHealth(ctx, rt)
	if !ok {
		return false
	}

	labels := rt.labels()
	rt.Registry.ConfiguredAccountsCount.WithLabelValues(labels...).Set(float64(len(rt.Blockchain.EnabledAccounts())))
	rt.Registry.ConfiguredContractsCount.WithLabelValues(labels...).Set(float64(len(rt.Blockchain.EnabledContracts())))

	collectContractBalances(ctx, rt, latestBlock)

	processed := collectAccountBalances(ctx, rt)
	collectAdditionalContractAccounts(ctx, rt, processed)

	rt.State.UpdateChainLabelCache(identity, rt.LabelState)

	return true
}

// resolveChainIDLabel fetches eth_chainId (best-effort) and updates the
// cached label, falling back to the previous label or "unknown",
// matching original_source's _resolve_chain_id_label.
func resolveChainIDLabel(ctx context.Context, rt *Runtime, identity config.Identity) {
	if cached, ok := rt.State.GetCachedChainIDLabel(identity); ok {
		rt.ChainIDLabel = cached
	} else {
		rt.ChainIDLabel = "unknown"
	}

	chainID, err := rt.RPC.GetChainID(ctx)
	if err != nil {
		return
	}

	label := strconv.FormatUint(chainID.Uint64(), 10)
	rt.State.HandleChainIDUpdate(identity, rt.Blockchain.Name, label)
	rt.ChainIDLabel = label
}
