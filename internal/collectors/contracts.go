package collectors

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chalabi2/blockchain-exporter/internal/config"
	"github.com/chalabi2/blockchain-exporter/internal/metrics"
	"github.com/chalabi2/blockchain-exporter/internal/rpcclient"
	"github.com/chalabi2/blockchain-exporter/internal/rpcerrors"
)

// Adaptive eth_getLogs chunker constants, ported verbatim from
// original_source's collectors.py.
const (
	logSplitMinBlockSpan    = 1
	logMaxChunkSize         = 2000
	logMinChunkSize         = 100
	logTargetResponseSize   = 5000
	logChunkReductionFactor = 0.75
	logChunkGrowthFactor    = 1.25
)

// transferWindow is the inclusive block range scanned for Transfer events.
type transferWindow struct {
	StartBlock uint64
	EndBlock   uint64
	Span       int
}

func resolveTransferWindow(c config.ContractConfig, latestBlock uint64) transferWindow {
	span := c.TransferLookbackSpan()
	start := int64(latestBlock) - int64(span)
	if start < 0 {
		start = 0
	}
	return transferWindow{StartBlock: uint64(start), EndBlock: latestBlock, Span: span}
}

// collectContractBalances collects ETH balance, totalSupply, and Transfer
// count for every enabled contract, mirroring record_contract_balances.
func collectContractBalances(ctx context.Context, rt *Runtime, latestBlock uint64) {
	for _, contract := range rt.Blockchain.EnabledContracts() {
		cl := contractLabels(rt.Blockchain.Name, rt.ChainIDLabel, contract)
		rt.LabelState.ContractBalanceLabels[cl] = struct{}{}

		window := resolveTransferWindow(contract, latestBlock)
		tl := metrics.ContractTransferLabels{
			Blockchain:      cl.Blockchain,
			ChainIDLabel:    cl.ChainIDLabel,
			ContractName:    cl.ContractName,
			ContractAddress: cl.ContractAddress,
			WindowBlocks:    big.NewInt(int64(window.Span)).String(),
		}
		rt.LabelState.TransferLabels[tl] = struct{}{}

		addr := checksum(contract.Address)

		balanceWei, err := rt.RPC.GetBalance(ctx, addr, rpcclient.TagLatest)
		if err != nil {
			setContractBalanceZero(rt, cl, tl)
			continue
		}

		totalSupply := collectTotalSupply(ctx, rt, contract, addr)
		transferCount := collectTransferCount(ctx, rt, contract, addr, window)

		rt.Registry.ContractBalanceEth.WithLabelValues(cl.values()...).Set(weiToEtherFloat(balanceWei))
		rt.Registry.ContractBalanceWei.WithLabelValues(cl.values()...).Set(weiToFloat(balanceWei))
		rt.Registry.ContractTotalSupply.WithLabelValues(cl.values()...).Set(weiToFloat(totalSupply))

		if transferCount != nil {
			rt.Registry.TransferCountWindow.WithLabelValues(tl.values()...).Set(float64(*transferCount))
		} else {
			rt.Registry.TransferCountWindow.WithLabelValues(tl.values()...).Set(0)
		}
	}
}

func setContractBalanceZero(rt *Runtime, cl metrics.ContractLabels, tl metrics.ContractTransferLabels) {
	rt.Registry.ContractBalanceEth.WithLabelValues(cl.values()...).Set(0)
	rt.Registry.ContractBalanceWei.WithLabelValues(cl.values()...).Set(0)
	rt.Registry.ContractTotalSupply.WithLabelValues(cl.values()...).Set(0)
	rt.Registry.TransferCountWindow.WithLabelValues(tl.values()...).Set(0)
}

// collectTotalSupply calls ERC-20 totalSupply(); best-effort, one attempt,
// defaults to zero on failure.
func collectTotalSupply(ctx context.Context, rt *Runtime, contract config.ContractConfig, addr common.Address) *big.Int {
	out, err := rt.RPC.CallContractFunction(ctx, addr, erc20ABI, "totalSupply")
	if err != nil {
		return big.NewInt(0)
	}

	values, err := erc20ABI.Unpack("totalSupply", out)
	if err != nil || len(values) == 0 {
		return big.NewInt(0)
	}

	supply, ok := values[0].(*big.Int)
	if !ok {
		return big.NewInt(0)
	}
	return supply
}

// collectAdditionalContractAccounts polls the token balance of every
// enabled account embedded under a contract that wasn't already seen as
// a top-level account, mirroring record_additional_contract_accounts.
func collectAdditionalContractAccounts(ctx context.Context, rt *Runtime, processed map[string]struct{}) {
	for _, contract := range rt.Blockchain.EnabledContracts() {
		for _, acct := range contract.EnabledAccounts() {
			base := accountLabels(rt.Blockchain.Name, rt.ChainIDLabel, acct.Name, acct.Address)
			if _, seen := processed[base.AccountAddress]; seen {
				continue
			}
			processed[base.AccountAddress] = struct{}{}

			clearEthMetricsForAccount(rt, base)

			addr := checksum(acct.Address)
			code, err := rt.RPC.GetCode(ctx, addr)
			if err != nil {
				recordTokenBalanceZero(rt, contract, base, false)
				clearEthMetricsForAccount(rt, base)
				continue
			}
			isContract := len(code) > 0

			recordTokenBalance(ctx, rt, contract, addr, base, isContract)
		}
	}
}

func recordTokenBalance(ctx context.Context, rt *Runtime, contract config.ContractConfig, accountAddr common.Address, base metrics.AccountLabels, isContract bool) {
	contractAddr := checksum(contract.Address)

	out, err := rt.RPC.CallContractFunction(ctx, contractAddr, erc20ABI, "balanceOf", accountAddr)
	if err != nil {
		recordTokenBalanceZero(rt, contract, base, isContract)
		return
	}

	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) == 0 {
		recordTokenBalanceZero(rt, contract, base, isContract)
		return
	}
	balanceRaw, ok := values[0].(*big.Int)
	if !ok {
		recordTokenBalanceZero(rt, contract, base, isContract)
		return
	}

	decimals := resolveDecimals(ctx, rt, contract, contractAddr)
	decLabel := decimalsLabel(contract, &decimals)

	normalized := new(big.Float).Quo(
		new(big.Float).SetInt(balanceRaw),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	)
	normalizedFloat, _ := normalized.Float64()

	tl := metrics.TokenLabels{
		Blockchain: rt.Blockchain.Name, ChainIDLabel: rt.ChainIDLabel,
		TokenName: contract.Name, TokenAddress: contract.Address, TokenDecimals: decLabel,
		AccountName: base.AccountName, AccountAddress: base.AccountAddress,
		IsContract: boolLabelOf(isContract),
	}
	rt.LabelState.TokenLabels[tl] = struct{}{}

	rt.Registry.AccountTokenBalance.WithLabelValues(tl.values()...).Set(normalizedFloat)
	rt.Registry.AccountTokenBalRaw.WithLabelValues(tl.values()...).Set(weiToFloat(balanceRaw))
}

func recordTokenBalanceZero(rt *Runtime, contract config.ContractConfig, base metrics.AccountLabels, isContract bool) {
	tl := metrics.TokenLabels{
		Blockchain: rt.Blockchain.Name, ChainIDLabel: rt.ChainIDLabel,
		TokenName: contract.Name, TokenAddress: contract.Address, TokenDecimals: decimalsLabel(contract, nil),
		AccountName: base.AccountName, AccountAddress: base.AccountAddress,
		IsContract: boolLabelOf(isContract),
	}
	rt.LabelState.TokenLabels[tl] = struct{}{}

	rt.Registry.AccountTokenBalance.WithLabelValues(tl.values()...).Set(0)
	rt.Registry.AccountTokenBalRaw.WithLabelValues(tl.values()...).Set(0)
}

func boolLabelOf(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// resolveDecimals returns the configured fixed decimals if set; otherwise
// it reads decimals() best-effort (one attempt), falling back to
// DefaultTokenDecimals if that call fails.
func resolveDecimals(ctx context.Context, rt *Runtime, contract config.ContractConfig, contractAddr common.Address) int {
	if contract.Decimals != nil {
		return *contract.Decimals
	}

	out, err := rt.RPC.CallContractFunction(ctx, contractAddr, erc20ABI, "decimals")
	if err != nil {
		return config.DefaultTokenDecimals
	}
	values, err := erc20ABI.Unpack("decimals", out)
	if err != nil || len(values) == 0 {
		return config.DefaultTokenDecimals
	}
	d, ok := values[0].(uint8)
	if !ok {
		return config.DefaultTokenDecimals
	}
	return int(d)
}

// blockRange is one [start, end] inclusive span awaiting a log query.
type blockRange struct {
	start, end uint64
}

// collectTransferCount counts Transfer events over window using the
// adaptive chunker: an explicit LIFO stack of block ranges, splitting
// any range wider than the current chunk size, shrinking the chunk size
// when a response is large or a "response too big" RPC error is hit, and
// growing it when responses run small. Returns nil if any chunk fails
// for a reason other than response-too-big, matching
// _collect_contract_transfer_count's None-on-failure contract.
func collectTransferCount(ctx context.Context, rt *Runtime, contract config.ContractConfig, addr common.Address, window transferWindow) *int {
	totalLogs := 0
	chunkSize := logMaxChunkSize

	ranges := []blockRange{{start: window.StartBlock, end: window.EndBlock}}

	for len(ranges) > 0 {
		r := ranges[len(ranges)-1]
		ranges = ranges[:len(ranges)-1]

		if r.start > r.end {
			continue
		}

		blockSpan := r.end - r.start + 1

		if blockSpan > uint64(chunkSize) {
			chunkEnd := r.start + uint64(chunkSize) - 1
			ranges = append(ranges, blockRange{start: chunkEnd + 1, end: r.end})
			ranges = append(ranges, blockRange{start: r.start, end: chunkEnd})
			continue
		}

		rt.Registry.LogChunksCreated.WithLabelValues(rt.Blockchain.Name, rt.ChainIDLabel, contract.Name).Inc()

		chunkStart := time.Now()
		logs, err := rt.RPC.GetLogs(ctx, rpcclient.LogsQuery{
			Address:   addr,
			Topics:    [][]common.Hash{{transferEventTopic}},
			FromBlock: r.start,
			ToBlock:   r.end,
		})
		chunkDuration := time.Since(chunkStart).Seconds()

		rt.Registry.LogBlocksPerChunk.WithLabelValues(rt.Blockchain.Name, rt.ChainIDLabel, contract.Name).Observe(float64(blockSpan))
		rt.Registry.LogChunkDuration.WithLabelValues(rt.Blockchain.Name, rt.ChainIDLabel, contract.Name).Observe(chunkDuration)

		if err != nil {
			if rpcerrors.IsResponseTooBig(err) && blockSpan > logSplitMinBlockSpan {
				chunkSize = maxInt(int(float64(chunkSize)*logChunkReductionFactor), logMinChunkSize)

				if blockSpan > uint64(chunkSize) {
					chunkEnd := r.start + uint64(chunkSize) - 1
					ranges = append(ranges, blockRange{start: chunkEnd + 1, end: r.end})
					ranges = append(ranges, blockRange{start: r.start, end: chunkEnd})
				} else {
					mid := r.start + (r.end-r.start)/2
					ranges = append(ranges, blockRange{start: mid + 1, end: r.end})
					ranges = append(ranges, blockRange{start: r.start, end: mid})
				}
				continue
			}

			return nil
		}

		totalLogs += len(logs)

		if len(logs) > logTargetResponseSize {
			newSize := maxInt(int(float64(chunkSize)*logChunkReductionFactor), logMinChunkSize)
			if newSize < chunkSize {
				chunkSize = newSize
			}
		} else if len(logs) < logTargetResponseSize/4 && chunkSize < logMaxChunkSize {
			newSize := minInt(int(float64(chunkSize)*logChunkGrowthFactor), logMaxChunkSize)
			if newSize > chunkSize {
				chunkSize = newSize
			}
		}
	}

	return &totalLogs
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// maxFloat clamps a to be no less than b, used for time_since_last_block_seconds
// so clock skew between the node and the poller never reports a negative age.
func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
