package collectors

import (
	"context"
	"math/big"

	"github.com/chalabi2/blockchain-exporter/internal/metrics"
	"github.com/chalabi2/blockchain-exporter/internal/rpcclient"
)

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// weiToFloat converts a wei-denominated big.Int to a float64, losing
// precision only in the final digits — acceptable for a gauge value.
func weiToFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}

// weiToEtherFloat converts wei to ether as a float64.
func weiToEtherFloat(wei *big.Int) float64 {
	quotient := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther)
	f, _ := quotient.Float64()
	return f
}

// collectAccountBalances queries balance+code for every enabled top-level
// account, setting balance_eth/balance_wei gauges with the is_contract
// label, and returns the set of processed lowercased addresses so
// collectAdditionalContractAccounts can skip duplicates.
func collectAccountBalances(ctx context.Context, rt *Runtime) map[string]struct{} {
	processed := make(map[string]struct{})

	for _, acct := range rt.Blockchain.EnabledAccounts() {
		base := accountLabels(rt.Blockchain.Name, rt.ChainIDLabel, acct.Name, acct.Address)
		processed[base.AccountAddress] = struct{}{}

		addr := checksum(acct.Address)

		balanceWei, err := rt.RPC.GetBalance(ctx, addr, rpcclient.TagLatest)
		if err != nil {
			setAccountBalanceZero(rt, base)
			clearTokenMetricsForAccount(rt, base, false)
			continue
		}

		code, err := rt.RPC.GetCode(ctx, addr)
		isContract := err == nil && len(code) > 0

		labels := base.WithContractFlag(isContract)
		rt.LabelState.AccountBalanceLabels[labels] = struct{}{}

		rt.Registry.AccountBalanceWei.WithLabelValues(labels.Blockchain, labels.ChainIDLabel, labels.AccountName, labels.AccountAddress, labels.IsContract).Set(weiToFloat(balanceWei))
		rt.Registry.AccountBalanceEth.WithLabelValues(labels.Blockchain, labels.ChainIDLabel, labels.AccountName, labels.AccountAddress, labels.IsContract).Set(weiToEtherFloat(balanceWei))
	}

	return processed
}

func setAccountBalanceZero(rt *Runtime, base metrics.AccountLabels) {
	for _, flag := range []bool{false, true} {
		labels := base.WithContractFlag(flag)
		rt.Registry.AccountBalanceEth.WithLabelValues(labels.Blockchain, labels.ChainIDLabel, labels.AccountName, labels.AccountAddress, labels.IsContract).Set(0)
		rt.Registry.AccountBalanceWei.WithLabelValues(labels.Blockchain, labels.ChainIDLabel, labels.AccountName, labels.AccountAddress, labels.IsContract).Set(0)
	}
}

// clearEthMetricsForAccount removes both is_contract variants of an
// account's ETH balance series, mirroring original_source's
// clear_eth_metrics_for_account.
func clearEthMetricsForAccount(rt *Runtime, base metrics.AccountLabels) {
	for _, flag := range []bool{false, true} {
		labels := base.WithContractFlag(flag)
		rt.Registry.AccountBalanceEth.DeleteLabelValues(labels.Blockchain, labels.ChainIDLabel, labels.AccountName, labels.AccountAddress, labels.IsContract)
		rt.Registry.AccountBalanceWei.DeleteLabelValues(labels.Blockchain, labels.ChainIDLabel, labels.AccountName, labels.AccountAddress, labels.IsContract)
	}
}

// clearTokenMetricsForAccount removes the token-balance series this
// account would have against every configured contract.
func clearTokenMetricsForAccount(rt *Runtime, base metrics.AccountLabels, isContract bool) {
	flag := "0"
	if isContract {
		flag = "1"
	}

	for _, contract := range rt.Blockchain.Contracts {
		tl := metrics.TokenLabels{
			Blockchain:     rt.Blockchain.Name,
			ChainIDLabel:   rt.ChainIDLabel,
			TokenName:      contract.Name,
			TokenAddress:   contract.Address,
			TokenDecimals:  decimalsLabel(contract, nil),
			AccountName:    base.AccountName,
			AccountAddress: base.AccountAddress,
			IsContract:     flag,
		}

		rt.Registry.AccountTokenBalance.DeleteLabelValues(tl.Blockchain, tl.ChainIDLabel, tl.TokenName, tl.TokenAddress, tl.TokenDecimals, tl.AccountName, tl.AccountAddress, tl.IsContract)
		rt.Registry.AccountTokenBalRaw.DeleteLabelValues(tl.Blockchain, tl.ChainIDLabel, tl.TokenName, tl.TokenAddress, tl.TokenDecimals, tl.AccountName, tl.AccountAddress, tl.IsContract)

		delete(rt.LabelState.TokenLabels, tl)
	}
}
