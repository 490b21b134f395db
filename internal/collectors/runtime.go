// Package collectors implements the per-chain metric collection routines:
// head/finalized block health, account balances, contract balances and
// supply, and the adaptive eth_getLogs chunker used to count Transfer
// events over a lookback window. Grounded on original_source's collect.py
// and collectors.py.
package collectors

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chalabi2/blockchain-exporter/internal/config"
	"github.com/chalabi2/blockchain-exporter/internal/metrics"
	"github.com/chalabi2/blockchain-exporter/internal/rpcclient"
)

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var erc20ABI abi.ABI

var transferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("collectors: invalid embedded ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// Runtime bundles everything one poll iteration of one chain needs.
type Runtime struct {
	Blockchain   config.BlockchainConfig
	ChainIDLabel string
	RPC          *rpcclient.Client
	Registry     *metrics.Registry
	State        *metrics.State
	LabelState   *metrics.ChainLabelState
}

func (r *Runtime) labels() []string { return []string{r.Blockchain.Name, r.ChainIDLabel} }

func accountLabels(blockchain, chainIDLabel, name, address string) metrics.AccountLabels {
	return metrics.AccountLabels{
		Blockchain:     blockchain,
		ChainIDLabel:   chainIDLabel,
		AccountName:    name,
		AccountAddress: strings.ToLower(address),
	}
}

func contractLabels(blockchain, chainIDLabel string, c config.ContractConfig) metrics.ContractLabels {
	return metrics.ContractLabels{
		Blockchain:      blockchain,
		ChainIDLabel:    chainIDLabel,
		ContractName:    c.Name,
		ContractAddress: strings.ToLower(c.Address),
	}
}

func decimalsLabel(c config.ContractConfig, override *int) string {
	if override != nil {
		return strconv.Itoa(*override)
	}
	return c.DecimalsLabel(nil)
}

func checksum(address string) common.Address { return common.HexToAddress(address) }
