// Package metrics owns every exported Prometheus series and the label
// lifecycle bookkeeping needed to remove a series when it should no longer
// exist (spec.md §3/§4.4).
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blockchain"
const exporterSubsystem = "exporter"

// Registry bundles every gauge/counter/histogram this exporter writes.
// Constructed once per process and registered against a single
// prometheus.Registerer, following the teacher's ref-counted registration
// idiom in metrics.go (registerGauge/registerCounter/... absorbing
// AlreadyRegisteredError).
type Registry struct {
	Up                    prometheus.Gauge
	ConfiguredBlockchains prometheus.Gauge
	PollerThreadCount     prometheus.Gauge

	HeadBlockNumber          *prometheus.GaugeVec
	FinalizedBlockNumber     *prometheus.GaugeVec
	HeadBlockTimestamp       *prometheus.GaugeVec
	TimeSinceLastBlock       *prometheus.GaugeVec
	ConfiguredAccountsCount  *prometheus.GaugeVec
	ConfiguredContractsCount *prometheus.GaugeVec

	PollSuccess             *prometheus.GaugeVec
	PollTimestamp           *prometheus.GaugeVec
	PollDuration            *prometheus.HistogramVec
	PollConsecutiveFailures *prometheus.GaugeVec
	BackoffDuration         *prometheus.HistogramVec

	RPCCallDuration *prometheus.HistogramVec
	RPCErrorTotal   *prometheus.CounterVec

	AccountBalanceEth    *prometheus.GaugeVec
	AccountBalanceWei    *prometheus.GaugeVec
	AccountTokenBalance  *prometheus.GaugeVec
	AccountTokenBalRaw   *prometheus.GaugeVec

	ContractBalanceEth  *prometheus.GaugeVec
	ContractBalanceWei  *prometheus.GaugeVec
	ContractTotalSupply *prometheus.GaugeVec
	TransferCountWindow *prometheus.GaugeVec

	LogChunksCreated     *prometheus.CounterVec
	LogBlocksPerChunk    *prometheus.HistogramVec
	LogChunkDuration     *prometheus.HistogramVec
}

// New builds and registers every series against reg.
func New(reg prometheus.Registerer) (*Registry, error) {
	r := &Registry{
		Up: registerGauge(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: exporterSubsystem, Name: "up",
			Help: "Whether the exporter process is running (always 1).",
		}),
		ConfiguredBlockchains: registerGauge(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: exporterSubsystem, Name: "configured_blockchains",
			Help: "Number of blockchains currently configured.",
		}),
		PollerThreadCount: registerGauge(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: exporterSubsystem, Name: "poller_thread_count",
			Help: "Number of live per-chain poll loops.",
		}),

		HeadBlockNumber: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "chain", Name: "head_block_number",
			Help: "Latest block number observed.",
		}, []string{"blockchain", "chain_id"}),
		FinalizedBlockNumber: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "chain", Name: "finalized_block_number",
			Help: "Finalized block number observed.",
		}, []string{"blockchain", "chain_id"}),
		HeadBlockTimestamp: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "chain", Name: "head_block_timestamp_seconds",
			Help: "Timestamp of the latest observed block.",
		}, []string{"blockchain", "chain_id"}),
		TimeSinceLastBlock: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "chain", Name: "time_since_last_block_seconds",
			Help: "Wall-clock seconds since the latest observed block.",
		}, []string{"blockchain", "chain_id"}),
		ConfiguredAccountsCount: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "chain", Name: "configured_accounts_count",
			Help: "Number of accounts configured for this chain.",
		}, []string{"blockchain", "chain_id"}),
		ConfiguredContractsCount: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "chain", Name: "configured_contracts_count",
			Help: "Number of contracts configured for this chain.",
		}, []string{"blockchain", "chain_id"}),

		PollSuccess: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Name: "poll_success",
			Help: "Whether the last poll iteration succeeded.",
		}, []string{"blockchain", "chain_id"}),
		PollTimestamp: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Name: "poll_timestamp_seconds",
			Help: "Timestamp of the last poll iteration.",
		}, []string{"blockchain", "chain_id"}),
		PollDuration: registerHistogramVec(reg, prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_duration_seconds",
			Help:    "Duration of one poll iteration.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"blockchain", "chain_id"}),
		PollConsecutiveFailures: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Name: "poll_consecutive_failures",
			Help: "Count of consecutive poll failures for this chain.",
		}, []string{"blockchain", "chain_id"}),
		BackoffDuration: registerHistogramVec(reg, prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_backoff_duration_seconds",
			Help:    "Sleep duration chosen by the failure backoff policy.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 900},
		}, []string{"blockchain", "chain_id"}),

		RPCCallDuration: registerHistogramVec(reg, prometheus.HistogramOpts{
			Namespace: namespace, Name: "rpc_call_duration_seconds",
			Help:    "Duration of a successful RPC call including retries.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"blockchain", "chain_id", "operation"}),
		RPCErrorTotal: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_error_total",
			Help: "Count of RPC call attempt failures by classified error type.",
		}, []string{"blockchain", "chain_id", "operation", "error_type"}),

		AccountBalanceEth: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "account", Name: "balance_eth",
			Help: "Account balance denominated in ether.",
		}, []string{"blockchain", "chain_id", "account_name", "account_address", "is_contract"}),
		AccountBalanceWei: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "account", Name: "balance_wei",
			Help: "Account balance denominated in wei.",
		}, []string{"blockchain", "chain_id", "account_name", "account_address", "is_contract"}),
		AccountTokenBalance: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "account", Name: "token_balance",
			Help: "Account ERC-20 token balance normalised by decimals.",
		}, []string{"blockchain", "chain_id", "token_name", "token_address", "token_decimals", "account_name", "account_address", "is_contract"}),
		AccountTokenBalRaw: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "account", Name: "token_balance_raw",
			Help: "Account ERC-20 token balance, raw integer units.",
		}, []string{"blockchain", "chain_id", "token_name", "token_address", "token_decimals", "account_name", "account_address", "is_contract"}),

		ContractBalanceEth: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "contract", Name: "balance_eth",
			Help: "Contract ETH balance denominated in ether.",
		}, []string{"blockchain", "chain_id", "contract_name", "contract_address"}),
		ContractBalanceWei: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "contract", Name: "balance_wei",
			Help: "Contract ETH balance denominated in wei.",
		}, []string{"blockchain", "chain_id", "contract_name", "contract_address"}),
		ContractTotalSupply: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "contract", Name: "token_total_supply",
			Help: "ERC-20 totalSupply(), raw (non-normalised) integer units.",
		}, []string{"blockchain", "chain_id", "contract_name", "contract_address"}),
		TransferCountWindow: registerGaugeVec(reg, prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "contract", Name: "transfer_count_window",
			Help: "Count of Transfer events observed over the lookback window.",
		}, []string{"blockchain", "chain_id", "contract_name", "contract_address", "window_blocks"}),

		LogChunksCreated: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: namespace, Name: "log_chunks_created_total",
			Help: "Count of eth_getLogs chunk attempts issued by the adaptive chunker.",
		}, []string{"blockchain", "chain_id", "contract_name"}),
		LogBlocksPerChunk: registerHistogramVec(reg, prometheus.HistogramOpts{
			Namespace: namespace, Name: "log_blocks_queried_per_chunk",
			Help:    "Block span of each eth_getLogs chunk.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000},
		}, []string{"blockchain", "chain_id", "contract_name"}),
		LogChunkDuration: registerHistogramVec(reg, prometheus.HistogramOpts{
			Namespace: namespace, Name: "log_chunk_duration_seconds",
			Help:    "Duration of each eth_getLogs chunk call.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"blockchain", "chain_id", "contract_name"}),
	}

	r.Up.Set(1)

	return r, nil
}

// safeRemove removes a series if present; removing an absent series is a
// no-op, never an error. This is the "safe_remove" primitive of spec.md
// §4.4, built directly on client_golang's DeleteLabelValues, which already
// has exactly these semantics.
func safeRemove(vec *prometheus.GaugeVec, lvs ...string) {
	vec.DeleteLabelValues(lvs...)
}

func registerGauge(reg prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing
			}
		}
	}
	return g
}

func registerGaugeVec(reg prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	v := prometheus.NewGaugeVec(opts, labels)
	if err := reg.Register(v); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
	}
	return v
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(v); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return v
}

func registerHistogramVec(reg prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(opts, labels)
	if err := reg.Register(v); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return v
}
