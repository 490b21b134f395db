package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/chalabi2/blockchain-exporter/internal/config"
)

// AccountLabels is the 5-tuple written for one account's ETH balance.
type AccountLabels struct {
	Blockchain     string
	ChainIDLabel   string
	AccountName    string
	AccountAddress string
	IsContract     string
}

func (l AccountLabels) values() []string {
	return []string{l.Blockchain, l.ChainIDLabel, l.AccountName, l.AccountAddress, l.IsContract}
}

// WithContractFlag returns a copy of l with IsContract set from a bool.
func (l AccountLabels) WithContractFlag(isContract bool) AccountLabels {
	l.IsContract = boolLabel(isContract)
	return l
}

func boolLabel(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ContractLabels is the 4-tuple written for one contract's ETH balance/supply.
type ContractLabels struct {
	Blockchain      string
	ChainIDLabel    string
	ContractName    string
	ContractAddress string
}

func (l ContractLabels) values() []string {
	return []string{l.Blockchain, l.ChainIDLabel, l.ContractName, l.ContractAddress}
}

// ContractTransferLabels is the 5-tuple written for one contract's transfer count.
type ContractTransferLabels struct {
	Blockchain      string
	ChainIDLabel    string
	ContractName    string
	ContractAddress string
	WindowBlocks    string
}

func (l ContractTransferLabels) values() []string {
	return []string{l.Blockchain, l.ChainIDLabel, l.ContractName, l.ContractAddress, l.WindowBlocks}
}

// TokenLabels is the 8-tuple written for one account's token balance against one contract.
type TokenLabels struct {
	Blockchain     string
	ChainIDLabel   string
	TokenName      string
	TokenAddress   string
	TokenDecimals  string
	AccountName    string
	AccountAddress string
	IsContract     string
}

func (l TokenLabels) values() []string {
	return []string{l.Blockchain, l.ChainIDLabel, l.TokenName, l.TokenAddress, l.TokenDecimals, l.AccountName, l.AccountAddress, l.IsContract}
}

// ChainLabelState is the per-chain runtime state constructed anew each
// poll: everything needed to undo this iteration's writes on failure
// (spec.md §3 "Per-chain runtime state").
type ChainLabelState struct {
	ChainIDLabel          string
	AccountBalanceLabels  map[AccountLabels]struct{}
	ContractBalanceLabels map[ContractLabels]struct{}
	TransferLabels        map[ContractTransferLabels]struct{}
	TokenLabels           map[TokenLabels]struct{}
}

// NewChainLabelState constructs an empty runtime state for one iteration.
func NewChainLabelState(chainIDLabel string) *ChainLabelState {
	return &ChainLabelState{
		ChainIDLabel:          chainIDLabel,
		AccountBalanceLabels:  make(map[AccountLabels]struct{}),
		ContractBalanceLabels: make(map[ContractLabels]struct{}),
		TransferLabels:        make(map[ContractTransferLabels]struct{}),
		TokenLabels:           make(map[TokenLabels]struct{}),
	}
}

type healthKey struct {
	Name         string
	ChainIDLabel string
}

// State is the process-wide bookkeeping described in spec.md §3:
// configured_chains, resolved_chain_ids, chain_health, chain_last_success,
// label_cache — all guarded by one lock, following DESIGN_NOTES' advice to
// model these as a single encapsulated value.
type State struct {
	reg *Registry

	mu                sync.Mutex
	configuredChains  map[config.Identity]struct{}
	resolvedChainIDs  map[config.Identity]string
	chainHealth       map[healthKey]bool
	chainLastSuccess  map[healthKey]float64
	labelCache        map[config.Identity]*ChainLabelState
}

// NewState builds the process-wide state bound to reg.
func NewState(reg *Registry) *State {
	return &State{
		reg:              reg,
		configuredChains: make(map[config.Identity]struct{}),
		resolvedChainIDs: make(map[config.Identity]string),
		chainHealth:      make(map[healthKey]bool),
		chainLastSuccess: make(map[healthKey]float64),
		labelCache:       make(map[config.Identity]*ChainLabelState),
	}
}

// SetConfiguredBlockchains rebuilds the configured-chains set and updates
// the configured_blockchains gauge.
func (s *State) SetConfiguredBlockchains(chains []config.BlockchainConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configuredChains = make(map[config.Identity]struct{}, len(chains))
	for _, c := range chains {
		s.configuredChains[c.Identity()] = struct{}{}
	}
	s.reg.ConfiguredBlockchains.Set(float64(len(chains)))
}

// ConfiguredChainCount returns how many chains are currently configured.
func (s *State) ConfiguredChainCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.configuredChains)
}

// GetCachedChainIDLabel returns the previously resolved chain-id label, if any.
func (s *State) GetCachedChainIDLabel(id config.Identity) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	label, ok := s.resolvedChainIDs[id]
	return label, ok
}

// UpdateChainLabelCache commits one successful iteration's label set.
func (s *State) UpdateChainLabelCache(id config.Identity, state *ChainLabelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labelCache[id] = state
}

// HandleChainIDUpdate implements spec.md §4.4's handle_chain_id_update: if
// the previous label equals the new one, do nothing; otherwise clear
// cached metrics (falling back to a direct chain-level removal if nothing
// was cached), then record the new label.
func (s *State) HandleChainIDUpdate(id config.Identity, name, newLabel string) {
	s.mu.Lock()
	previous, hadPrevious := s.resolvedChainIDs[id]
	s.mu.Unlock()

	if hadPrevious && previous == newLabel {
		return
	}

	if hadPrevious {
		if !s.clearCachedMetricsLocked(id) {
			s.removeChainMetricsLocked(name, previous)
		}
	}

	s.mu.Lock()
	s.resolvedChainIDs[id] = newLabel
	s.mu.Unlock()
}

// ClearCachedMetrics pops the chain's label-cache entry and safe-removes
// every series recorded there, returning whether anything was cleared.
func (s *State) ClearCachedMetrics(id config.Identity, name string) bool {
	return s.clearCachedMetricsLocked(id)
}

func (s *State) clearCachedMetricsLocked(id config.Identity) bool {
	s.mu.Lock()
	entry, ok := s.labelCache[id]
	if ok {
		delete(s.labelCache, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	s.removeChainMetricsLocked(idName(id), entry.ChainIDLabel)

	for l := range entry.AccountBalanceLabels {
		safeRemove(s.reg.AccountBalanceEth, l.values()...)
		safeRemove(s.reg.AccountBalanceWei, l.values()...)
	}
	for l := range entry.ContractBalanceLabels {
		safeRemove(s.reg.ContractBalanceEth, l.values()...)
		safeRemove(s.reg.ContractBalanceWei, l.values()...)
		safeRemove(s.reg.ContractTotalSupply, l.values()...)
	}
	for l := range entry.TransferLabels {
		safeRemove(s.reg.TransferCountWindow, l.values()...)
	}
	for l := range entry.TokenLabels {
		safeRemove(s.reg.AccountTokenBalance, l.values()...)
		safeRemove(s.reg.AccountTokenBalRaw, l.values()...)
	}

	return true
}

func idName(id config.Identity) string { return id.Name }

// removeChainMetricsLocked safe-removes every chain-level gauge for
// (name, chainIDLabel) and deletes its health/last-success entries.
// Histograms are left in place per spec.md §4.4.
func (s *State) removeChainMetricsLocked(name, chainIDLabel string) {
	labels := []string{name, chainIDLabel}
	safeRemove(s.reg.HeadBlockNumber, labels...)
	safeRemove(s.reg.FinalizedBlockNumber, labels...)
	safeRemove(s.reg.HeadBlockTimestamp, labels...)
	safeRemove(s.reg.TimeSinceLastBlock, labels...)
	safeRemove(s.reg.ConfiguredAccountsCount, labels...)
	safeRemove(s.reg.ConfiguredContractsCount, labels...)
	safeRemove(s.reg.PollSuccess, labels...)
	safeRemove(s.reg.PollTimestamp, labels...)
	safeRemove(s.reg.PollConsecutiveFailures, labels...)

	key := healthKey{Name: name, ChainIDLabel: chainIDLabel}
	s.mu.Lock()
	delete(s.chainHealth, key)
	delete(s.chainLastSuccess, key)
	s.mu.Unlock()
}

// ResetChainMetrics sets head/finalized/timestamp/time-since/configured-count
// gauges to zero, making stale readings obvious rather than silent.
func (s *State) ResetChainMetrics(name, chainIDLabel string) {
	labels := []string{name, chainIDLabel}
	s.reg.HeadBlockNumber.WithLabelValues(labels...).Set(0)
	s.reg.FinalizedBlockNumber.WithLabelValues(labels...).Set(0)
	s.reg.HeadBlockTimestamp.WithLabelValues(labels...).Set(0)
	s.reg.TimeSinceLastBlock.WithLabelValues(labels...).Set(0)
	s.reg.ConfiguredAccountsCount.WithLabelValues(labels...).Set(0)
	s.reg.ConfiguredContractsCount.WithLabelValues(labels...).Set(0)
}

// RecordPollSuccess sets poll_success=1 and poll_timestamp=now (or the
// given timestamp), and marks the chain healthy with a fresh last-success.
func (s *State) RecordPollSuccess(name, chainIDLabel string, timestamp *float64) {
	labels := []string{name, chainIDLabel}
	ts := nowSeconds()
	if timestamp != nil {
		ts = *timestamp
	}

	s.reg.PollSuccess.WithLabelValues(labels...).Set(1)
	s.reg.PollTimestamp.WithLabelValues(labels...).Set(ts)

	key := healthKey{Name: name, ChainIDLabel: chainIDLabel}
	s.mu.Lock()
	s.chainHealth[key] = true
	s.chainLastSuccess[key] = ts
	s.mu.Unlock()
}

// RecordPollFailure implements spec.md §4.4's failure path: zero out
// poll_success/poll_timestamp, reset the chain gauges, clear cached
// metrics, and mark the chain unhealthy. It does not touch
// chain_last_success beyond what ClearCachedMetrics does.
func (s *State) RecordPollFailure(name string, id config.Identity, chainIDLabel string) {
	labels := []string{name, chainIDLabel}
	s.reg.PollSuccess.WithLabelValues(labels...).Set(0)
	s.reg.PollTimestamp.WithLabelValues(labels...).Set(0)

	s.ResetChainMetrics(name, chainIDLabel)
	s.clearCachedMetricsLocked(id)

	key := healthKey{Name: name, ChainIDLabel: chainIDLabel}
	s.mu.Lock()
	s.chainHealth[key] = false
	s.mu.Unlock()
}

// ChainStatus is a read-only snapshot of one chain's health for the HTTP handlers.
type ChainStatus struct {
	Blockchain          string
	ChainIDLabel        string
	Healthy             bool
	LastSuccessSeconds  float64
	HasLastSuccess      bool
}

// Snapshot returns a sorted snapshot of every known chain's health, plus
// the number of configured chains.
func (s *State) Snapshot() (configured int, statuses []ChainStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configured = len(s.configuredChains)
	statuses = make([]ChainStatus, 0, len(s.chainHealth))
	for key, healthy := range s.chainHealth {
		last, hasLast := s.chainLastSuccess[key]
		statuses = append(statuses, ChainStatus{
			Blockchain:         key.Name,
			ChainIDLabel:       key.ChainIDLabel,
			Healthy:            healthy,
			LastSuccessSeconds: last,
			HasLastSuccess:     hasLast,
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Blockchain != statuses[j].Blockchain {
			return statuses[i].Blockchain < statuses[j].Blockchain
		}
		return statuses[i].ChainIDLabel < statuses[j].ChainIDLabel
	})
	return configured, statuses
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
