package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/chalabi2/blockchain-exporter/internal/config"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	reg, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return NewState(reg)
}

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, lvs ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := vec.WithLabelValues(lvs...).Write(m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestState_SetConfiguredBlockchains(t *testing.T) {
	s := newTestState(t)
	chains := []config.BlockchainConfig{
		{Name: "ethereum", RPCURL: "https://rpc.example"},
		{Name: "polygon", RPCURL: "https://polygon.example"},
	}
	s.SetConfiguredBlockchains(chains)

	if got := s.ConfiguredChainCount(); got != 2 {
		t.Errorf("ConfiguredChainCount() = %d, want 2", got)
	}
	if got := gaugeValue(t, s.reg.ConfiguredAccountsCount, "ethereum", "1"); got != 0 {
		t.Errorf("unset series should read 0, got %v", got)
	}
}

func TestState_HandleChainIDUpdate_NoopWhenUnchanged(t *testing.T) {
	s := newTestState(t)
	id := config.Identity{Name: "ethereum", RPCURL: "https://rpc.example"}

	s.HandleChainIDUpdate(id, "ethereum", "1")
	label, ok := s.GetCachedChainIDLabel(id)
	if !ok || label != "1" {
		t.Fatalf("expected cached label 1, got (%q, %v)", label, ok)
	}

	// Seed a label-cache entry, then re-apply the same label: it must survive.
	ls := NewChainLabelState("1")
	ls.AccountBalanceLabels[AccountLabels{Blockchain: "ethereum", ChainIDLabel: "1", AccountName: "treasury", AccountAddress: "0xabc", IsContract: "0"}] = struct{}{}
	s.UpdateChainLabelCache(id, ls)

	s.HandleChainIDUpdate(id, "ethereum", "1")

	if !s.ClearCachedMetrics(id, "ethereum") {
		t.Error("expected the label-cache entry to still be present after a same-label update")
	}
}

func TestState_HandleChainIDUpdate_ClearsOnChange(t *testing.T) {
	s := newTestState(t)
	id := config.Identity{Name: "ethereum", RPCURL: "https://rpc.example"}

	s.HandleChainIDUpdate(id, "ethereum", "1")
	ls := NewChainLabelState("1")
	ls.AccountBalanceLabels[AccountLabels{Blockchain: "ethereum", ChainIDLabel: "1", AccountName: "treasury", AccountAddress: "0xabc", IsContract: "0"}] = struct{}{}
	s.UpdateChainLabelCache(id, ls)

	s.HandleChainIDUpdate(id, "ethereum", "2")

	label, ok := s.GetCachedChainIDLabel(id)
	if !ok || label != "2" {
		t.Fatalf("expected cached label to move to 2, got (%q, %v)", label, ok)
	}
	if s.ClearCachedMetrics(id, "ethereum") {
		t.Error("expected the old label's cache entry to already have been cleared by the chain-id change")
	}
}

func TestState_RecordPollSuccessThenFailure(t *testing.T) {
	s := newTestState(t)
	id := config.Identity{Name: "ethereum", RPCURL: "https://rpc.example"}
	s.SetConfiguredBlockchains([]config.BlockchainConfig{{Name: "ethereum", RPCURL: "https://rpc.example"}})

	ts := 12345.0
	s.RecordPollSuccess("ethereum", "1", &ts)

	configured, statuses := s.Snapshot()
	if configured != 1 {
		t.Fatalf("configured = %d, want 1", configured)
	}
	if len(statuses) != 1 || !statuses[0].Healthy {
		t.Fatalf("expected one healthy chain status, got %+v", statuses)
	}
	if statuses[0].LastSuccessSeconds != ts {
		t.Errorf("LastSuccessSeconds = %v, want %v", statuses[0].LastSuccessSeconds, ts)
	}

	s.RecordPollFailure("ethereum", id, "1")

	_, statuses = s.Snapshot()
	if len(statuses) != 1 || statuses[0].Healthy {
		t.Fatalf("expected the chain to be marked unhealthy after failure, got %+v", statuses)
	}
}

func TestState_ClearCachedMetrics_ReturnsFalseWhenNothingCached(t *testing.T) {
	s := newTestState(t)
	id := config.Identity{Name: "ethereum", RPCURL: "https://rpc.example"}

	if s.ClearCachedMetrics(id, "ethereum") {
		t.Error("expected false when no label-cache entry exists")
	}
}

func TestState_SnapshotReturnsChainsSortedByNameThenChainID(t *testing.T) {
	s := newTestState(t)
	s.RecordPollSuccess("polygon", "137", nil)
	s.RecordPollSuccess("ethereum", "1", nil)
	s.RecordPollSuccess("ethereum", "5", nil)

	_, statuses := s.Snapshot()
	if len(statuses) != 3 {
		t.Fatalf("len(statuses) = %d, want 3", len(statuses))
	}
	for i := 1; i < len(statuses); i++ {
		prev, cur := statuses[i-1], statuses[i]
		if prev.Blockchain > cur.Blockchain {
			t.Fatalf("statuses not sorted by blockchain: %+v before %+v", prev, cur)
		}
		if prev.Blockchain == cur.Blockchain && prev.ChainIDLabel > cur.ChainIDLabel {
			t.Fatalf("statuses not sorted by chain id within blockchain: %+v before %+v", prev, cur)
		}
	}
}

func TestAccountLabels_WithContractFlag(t *testing.T) {
	l := AccountLabels{Blockchain: "ethereum", ChainIDLabel: "1", AccountName: "vault", AccountAddress: "0xabc"}
	eoa := l.WithContractFlag(false)
	contract := l.WithContractFlag(true)

	if eoa.IsContract != "0" {
		t.Errorf("eoa.IsContract = %q, want 0", eoa.IsContract)
	}
	if contract.IsContract != "1" {
		t.Errorf("contract.IsContract = %q, want 1", contract.IsContract)
	}
}
