package collectors

import (
	"math/big"
	"testing"

	"github.com/chalabi2/blockchain-exporter/internal/config"
)

func TestWeiToFloat(t *testing.T) {
	wei := big.NewInt(1_000_000_000)
	if got := weiToFloat(wei); got != 1_000_000_000 {
		t.Errorf("weiToFloat() = %v, want 1e9", got)
	}
}

func TestWeiToEtherFloat(t *testing.T) {
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if got := weiToEtherFloat(oneEther); got != 1 {
		t.Errorf("weiToEtherFloat(1e18 wei) = %v, want 1", got)
	}

	halfEther := new(big.Int).Div(oneEther, big.NewInt(2))
	if got := weiToEtherFloat(halfEther); got != 0.5 {
		t.Errorf("weiToEtherFloat(0.5e18 wei) = %v, want 0.5", got)
	}
}

func TestResolveTransferWindow_ClampsAtGenesis(t *testing.T) {
	c := config.ContractConfig{TransferLookbackBlocks: intPtr(5000)}

	w := resolveTransferWindow(c, 100)
	if w.StartBlock != 0 {
		t.Errorf("StartBlock = %d, want 0 (clamped at genesis)", w.StartBlock)
	}
	if w.EndBlock != 100 {
		t.Errorf("EndBlock = %d, want 100", w.EndBlock)
	}
	if w.Span != 5000 {
		t.Errorf("Span = %d, want 5000", w.Span)
	}
}

func TestResolveTransferWindow_NormalRange(t *testing.T) {
	c := config.ContractConfig{TransferLookbackBlocks: intPtr(1000)}

	w := resolveTransferWindow(c, 50_000)
	if w.StartBlock != 49_000 {
		t.Errorf("StartBlock = %d, want 49000", w.StartBlock)
	}
	if w.EndBlock != 50_000 {
		t.Errorf("EndBlock = %d, want 50000", w.EndBlock)
	}
}

func TestResolveTransferWindow_DefaultsWhenUnset(t *testing.T) {
	c := config.ContractConfig{}

	w := resolveTransferWindow(c, 10_000)
	if w.Span != config.DefaultTransferLookbackBlocks {
		t.Errorf("Span = %d, want default %d", w.Span, config.DefaultTransferLookbackBlocks)
	}
}

func TestBoolLabelOf(t *testing.T) {
	if boolLabelOf(true) != "1" {
		t.Error("boolLabelOf(true) should be \"1\"")
	}
	if boolLabelOf(false) != "0" {
		t.Error("boolLabelOf(false) should be \"0\"")
	}
}

func TestMaxIntMinInt(t *testing.T) {
	if maxInt(3, 7) != 7 {
		t.Error("maxInt(3, 7) should be 7")
	}
	if maxInt(7, 3) != 7 {
		t.Error("maxInt(7, 3) should be 7")
	}
	if minInt(3, 7) != 3 {
		t.Error("minInt(3, 7) should be 3")
	}
	if minInt(7, 3) != 3 {
		t.Error("minInt(7, 3) should be 3")
	}
}

func TestDecimalsLabel_PrefersOverrideThenConfigThenDefault(t *testing.T) {
	configured := 6
	c := config.ContractConfig{Decimals: &configured}

	if got := decimalsLabel(c, nil); got != "6" {
		t.Errorf("decimalsLabel with configured decimals = %q, want 6", got)
	}

	override := 18
	if got := decimalsLabel(c, &override); got != "18" {
		t.Errorf("decimalsLabel with override = %q, want 18 (override wins)", got)
	}

	bare := config.ContractConfig{}
	if got := decimalsLabel(bare, nil); got != "0" {
		t.Errorf("decimalsLabel with nothing configured = %q, want default 0", got)
	}
}

func TestAccountLabels_LowercasesAddress(t *testing.T) {
	l := accountLabels("ethereum", "1", "treasury", "0xABCDEF1234567890ABCDEF1234567890ABCDEF12")
	if l.AccountAddress != "0xabcdef1234567890abcdef1234567890abcdef12" {
		t.Errorf("AccountAddress = %q, want lowercased", l.AccountAddress)
	}
}

func TestContractLabels_LowercasesAddress(t *testing.T) {
	c := config.ContractConfig{Name: "usdc", Address: "0xABCDEF1234567890ABCDEF1234567890ABCDEF12"}
	l := contractLabels("ethereum", "1", c)
	if l.ContractAddress != "0xabcdef1234567890abcdef1234567890abcdef12" {
		t.Errorf("ContractAddress = %q, want lowercased", l.ContractAddress)
	}
}

func TestMaxFloat_ClampsNegativeToZero(t *testing.T) {
	if got := maxFloat(-5.0, 0); got != 0 {
		t.Errorf("maxFloat(-5, 0) = %v, want 0 (clock skew should not go negative)", got)
	}
	if got := maxFloat(12.5, 0); got != 12.5 {
		t.Errorf("maxFloat(12.5, 0) = %v, want 12.5", got)
	}
}

func intPtr(v int) *int { return &v }
