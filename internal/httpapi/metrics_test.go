package httpapi

import (
	"strings"
	"testing"
)

func TestFormatMetricsPayload_DropsChainIDTypeComment(t *testing.T) {
	payload := []byte("# HELP blockchain_chain_id chain id\n# TYPE blockchain_chain_id gauge\nblockchain_chain_id{blockchain=\"ethereum\"} 1\n")

	got := string(formatMetricsPayload(payload))

	if strings.Contains(got, "# TYPE blockchain_chain_id") {
		t.Errorf("expected the chain_id TYPE comment to be dropped, got:\n%s", got)
	}
	if !strings.Contains(got, "# HELP blockchain_chain_id chain id") {
		t.Errorf("expected the HELP comment to survive, got:\n%s", got)
	}
}

func TestFormatMetricsPayload_RewritesScientificNotation(t *testing.T) {
	payload := []byte("blockchain_head_block_number{blockchain=\"ethereum\",chain_id=\"1\"} 1.234e+07\n")

	got := string(formatMetricsPayload(payload))

	if strings.Contains(got, "e+07") {
		t.Errorf("expected scientific notation to be rewritten, got: %q", got)
	}
	if !strings.Contains(got, "12340000") {
		t.Errorf("expected fixed-point value 12340000, got: %q", got)
	}
}

func TestRewriteScientificNotation_LeavesCommentsAlone(t *testing.T) {
	line := "# HELP blockchain_head_block_number 1.5e+10 in the help text"
	if got := rewriteScientificNotation(line); got != line {
		t.Errorf("comment lines should pass through unchanged, got %q", got)
	}
}

func TestRewriteScientificNotation_LeavesPlainValuesAlone(t *testing.T) {
	line := `blockchain_poll_success{blockchain="ethereum",chain_id="1"} 1`
	if got := rewriteScientificNotation(line); got != line {
		t.Errorf("plain decimal values should be unchanged, got %q", got)
	}
}

func TestRewriteScientificNotation_HandlesNegativeExponent(t *testing.T) {
	line := `blockchain_account_balance_eth{blockchain="ethereum",chain_id="1",account="x",address="0xabc",is_contract="0"} 5e-07`
	got := rewriteScientificNotation(line)
	if strings.Contains(got, "e-07") {
		t.Errorf("expected rewritten value, got %q", got)
	}
	if !strings.Contains(got, "0.0000005") {
		t.Errorf("expected 0.0000005, got %q", got)
	}
}
