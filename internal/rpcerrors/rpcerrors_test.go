package rpcerrors

import (
	"errors"
	"testing"
)

func TestClassify_ByMessage(t *testing.T) {
	cases := []struct {
		msg  string
		want Kind
	}{
		{"context deadline exceeded", KindTimeout},
		{"i/o timeout", KindTimeout},
		{"dial tcp: connection refused", KindConnection},
		{"no such host", KindConnection},
		{"unexpected EOF", KindConnection},
		{"something unrelated", KindUnknown},
	}

	for _, c := range cases {
		got := Classify(errors.New(c.msg))
		if got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestClassify_PreservesExistingTag(t *testing.T) {
	tagged := New(KindValidation, "bad address", nil)

	if got := Classify(tagged); got != KindValidation {
		t.Errorf("Classify(tagged) = %v, want %v", got, KindValidation)
	}
}

type fakeRPCError struct{ code int }

func (e *fakeRPCError) Error() string { return "rpc error" }
func (e *fakeRPCError) ErrorCode() int { return e.code }

func TestClassify_RPCErrorIsProtocol(t *testing.T) {
	err := &fakeRPCError{code: -32000}
	if got := Classify(err); got != KindProtocol {
		t.Errorf("Classify(rpc error) = %v, want %v", got, KindProtocol)
	}
}

func TestWrap_CapturesRPCErrorCode(t *testing.T) {
	err := &fakeRPCError{code: -32000}
	wrapped := Wrap(err, "eth_getLogs", "")

	if wrapped.RPCErrorCode == nil || *wrapped.RPCErrorCode != -32000 {
		t.Errorf("expected RPCErrorCode=-32000, got %v", wrapped.RPCErrorCode)
	}
	if wrapped.Operation != "eth_getLogs" {
		t.Errorf("expected operation eth_getLogs, got %q", wrapped.Operation)
	}
}

func TestWrap_IdempotentOnTaggedError(t *testing.T) {
	original := New(KindTimeout, "slow", nil)
	wrapped := Wrap(original, "some_other_op", "ignored")

	if wrapped != original {
		t.Error("Wrap should return the same tagged error unchanged, not re-wrap it")
	}
}

func TestIsResponseTooBig(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"protocol too big", New(KindProtocol, "response too big: query returned more than 10000 results", nil), true},
		{"protocol exceeded limit", New(KindProtocol, "request exceeded max limit of 5000 blocks", nil), true},
		{"protocol unrelated", New(KindProtocol, "execution reverted", nil), false},
		{"non-protocol kind", New(KindConnection, "response too big", nil), false},
		{"untagged error", errors.New("response too big"), false},
	}

	for _, c := range cases {
		if got := IsResponseTooBig(c.err); got != c.want {
			t.Errorf("%s: IsResponseTooBig = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestError_MessageIncludesContext(t *testing.T) {
	err := New(KindTimeout, "request timed out", nil).
		WithBlockchain("ethereum", "https://rpc.example").
		WithOperation("eth_getBalance").
		WithAttempt(2, 3)

	msg := err.Error()
	for _, want := range []string{"request timed out", "blockchain=ethereum", "operation=eth_getBalance", "attempt=2", "max_attempts=3"} {
		if !contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
