package rpcclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.InitialBackoffSeconds != 0.5 {
		t.Errorf("InitialBackoffSeconds = %v, want 0.5", p.InitialBackoffSeconds)
	}
	if p.MaxBackoffSeconds != 5.0 {
		t.Errorf("MaxBackoffSeconds = %v, want 5.0", p.MaxBackoffSeconds)
	}
}

func TestBackoffFor_ExponentialWithCeiling(t *testing.T) {
	p := RetryPolicy{InitialBackoffSeconds: 1, MaxBackoffSeconds: 5}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // would be 8s, capped at 5
	}

	for _, c := range cases {
		got := p.backoffFor(c.attempt)
		if got != c.want {
			t.Errorf("backoffFor(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestWithMaxAttempts_DoesNotMutateOriginal(t *testing.T) {
	original := DefaultRetryPolicy()
	derived := original.WithMaxAttempts(1)

	if original.MaxAttempts != 3 {
		t.Errorf("original.MaxAttempts mutated to %d", original.MaxAttempts)
	}
	if derived.MaxAttempts != 1 {
		t.Errorf("derived.MaxAttempts = %d, want 1", derived.MaxAttempts)
	}
}

func TestExecute_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), RetryPolicy{MaxAttempts: 3}, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoffSeconds: 0.001, MaxBackoffSeconds: 0.001}
	err := Execute(context.Background(), policy, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecute_ReturnsLastErrorAfterExhaustion(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, InitialBackoffSeconds: 0.001, MaxBackoffSeconds: 0.001}
	calls := 0
	err := Execute(context.Background(), policy, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("attempt failed")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecute_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Execute(ctx, RetryPolicy{MaxAttempts: 3}, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected context error, got nil")
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 (should not attempt on an already-cancelled context)", calls)
	}
}

func TestExecute_ZeroMaxAttemptsTreatedAsOne(t *testing.T) {
	calls := 0
	_ = Execute(context.Background(), RetryPolicy{MaxAttempts: 0}, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
