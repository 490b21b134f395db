package rpcclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPool_DialsOnFirstGet(t *testing.T) {
	p := NewPool(2)
	dials := 0

	client, err := p.Get(context.Background(), "ethereum", "https://rpc.example", func(ctx context.Context) (*Client, error) {
		dials++
		return &Client{Blockchain: "ethereum", RPCURL: "https://rpc.example"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
	if client == nil {
		t.Fatal("expected non-nil client")
	}
}

func TestPool_ReusesIdleClient(t *testing.T) {
	p := NewPool(2)
	dials := 0
	factory := func(ctx context.Context) (*Client, error) {
		dials++
		return &Client{Blockchain: "ethereum", RPCURL: "https://rpc.example"}, nil
	}

	client, err := p.Get(context.Background(), "ethereum", "https://rpc.example", factory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Put("https://rpc.example", client)

	reused, err := p.Get(context.Background(), "ethereum", "https://rpc.example", factory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reused != client {
		t.Error("expected Get to return the idle client put back, not dial a fresh one")
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1 (second Get should reuse, not redial)", dials)
	}
}

func TestPool_PutClosesOverflow(t *testing.T) {
	p := NewPool(1)
	factory := func(ctx context.Context) (*Client, error) {
		return &Client{Blockchain: "ethereum", RPCURL: "https://rpc.example"}, nil
	}

	first, _ := p.Get(context.Background(), "ethereum", "https://rpc.example", factory)
	second, _ := p.Get(context.Background(), "ethereum", "https://rpc.example", factory)

	p.Put("https://rpc.example", first)
	p.Put("https://rpc.example", second) // over the size=1 ceiling, should close rather than queue

	stats := p.Stats()["https://rpc.example"]
	if stats.Idle != 1 {
		t.Errorf("idle = %d, want 1", stats.Idle)
	}
}

func TestPool_CircuitOpensAfterThresholdFailures(t *testing.T) {
	p := NewPool(2)
	failingFactory := func(ctx context.Context) (*Client, error) {
		return nil, errors.New("dial failed")
	}

	for i := 0; i < 5; i++ {
		_, err := p.Get(context.Background(), "ethereum", "https://rpc.example", failingFactory)
		if err == nil {
			t.Fatalf("attempt %d: expected dial error", i)
		}
	}

	// The 6th Get should be rejected by the open circuit before even calling factory.
	calledFactory := false
	_, err := p.Get(context.Background(), "ethereum", "https://rpc.example", func(ctx context.Context) (*Client, error) {
		calledFactory = true
		return &Client{}, nil
	})
	if err == nil {
		t.Fatal("expected circuit-open error")
	}
	if calledFactory {
		t.Error("factory should not be called while the circuit is open")
	}
}

func TestPool_RecordFailureTripsBreaker(t *testing.T) {
	p := NewPool(2)
	cb := p.breakerFor("https://rpc.example")
	cb.failureThreshold = 1

	p.RecordFailure("https://rpc.example")

	if cb.allow() {
		t.Error("breaker should deny after a single failure at threshold=1")
	}
}

func TestPool_ClearDiscardsIdleClients(t *testing.T) {
	p := NewPool(2)
	factory := func(ctx context.Context) (*Client, error) {
		return &Client{Blockchain: "ethereum", RPCURL: "https://rpc.example"}, nil
	}

	client, _ := p.Get(context.Background(), "ethereum", "https://rpc.example", factory)
	p.Put("https://rpc.example", client)

	if p.Stats()["https://rpc.example"].Idle != 1 {
		t.Fatal("expected one idle client before Clear")
	}

	p.Clear("https://rpc.example")

	if p.Stats()["https://rpc.example"].Idle != 0 {
		t.Error("expected no idle clients after Clear")
	}
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	cb := newCircuitBreaker(1, 10*time.Millisecond)
	cb.recordFailure()

	if cb.allow() {
		t.Fatal("should not allow immediately after tripping open")
	}

	time.Sleep(15 * time.Millisecond)

	if !cb.allow() {
		t.Error("should allow (half-open) once cooldown has elapsed")
	}
}
