package rpcclient

import (
	"context"
	"sync"
	"time"

	"github.com/chalabi2/blockchain-exporter/internal/rpcerrors"
)

// DefaultPoolSize bounds how many idle clients are kept per RPC URL.
const DefaultPoolSize = 10

// breakerState mirrors the teacher's circuit_breaker.go three states,
// repurposed here to guard whether the pool hands out a session for an
// endpoint that has been failing, rather than gating a health checker.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker trips after failureThreshold consecutive pool-client
// failures and holds the endpoint open for cooldown before probing again.
type circuitBreaker struct {
	mu               sync.RWMutex
	failureThreshold int
	failureCount     int
	lastFailure      time.Time
	cooldown         time.Duration
	state            breakerState
}

func newCircuitBreaker(failureThreshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{failureThreshold: failureThreshold, cooldown: cooldown, state: breakerClosed}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.RLock()
	state := cb.state
	last := cb.lastFailure
	cb.mu.RUnlock()

	switch state {
	case breakerClosed, breakerHalfOpen:
		return true
	case breakerOpen:
		if time.Since(last) <= cb.cooldown {
			return false
		}
		cb.mu.Lock()
		if cb.state == breakerOpen && time.Since(cb.lastFailure) > cb.cooldown {
			cb.state = breakerHalfOpen
		}
		allowed := cb.state == breakerHalfOpen
		cb.mu.Unlock()
		return allowed
	default:
		return false
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.state = breakerClosed
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.state == breakerHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.state = breakerOpen
	}
}

// Factory dials a fresh client for one chain endpoint.
type Factory func(ctx context.Context) (*Client, error)

// Pool is a bounded per-RPC-URL free-list of reusable Client sessions,
// grounded on original_source's ConnectionPoolManager.
type Pool struct {
	mu       sync.Mutex
	size     int
	idle     map[string][]*Client
	active   map[string]int
	breakers map[string]*circuitBreaker
}

// NewPool constructs a Pool bounding each endpoint's idle sessions to size.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{
		size:     size,
		idle:     make(map[string][]*Client),
		active:   make(map[string]int),
		breakers: make(map[string]*circuitBreaker),
	}
}

func (p *Pool) breakerFor(rpcURL string) *circuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.breakers[rpcURL]
	if !ok {
		cb = newCircuitBreaker(5, 60*time.Second)
		p.breakers[rpcURL] = cb
	}
	return cb
}

// Get returns an idle client for rpcURL if one exists, else dials a new
// one via factory. Returns an error if the endpoint's circuit is open.
func (p *Pool) Get(ctx context.Context, blockchain, rpcURL string, factory Factory) (*Client, error) {
	cb := p.breakerFor(rpcURL)
	if !cb.allow() {
		return nil, rpcerrors.New(rpcerrors.KindConnection, "connection pool circuit open for endpoint", nil).
			WithBlockchain(blockchain, rpcURL)
	}

	p.mu.Lock()
	if queue := p.idle[rpcURL]; len(queue) > 0 {
		client := queue[len(queue)-1]
		p.idle[rpcURL] = queue[:len(queue)-1]
		p.active[rpcURL]++
		p.mu.Unlock()
		return client, nil
	}
	p.mu.Unlock()

	client, err := factory(ctx)
	if err != nil {
		cb.recordFailure()
		return nil, err
	}

	p.mu.Lock()
	p.active[rpcURL]++
	p.mu.Unlock()

	cb.recordSuccess()
	return client, nil
}

// Put returns a client to the pool, or closes it if the idle queue is full.
func (p *Pool) Put(rpcURL string, client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active[rpcURL] > 0 {
		p.active[rpcURL]--
	}

	if len(p.idle[rpcURL]) >= p.size {
		client.Close()
		return
	}
	p.idle[rpcURL] = append(p.idle[rpcURL], client)
}

// RecordFailure trips the endpoint's circuit breaker towards open.
func (p *Pool) RecordFailure(rpcURL string) {
	p.breakerFor(rpcURL).recordFailure()
}

// Clear closes and discards every idle client for rpcURL, or for every
// endpoint if rpcURL is empty.
func (p *Pool) Clear(rpcURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rpcURL == "" {
		for url, clients := range p.idle {
			for _, c := range clients {
				c.Close()
			}
			delete(p.idle, url)
		}
		return
	}

	for _, c := range p.idle[rpcURL] {
		c.Close()
	}
	delete(p.idle, rpcURL)
}

// Stats reports idle/active client counts for one endpoint, as returned by
// Pool.Stats. No HTTP handler serves these counts.
type Stats struct {
	Idle   int
	Active int
}

// Stats returns a snapshot of pool occupancy keyed by RPC URL.
func (p *Pool) Stats() map[string]Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]Stats, len(p.idle))
	for url, clients := range p.idle {
		out[url] = Stats{Idle: len(clients), Active: p.active[url]}
	}
	for url, active := range p.active {
		if _, ok := out[url]; !ok {
			out[url] = Stats{Active: active}
		}
	}
	return out
}
