package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chalabi2/blockchain-exporter/internal/config"
	"github.com/chalabi2/blockchain-exporter/internal/metrics"
	"github.com/chalabi2/blockchain-exporter/internal/rpcclient"
)

// task is one running Loop and the means to stop it.
type task struct {
	identity config.Identity
	cancel   context.CancelFunc
	done     chan struct{}
}

// Manager owns the fleet of per-chain Loop goroutines, grounded on
// original_source's PollerManager (poller/manager.py), including the
// "primary owner" idiom used to let two independent HTTP listeners share
// one manager without double-shutting it down.
type Manager struct {
	Registry                 *metrics.Registry
	State                    *metrics.State
	Pool                     *rpcclient.Pool
	RetryPolicy              rpcclient.RetryPolicy
	DefaultIntervalSeconds   int
	MaxFailureBackoffSeconds int
	Logger                   *zap.Logger

	mu           sync.Mutex
	created      bool
	primaryOwner any
	tasks        map[config.Identity]*task
}

// NewManager constructs an empty Manager.
func NewManager(reg *metrics.Registry, state *metrics.State, pool *rpcclient.Pool, policy rpcclient.RetryPolicy, defaultInterval, maxBackoff int, logger *zap.Logger) *Manager {
	return &Manager{
		Registry:                 reg,
		State:                    state,
		Pool:                     pool,
		RetryPolicy:              policy,
		DefaultIntervalSeconds:   defaultInterval,
		MaxFailureBackoffSeconds: maxBackoff,
		Logger:                   logger,
		tasks:                    make(map[config.Identity]*task),
	}
}

// CreateTasks spawns one Loop per blockchain, idempotently: if tasks were
// already created by some owner, this is a no-op and owner is unchanged.
func (m *Manager) CreateTasks(blockchains []config.BlockchainConfig, owner any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.created {
		return
	}

	for _, bc := range blockchains {
		m.startLocked(bc)
	}

	m.created = true
	m.primaryOwner = owner
	m.Registry.PollerThreadCount.Set(float64(len(m.tasks)))
}

// ShouldCleanup reports whether owner is the primary owner responsible
// for shutting the manager down.
func (m *Manager) ShouldCleanup(owner any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created && m.primaryOwner == owner
}

func (m *Manager) startLocked(bc config.BlockchainConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	loop := &Loop{
		Blockchain:               bc,
		Registry:                 m.Registry,
		State:                    m.State,
		Pool:                     m.Pool,
		RetryPolicy:              m.RetryPolicy,
		DefaultIntervalSeconds:   m.DefaultIntervalSeconds,
		MaxFailureBackoffSeconds: m.MaxFailureBackoffSeconds,
		Logger:                  m.Logger,
	}

	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	m.tasks[bc.Identity()] = &task{identity: bc.Identity(), cancel: cancel, done: done}
}

// ShutdownTasks cancels every running Loop and waits up to timeout for
// them to exit, logging (not failing) on timeout.
func (m *Manager) ShutdownTasks(timeout time.Duration) {
	m.mu.Lock()
	tasks := make([]*task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.tasks = make(map[config.Identity]*task)
	m.created = false
	m.primaryOwner = nil
	m.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}

	deadline := time.After(timeout)
	for _, t := range tasks {
		select {
		case <-t.done:
		case <-deadline:
			m.Logger.Warn("timed out waiting for poll loop to stop", zap.String("blockchain", t.identity.Name))
		}
	}

	m.Registry.PollerThreadCount.Set(0)
}

// ReloadTasks diffs old and new blockchain lists by identity: chains
// present in old but absent from new are cancelled and awaited (with a
// short timeout since reload must stay responsive); chains present only
// in new are started; chains present in both are left running untouched
// even if their configuration otherwise changed, per spec.md §4.7.
func (m *Manager) ReloadTasks(oldBlockchains, newBlockchains []config.BlockchainConfig) {
	oldIdentities := make(map[config.Identity]struct{}, len(oldBlockchains))
	for _, bc := range oldBlockchains {
		oldIdentities[bc.Identity()] = struct{}{}
	}
	newIdentities := make(map[config.Identity]struct{}, len(newBlockchains))
	for _, bc := range newBlockchains {
		newIdentities[bc.Identity()] = struct{}{}
	}

	m.mu.Lock()
	var toStop []*task
	for id := range oldIdentities {
		if _, stillPresent := newIdentities[id]; stillPresent {
			continue
		}
		if t, ok := m.tasks[id]; ok {
			toStop = append(toStop, t)
			delete(m.tasks, id)
		}
	}
	m.mu.Unlock()

	for _, t := range toStop {
		t.cancel()
	}
	for _, t := range toStop {
		select {
		case <-t.done:
		case <-time.After(10 * time.Second):
			m.Logger.Warn("timed out cancelling removed poll loop", zap.String("blockchain", t.identity.Name))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bc := range newBlockchains {
		id := bc.Identity()
		if _, existingTask := m.tasks[id]; existingTask {
			continue
		}
		if _, wasOld := oldIdentities[id]; wasOld {
			continue
		}
		m.startLocked(bc)
	}
	m.Registry.PollerThreadCount.Set(float64(len(m.tasks)))
}

// ActiveTaskCount returns how many Loop goroutines are currently running.
func (m *Manager) ActiveTaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Reset stops every task and clears ownership; for tests only.
func (m *Manager) Reset() {
	m.ShutdownTasks(5 * time.Second)
}
