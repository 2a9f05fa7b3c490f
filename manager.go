package goSession

import (
	"context"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

// Manager owns the device's authenticated session: the in-memory copy, the
// persisted layout, and every call to the remote authority that affects it.
//
// Exactly one Manager should exist per device store. All methods are safe
// for concurrent use. Mutations commit under a single mutex that covers the
// store write and the memory update together; network calls happen outside
// it, so whole operations may interleave only at I/O points.
type Manager struct {
	config    Config
	store     *session.Store
	authority Authority
	push      PushRegistrar
	logger    *slog.Logger
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	flows     flows.Service

	// commitMu serializes store writes with their memory update.
	commitMu sync.Mutex

	stateMu      sync.RWMutex
	sess         *session.Session
	generation   uint64
	initializing bool

	recoverOnce sync.Once
	initOnce    sync.Once
	initCh      chan struct{}

	subsMu   sync.Mutex
	subs     map[uint64]func(State)
	nextSub  uint64
	notifyMu sync.Mutex

	pushMu    sync.Mutex
	pushToken string

	background sync.WaitGroup
	closeOnce  sync.Once
}

func (m *Manager) buildFlows() flows.Service {
	return flows.New(flows.Deps{
		Recover: flows.RecoverDeps{
			Load:    m.store.Load,
			Verify:  m.authority.VerifyToken,
			Clear:   m.commitRecoverClear,
			Observe: m.observeAuthority,
		},
		Logout: flows.LogoutDeps{
			Credential:   m.store.Credential,
			RemoteLogout: m.authority.Logout,
			Clear:        m.commitClear,
			Observe:      m.observeAuthority,
		},
		Refresh: flows.RefreshDeps{
			Current:    m.currentGeneration,
			Credential: m.store.Credential,
			Fetch:      m.authority.FetchProfile,
			Commit:     m.commitRefresh,
			Observe:    m.observeAuthority,
		},
	})
}

// Session returns a private copy of the current session, or nil.
func (m *Manager) Session() *session.Session {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.sess.Clone()
}

// IsInitializing reports whether startup recovery has not finished yet.
func (m *Manager) IsInitializing() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.initializing
}

// State returns the session and initialization flag read together.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return State{
		Session:      m.sess.Clone(),
		Initializing: m.initializing,
	}
}

// Initialized is closed once recovery has completed, whatever its outcome.
func (m *Manager) Initialized() <-chan struct{} {
	return m.initCh
}

// Subscribe registers fn to run after every committed state change. Calls
// are serialized, and each call reads the state at delivery time, so the
// last call a listener sees always carries the newest state.
//
// fn must not call mutating Manager methods synchronously.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
		})
	}
}

func (m *Manager) publish() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.subsMu.Lock()
	listeners := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}
	m.subsMu.Unlock()
	if len(listeners) == 0 {
		return
	}

	st := m.State()
	for _, fn := range listeners {
		fn(st)
	}
}

// setSession replaces the in-memory session. Caller holds commitMu.
// replace starts a new session generation.
func (m *Manager) setSession(s *session.Session, replace bool) {
	m.stateMu.Lock()
	m.sess = s
	if replace {
		m.generation++
	}
	m.stateMu.Unlock()
}

func (m *Manager) currentGeneration() (uint64, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.sess == nil {
		return 0, false
	}
	return m.generation, true
}

func (m *Manager) finishInit() {
	m.initOnce.Do(func() {
		m.stateMu.Lock()
		m.initializing = false
		m.stateMu.Unlock()
		close(m.initCh)
		m.publish()
	})
}

// goBackground runs fn on a goroutine tracked by Close. The context keeps
// the caller's values but not its cancellation.
func (m *Manager) goBackground(ctx context.Context, fn func(context.Context)) {
	bg := context.WithoutCancel(ctx)
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		fn(bg)
	}()
}

// Close waits for background work, drains the audit dispatcher and closes
// the store backend. Safe to call more than once.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		m.background.Wait()
		if m.audit != nil {
			m.audit.Close()
		}
		if err := m.store.Close(); err != nil {
			m.logger.Warn("closing session store", slog.Any("error", err))
		}
	})
}

// Metrics exposes the live counter set, for exporters and the gateway.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}

func (m *Manager) metricInc(id MetricID) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Inc(id)
}

func (m *Manager) observeAuthority(d time.Duration) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Observe(MetricAuthorityLatency, d)
}
