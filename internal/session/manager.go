package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"LendView/internal/assets"
	"LendView/internal/chain"
	"LendView/internal/guard"
	"LendView/internal/history"
	"LendView/internal/observability"
)

// Options tunes per-session behavior.
type Options struct {
	// RefreshInterval between snapshot reads. Zero selects the default.
	RefreshInterval time.Duration

	// HistoryCapacity bounds the visible event history. Zero selects the
	// ledger default.
	HistoryCapacity int

	// Sinks observe every event newly recorded into any session's history,
	// e.g. the Postgres archive or the NATS publisher.
	Sinks []history.RecordSink
}

// Manager owns all live wallet sessions, at most one per user address.
type Manager struct {
	reader   chain.Reader
	watcher  *chain.Watcher
	registry *assets.Registry
	guard    *guard.Guard
	metrics  *observability.Metrics
	log      zerolog.Logger
	opts     Options

	mu       sync.Mutex
	sessions map[common.Address]*Session
}

// NewManager wires a session manager. metrics may be nil.
func NewManager(reader chain.Reader, watcher *chain.Watcher, registry *assets.Registry, g *guard.Guard, metrics *observability.Metrics, log zerolog.Logger, opts Options) *Manager {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	return &Manager{
		reader:   reader,
		watcher:  watcher,
		registry: registry,
		guard:    g,
		metrics:  metrics,
		log:      log.With().Str("component", "sessions").Logger(),
		opts:     opts,
		sessions: make(map[common.Address]*Session),
	}
}

// Open creates and starts a session for user, or returns the existing one.
// The initial snapshot read runs before Open returns; a partial initial read
// is not an error, subsequent refreshes fill the gaps.
func (m *Manager) Open(ctx context.Context, user common.Address) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[user]; ok {
		return existing, nil
	}

	ledger := history.NewLedger(m.opts.HistoryCapacity)
	reconciler := history.NewReconciler(m.watcher, ledger, user, m.metrics, m.log, m.opts.Sinks...)

	sessCtx, cancel := context.WithCancel(context.Background())
	if err := reconciler.Start(sessCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start event reconciliation: %w", err)
	}

	s := newSession(user, m.reader, m.registry, reconciler, m.guard, m.metrics, m.log)
	s.cancel = cancel

	if err := s.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial snapshot partially resolved")
	}
	go s.run(sessCtx, m.opts.RefreshInterval)

	m.sessions[user] = s
	if m.metrics != nil {
		m.metrics.SessionsOpened.Inc()
		m.metrics.SessionsActive.Set(float64(len(m.sessions)))
	}
	s.log.Info().Msg("session opened")
	return s, nil
}

// Get returns the live session for user, if any.
func (m *Manager) Get(user common.Address) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[user]
	return s, ok
}

// Close ends the session for user. A miss is a no-op.
func (m *Manager) Close(user common.Address) {
	m.mu.Lock()
	s, ok := m.sessions[user]
	if ok {
		delete(m.sessions, user)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	if m.metrics != nil {
		m.metrics.SessionsClosed.Inc()
		m.metrics.SessionsActive.Set(float64(active))
	}
}

// CloseAll ends every live session, used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[common.Address]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if m.metrics != nil {
		m.metrics.SessionsClosed.Add(float64(len(sessions)))
		m.metrics.SessionsActive.Set(0)
	}
}
