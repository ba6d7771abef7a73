// Package session ties one connected wallet to everything LendView tracks
// for it: periodic snapshot reads, derived risk figures, the live event
// history, and action validation against the freshest snapshot.
package session

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendView/internal/assets"
	"LendView/internal/chain"
	"LendView/internal/event"
	"LendView/internal/guard"
	"LendView/internal/history"
	"LendView/internal/observability"
	"LendView/internal/risk"
)

// DefaultRefreshInterval is how often a session re-reads its chain state.
const DefaultRefreshInterval = 15 * time.Second

// AssetView is one asset's slice of a session snapshot. Pointer fields stay
// nil when the backing read failed; consumers degrade per field.
type AssetView struct {
	Asset     assets.Asset
	Reserve   *chain.AssetReserveState
	PriceUSD  *big.Int
	Wallet    *big.Int
	Deposit   *big.Int
	Debt      *big.Int
	Analytics risk.AssetAnalytics

	// AvailableToBorrow is the dual-cap headroom in token base units, nil
	// until both the reserve and the user's USD headroom have resolved.
	AvailableToBorrow *big.Int
}

// Snapshot is one consistent view of a user's lending position. A session
// swaps in a whole new snapshot per refresh; snapshots themselves are
// immutable once published.
type Snapshot struct {
	TakenAt time.Time
	Assets  map[common.Address]*AssetView

	// Risk holds the user-level aggregates. Nil until the first successful
	// user-level read.
	Risk *risk.UserRiskSummary

	// RawHealth mirrors the unconverted health factor read, nil on failure.
	RawHealth *big.Int
}

// Session is the unit of per-wallet state. One session owns one reconciler
// and one refresh loop; closing it releases both.
type Session struct {
	ID   uuid.UUID
	User common.Address

	reader     chain.Reader
	registry   *assets.Registry
	reconciler *history.Reconciler
	guard      *guard.Guard
	metrics    *observability.Metrics
	log        zerolog.Logger

	mu   sync.RWMutex
	snap *Snapshot

	cancel    context.CancelFunc
	loopDone  chan struct{}
	closeOnce sync.Once
}

func newSession(user common.Address, reader chain.Reader, registry *assets.Registry, reconciler *history.Reconciler, g *guard.Guard, metrics *observability.Metrics, log zerolog.Logger) *Session {
	id := uuid.New()
	return &Session{
		ID:         id,
		User:       user,
		reader:     reader,
		registry:   registry,
		reconciler: reconciler,
		guard:      g,
		metrics:    metrics,
		log:        log.With().Str("session", id.String()).Str("user", user.Hex()).Logger(),
		snap:       &Snapshot{Assets: map[common.Address]*AssetView{}},
		loopDone:   make(chan struct{}),
	}
}

// Snapshot returns the most recent published snapshot. Never nil.
func (s *Session) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// History returns the session's event history, newest first.
func (s *Session) History() []event.PositionEvent {
	return s.reconciler.Ledger().Snapshot()
}

// Refresh re-reads the full chain state and publishes a new snapshot. Reads
// fail independently: a failed read leaves its field nil in the new snapshot
// and the first error is returned after the pass completes.
func (s *Session) Refresh(ctx context.Context) error {
	start := time.Now()
	snap := &Snapshot{
		TakenAt: start,
		Assets:  make(map[common.Address]*AssetView, s.registry.Len()),
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	collateral, err := s.reader.UserTotalCollateralUSD(ctx, s.User)
	keep(err)
	debt, err := s.reader.UserTotalDebtUSD(ctx, s.User)
	keep(err)
	available, err := s.reader.UserAvailableBorrowsUSD(ctx, s.User)
	keep(err)
	rawHealth, err := s.reader.HealthFactor(ctx, s.User)
	keep(err)

	if collateral != nil && debt != nil && available != nil && rawHealth != nil {
		summary := risk.NewUserRiskSummary(collateral, debt, available, rawHealth)
		snap.Risk = &summary
		snap.RawHealth = rawHealth
	}

	for _, addr := range s.registry.Addresses() {
		view := &AssetView{}
		if asset, ok := s.registry.Lookup(addr); ok {
			view.Asset = asset
		}

		view.Reserve, err = s.reader.AssetData(ctx, addr)
		keep(err)
		view.PriceUSD, err = s.reader.AssetPrice(ctx, addr)
		keep(err)
		view.Wallet, err = s.reader.WalletBalance(ctx, addr, s.User)
		keep(err)
		view.Deposit, err = s.reader.EffectiveUserDeposit(ctx, addr, s.User)
		keep(err)
		view.Debt, err = s.reader.EffectiveUserBorrowBalance(ctx, addr, s.User)
		keep(err)

		view.Analytics = risk.Analyze(view.Reserve, s.registry.Decimals(addr), view.PriceUSD)
		if view.Reserve != nil && available != nil && view.PriceUSD != nil {
			view.AvailableToBorrow = risk.AvailableToBorrow(view.Reserve, available, view.PriceUSD)
		}
		snap.Assets[addr] = view
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
		if firstErr != nil {
			s.metrics.RefreshErrors.Inc()
		}
	}
	if firstErr != nil {
		s.log.Warn().Err(firstErr).Msg("snapshot refresh completed with errors")
	}
	return firstErr
}

// GuardSnapshot assembles the validation inputs for one asset from the
// current snapshot.
func (s *Session) GuardSnapshot(asset common.Address) guard.Snapshot {
	snap := s.Snapshot()

	out := guard.Snapshot{}
	if view, ok := snap.Assets[asset]; ok {
		out.Reserve = view.Reserve
		out.WalletBalance = view.Wallet
		out.DepositBalance = view.Deposit
		out.DebtBalance = view.Debt
		out.AvailableToBorrow = view.AvailableToBorrow
	}
	if snap.Risk != nil {
		h := snap.Risk.Health
		out.Health = &h
	}
	return out
}

// Validate runs the guard for one action against the current snapshot.
// Repay requests must use ValidateRepay.
func (s *Session) Validate(action guard.Action, asset common.Address, amount *big.Int) guard.ValidationResult {
	gs := s.GuardSnapshot(asset)

	var result guard.ValidationResult
	switch action {
	case guard.ActionDeposit:
		result = s.guard.CheckDeposit(gs, amount)
	case guard.ActionWithdraw:
		result = s.guard.CheckWithdraw(gs, amount)
	case guard.ActionBorrow:
		result = s.guard.CheckBorrow(gs, amount)
	default:
		result = guard.ValidationResult{Action: action, Verdict: guard.VerdictInvalid, Reason: guard.ReasonAmountNotPositive}
	}
	s.countVerdict(result)
	return result
}

// ValidateRepay runs the guard for a repayment against the current snapshot.
func (s *Session) ValidateRepay(asset common.Address, input guard.RepayInput) guard.ValidationResult {
	result := s.guard.CheckRepay(s.GuardSnapshot(asset), input)
	s.countVerdict(result)
	return result
}

func (s *Session) countVerdict(r guard.ValidationResult) {
	if s.metrics != nil {
		s.metrics.RecordVerdict(r.Action.String(), r.Verdict.String(), string(r.Reason))
	}
}

// run ticks the refresh loop until the session context ends.
func (s *Session) run(ctx context.Context, interval time.Duration) {
	defer close(s.loopDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Close tears down the refresh loop and the event subscriptions. Blocks
// until both have stopped; safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.loopDone
		s.reconciler.Close()
		s.log.Info().Msg("session closed")
	})
}
