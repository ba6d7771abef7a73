package session_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"LendView/internal/assets"
	"LendView/internal/chain"
	"LendView/internal/guard"
	fpmath "LendView/internal/math"
	"LendView/internal/session"
	"LendView/internal/testutil"
)

var (
	poolAddr = testutil.Addr(0xF0)
	daiAddr  = common.HexToAddress("0x8B7C7a4bbD6bC0C259276BEf7aE6832aDd0630cF")
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fpmath.ScaleFactor(18))
}

func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fpmath.ScaleFactor(8))
}

func seedReader(user common.Address) *testutil.FakeReader {
	reader := testutil.NewFakeReader()
	reader.Reserves[daiAddr] = &chain.AssetReserveState{
		IsSupported:                true,
		Decimals:                   18,
		LiquidityIndex:             fpmath.Ray,
		VariableBorrowIndex:        fpmath.Ray,
		TotalScaledDeposits:        tokens(1000),
		TotalScaledVariableBorrows: tokens(200),
	}
	reader.Prices[daiAddr] = usd(2)
	reader.SetWallet(daiAddr, user, tokens(100))
	reader.SetDeposit(daiAddr, user, tokens(40))
	reader.SetBorrow(daiAddr, user, tokens(5))
	reader.CollateralUSD[user] = usd(80)
	reader.DebtUSD[user] = usd(10)
	reader.AvailableUSD[user] = usd(50)
	reader.RawHealth[user] = new(big.Int).Mul(big.NewInt(6), fpmath.WAD)
	reader.Assets = []common.Address{daiAddr}
	return reader
}

func newManager(t *testing.T, reader *testutil.FakeReader) *session.Manager {
	t.Helper()

	watcher, err := chain.NewWatcher(testutil.NewScriptedLogSource(), poolAddr, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	registry, err := assets.NewRegistry(map[common.Address]assets.Asset{
		daiAddr: {Symbol: "mDAI", Name: "Mock DAI", Decimals: 18, Interactive: true},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	g := guard.NewGuard(zerolog.Nop(), nil)
	m := session.NewManager(reader, watcher, registry, g, nil, zerolog.Nop(), session.Options{
		RefreshInterval: time.Hour, // tests drive refresh explicitly
	})
	t.Cleanup(m.CloseAll)
	return m
}

// ============================================================================
// Test: lifecycle
// ============================================================================

func TestManager_OpenIsIdempotentPerUser(t *testing.T) {
	user := testutil.Addr(0x01)
	m := newManager(t, seedReader(user))

	a, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if a != b {
		t.Error("second open for the same user returned a different session")
	}
	if a.ID == (b.ID) && a.ID.String() == "" {
		t.Error("session has no identifier")
	}
}

func TestManager_CloseRemovesSession(t *testing.T) {
	user := testutil.Addr(0x01)
	m := newManager(t, seedReader(user))

	if _, err := m.Open(context.Background(), user); err != nil {
		t.Fatalf("open: %v", err)
	}
	m.Close(user)
	if _, ok := m.Get(user); ok {
		t.Error("session still registered after close")
	}
	m.Close(user) // no-op
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	user := testutil.Addr(0x01)
	m := newManager(t, seedReader(user))

	s, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Close()
	s.Close()
}

// ============================================================================
// Test: snapshot contents
// ============================================================================

func TestSession_InitialSnapshotPopulated(t *testing.T) {
	user := testutil.Addr(0x01)
	m := newManager(t, seedReader(user))

	s, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	snap := s.Snapshot()
	view, ok := snap.Assets[daiAddr]
	if !ok {
		t.Fatal("snapshot missing the registered asset")
	}
	if view.Wallet.Cmp(tokens(100)) != 0 {
		t.Errorf("wallet: got %s", view.Wallet)
	}
	if view.Deposit.Cmp(tokens(40)) != 0 {
		t.Errorf("deposit: got %s", view.Deposit)
	}
	if snap.Risk == nil {
		t.Fatal("user risk summary missing")
	}
	if snap.Risk.Health.IsUnbounded() {
		t.Error("finite debt must yield a finite health factor")
	}

	// $50 headroom at $2 = 25 tokens; pool holds 800, so collateral binds.
	if view.AvailableToBorrow == nil || view.AvailableToBorrow.Cmp(tokens(25)) != 0 {
		t.Errorf("available to borrow: got %v, want %s", view.AvailableToBorrow, tokens(25))
	}
	if view.Analytics.PriceUSD != "2.00" {
		t.Errorf("price: got %q", view.Analytics.PriceUSD)
	}
}

func TestSession_RefreshPicksUpNewState(t *testing.T) {
	user := testutil.Addr(0x01)
	reader := seedReader(user)
	m := newManager(t, reader)

	s, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	reader.SetWallet(daiAddr, user, tokens(250))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if got := s.Snapshot().Assets[daiAddr].Wallet; got.Cmp(tokens(250)) != 0 {
		t.Errorf("wallet after refresh: got %s", got)
	}
}

func TestSession_ReadFailureDegradesFields(t *testing.T) {
	user := testutil.Addr(0x01)
	reader := seedReader(user)
	m := newManager(t, reader)

	s, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	reader.Err = context.DeadlineExceeded
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("refresh over a failing reader should report the error")
	}

	// The new snapshot publishes with unresolved fields rather than stale
	// values presented as fresh.
	view := s.Snapshot().Assets[daiAddr]
	if view.Wallet != nil {
		t.Error("failed wallet read should leave the field unresolved")
	}
	if view.Analytics.DepositAPY != "N/A" {
		t.Errorf("analytics should degrade, got %q", view.Analytics.DepositAPY)
	}
}

// ============================================================================
// Test: validation against the snapshot
// ============================================================================

func TestSession_ValidateDepositAgainstWallet(t *testing.T) {
	user := testutil.Addr(0x01)
	m := newManager(t, seedReader(user))

	s, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if r := s.Validate(guard.ActionDeposit, daiAddr, tokens(100)); !r.Approved() {
		t.Errorf("deposit at wallet balance: verdict %s reason %s", r.Verdict, r.Reason)
	}
	if r := s.Validate(guard.ActionDeposit, daiAddr, tokens(101)); r.Reason != guard.ReasonInsufficientWallet {
		t.Errorf("reason: got %s", r.Reason)
	}
}

func TestSession_ValidateBorrowUsesDualCap(t *testing.T) {
	user := testutil.Addr(0x01)
	m := newManager(t, seedReader(user))

	s, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if r := s.Validate(guard.ActionBorrow, daiAddr, tokens(25)); !r.Approved() {
		t.Errorf("borrow at headroom: verdict %s reason %s", r.Verdict, r.Reason)
	}
	if r := s.Validate(guard.ActionBorrow, daiAddr, tokens(26)); r.Reason != guard.ReasonExceedsHeadroom {
		t.Errorf("reason: got %s", r.Reason)
	}
}

func TestSession_ValidateRepayFull(t *testing.T) {
	user := testutil.Addr(0x01)
	m := newManager(t, seedReader(user))

	s, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	r := s.ValidateRepay(daiAddr, guard.RepayFull())
	if !r.Approved() {
		t.Fatalf("verdict %s reason %s", r.Verdict, r.Reason)
	}
	if r.EffectiveAmount.Cmp(tokens(5)) != 0 {
		t.Errorf("effective amount: got %s, want full debt", r.EffectiveAmount)
	}
}

func TestSession_ValidateUnknownAssetIsHeld(t *testing.T) {
	user := testutil.Addr(0x01)
	m := newManager(t, seedReader(user))

	s, err := m.Open(context.Background(), user)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	r := s.Validate(guard.ActionDeposit, testutil.Addr(0xEE), tokens(1))
	if r.Approved() {
		t.Error("an asset outside the snapshot must never be approved")
	}
}
