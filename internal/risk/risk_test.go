package risk_test

import (
	"math/big"
	"testing"

	"LendView/internal/chain"
	fpmath "LendView/internal/math"
	"LendView/internal/risk"
)

func ray(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fpmath.Ray)
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fpmath.WAD)
}

func reserve(scaledDeposits, scaledBorrows int64) *chain.AssetReserveState {
	return &chain.AssetReserveState{
		IsSupported:                true,
		Decimals:                   18,
		LiquidityIndex:             ray(1),
		VariableBorrowIndex:        ray(1),
		TotalScaledDeposits:        big.NewInt(scaledDeposits),
		TotalScaledVariableBorrows: big.NewInt(scaledBorrows),
	}
}

// ============================================================================
// Test: pool liquidity
// ============================================================================

func TestPoolAvailableLiquidity_Basic(t *testing.T) {
	got := risk.PoolAvailableLiquidity(reserve(1000, 400))
	if got.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("got %s, want 600", got)
	}
}

func TestPoolAvailableLiquidity_ClampsAtZero(t *testing.T) {
	// Stale reads can make borrows nominally exceed deposits.
	got := risk.PoolAvailableLiquidity(reserve(400, 1000))
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

func TestPoolAvailableLiquidity_NeverNegative(t *testing.T) {
	cases := []struct{ deposits, borrows int64 }{
		{0, 0}, {0, 100}, {100, 0}, {100, 100}, {1, 1 << 40},
	}
	for _, tc := range cases {
		got := risk.PoolAvailableLiquidity(reserve(tc.deposits, tc.borrows))
		if got.Sign() < 0 {
			t.Errorf("deposits=%d borrows=%d: liquidity %s < 0", tc.deposits, tc.borrows, got)
		}
	}
}

func TestPoolAvailableLiquidity_NilState(t *testing.T) {
	if got := risk.PoolAvailableLiquidity(nil); got.Sign() != 0 {
		t.Errorf("nil state: got %s, want 0", got)
	}
}

// ============================================================================
// Test: dual-cap borrow headroom
// ============================================================================

// tokens converts whole tokens to 18-decimal base units.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fpmath.ScaleFactor(18))
}

// usd converts whole dollars to the oracle's 8-decimal fixed point.
func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fpmath.ScaleFactor(8))
}

func reserveWithLiquidity(liquidityTokens int64) *chain.AssetReserveState {
	state := reserve(0, 0)
	state.TotalScaledDeposits = tokens(liquidityTokens)
	return state
}

func TestCollateralBorrowCap(t *testing.T) {
	// $100 headroom at $2/token = 50 tokens
	got := risk.CollateralBorrowCap(usd(100), usd(2), 18)
	if got.Cmp(tokens(50)) != 0 {
		t.Errorf("got %s, want %s", got, tokens(50))
	}
}

func TestCollateralBorrowCap_Degenerate(t *testing.T) {
	if got := risk.CollateralBorrowCap(nil, usd(2), 18); got.Sign() != 0 {
		t.Errorf("nil headroom: got %s", got)
	}
	if got := risk.CollateralBorrowCap(usd(100), nil, 18); got.Sign() != 0 {
		t.Errorf("nil price: got %s", got)
	}
	if got := risk.CollateralBorrowCap(usd(100), big.NewInt(0), 18); got.Sign() != 0 {
		t.Errorf("zero price: got %s", got)
	}
}

func TestAvailableToBorrow_PoolBound(t *testing.T) {
	// Collateral cap 50 tokens, pool has 30 -> pool wins.
	state := reserveWithLiquidity(30)
	got := risk.AvailableToBorrow(state, usd(100), usd(2))
	if got.Cmp(tokens(30)) != 0 {
		t.Errorf("got %s, want %s", got, tokens(30))
	}
}

func TestAvailableToBorrow_CollateralBound(t *testing.T) {
	// Collateral cap 50 tokens, pool has 500 -> collateral wins.
	state := reserveWithLiquidity(500)
	got := risk.AvailableToBorrow(state, usd(100), usd(2))
	if got.Cmp(tokens(50)) != 0 {
		t.Errorf("got %s, want %s", got, tokens(50))
	}
}

func TestAvailableToBorrow_RaisingPoolBeyondCapIsNoop(t *testing.T) {
	before := risk.AvailableToBorrow(reserveWithLiquidity(60), usd(100), usd(2))
	after := risk.AvailableToBorrow(reserveWithLiquidity(6000), usd(100), usd(2))
	if before.Cmp(after) != 0 {
		t.Errorf("raising pool liquidity above the collateral cap changed the result: %s vs %s", before, after)
	}
}

func TestAvailableToBorrow_LoweringPoolBelowCapTracksPool(t *testing.T) {
	got := risk.AvailableToBorrow(reserveWithLiquidity(10), usd(100), usd(2))
	if got.Cmp(tokens(10)) != 0 {
		t.Errorf("got %s, want %s", got, tokens(10))
	}
}

func TestCanBorrow(t *testing.T) {
	supported := reserveWithLiquidity(30)
	if !risk.CanBorrow(supported, usd(100), usd(2)) {
		t.Error("expected borrowable")
	}

	unsupported := reserveWithLiquidity(30)
	unsupported.IsSupported = false
	if risk.CanBorrow(unsupported, usd(100), usd(2)) {
		t.Error("unsupported asset must not be borrowable")
	}

	if risk.CanBorrow(supported, usd(0), usd(2)) {
		t.Error("zero headroom must not be borrowable")
	}
}

// ============================================================================
// Test: health factor
// ============================================================================

func TestHealthFactor_SentinelIsUnbounded(t *testing.T) {
	h := risk.HealthFactorFromRaw(fpmath.MaxUint256)
	if !h.IsUnbounded() {
		t.Fatal("max uint256 must map to the unbounded variant")
	}
	if got := h.Display(); got != "∞" {
		t.Errorf("display: got %q, want ∞", got)
	}
	if _, ok := h.Ratio(); ok {
		t.Error("unbounded factor must not expose a finite ratio")
	}
}

func TestHealthFactor_FiniteDisplay(t *testing.T) {
	h := risk.HealthFactorFromRaw(wad(2)) // 2.0
	if h.IsUnbounded() {
		t.Fatal("finite value must not be unbounded")
	}
	if got := h.Display(); got != "2.00" {
		t.Errorf("got %q, want %q", got, "2.00")
	}
}

func TestHealthFactor_AtOrBelow(t *testing.T) {
	threshold := new(big.Int).Quo(new(big.Int).Mul(big.NewInt(11), fpmath.WAD), big.NewInt(10)) // 1.1

	below := risk.FiniteHealthFactor(wad(1))
	if !below.AtOrBelow(threshold) {
		t.Error("1.0 should be at or below 1.1")
	}

	above := risk.FiniteHealthFactor(wad(2))
	if above.AtOrBelow(threshold) {
		t.Error("2.0 should be above 1.1")
	}

	if risk.UnboundedHealthFactor().AtOrBelow(threshold) {
		t.Error("unbounded is above every threshold")
	}
}

func TestUserRiskSummary_ZeroDebtForcesUnbounded(t *testing.T) {
	// A finite raw health factor arriving alongside a zero-debt read must
	// still present as unbounded, never a finite large number.
	s := risk.NewUserRiskSummary(usd(1000), big.NewInt(0), usd(500), wad(3))
	if !s.Health.IsUnbounded() {
		t.Error("zero debt must force the unbounded health factor")
	}
}

func TestUserRiskSummary_FiniteDebtKeepsFiniteFactor(t *testing.T) {
	s := risk.NewUserRiskSummary(usd(1000), usd(200), usd(500), wad(3))
	if s.Health.IsUnbounded() {
		t.Error("finite debt must not produce the sentinel")
	}
}

// ============================================================================
// Test: analytics rendering
// ============================================================================

func TestAnalyze_NilStateDegradesToNA(t *testing.T) {
	a := risk.Analyze(nil, 18, nil)
	if a.DepositAPY != "N/A" || a.TotalDeposits != "N/A" || a.PriceUSD != "N/A" {
		t.Errorf("nil state should render N/A fields, got %+v", a)
	}
}

func TestAnalyze_RendersRatesAndTotals(t *testing.T) {
	state := reserve(1000, 400)
	// 5% annual liquidity rate, 8% borrow rate
	state.AnnualLiquidityRateRAY = new(big.Int).Quo(new(big.Int).Mul(big.NewInt(5), fpmath.Ray), big.NewInt(100))
	state.AnnualVariableBorrowRateRAY = new(big.Int).Quo(new(big.Int).Mul(big.NewInt(8), fpmath.Ray), big.NewInt(100))
	state.LTV = big.NewInt(7500)
	state.LiquidationThreshold = big.NewInt(8000)
	state.ReserveFactor = big.NewInt(1000)
	state.LiquidationBonus = big.NewInt(500)

	a := risk.Analyze(state, 18, usd(2))

	if a.DepositAPY != "5.00%" {
		t.Errorf("DepositAPY: got %q", a.DepositAPY)
	}
	if a.VariableBorrowAPR != "8.00%" {
		t.Errorf("VariableBorrowAPR: got %q", a.VariableBorrowAPR)
	}
	if a.LTV != "75.00%" {
		t.Errorf("LTV: got %q", a.LTV)
	}
	if a.LiquidationThreshold != "80.00%" {
		t.Errorf("LiquidationThreshold: got %q", a.LiquidationThreshold)
	}
	if a.LiquidationBonus != "5.00%" {
		t.Errorf("LiquidationBonus: got %q", a.LiquidationBonus)
	}
	if a.PriceUSD != "2.00" {
		t.Errorf("PriceUSD: got %q", a.PriceUSD)
	}
	if !a.Supported {
		t.Error("Supported should carry through")
	}
}
