package risk

import (
	"math/big"

	"LendView/internal/chain"
	fpmath "LendView/internal/math"
)

// UserRiskSummary is the cross-asset risk picture for one user. USD figures
// are 8-decimal fixed point matching the oracle scale.
type UserRiskSummary struct {
	TotalCollateralUSD  *big.Int
	TotalDebtUSD        *big.Int
	AvailableBorrowsUSD *big.Int
	Health              HealthFactor
}

// NewUserRiskSummary assembles a summary from raw chain reads. Zero total
// debt forces the unbounded health factor even if the raw read disagreed, so
// the "sentinel iff no debt" invariant holds locally regardless of read
// interleaving.
func NewUserRiskSummary(collateralUSD, debtUSD, availableUSD, rawHealthFactor *big.Int) UserRiskSummary {
	health := HealthFactorFromRaw(rawHealthFactor)
	if debtUSD != nil && debtUSD.Sign() == 0 {
		health = UnboundedHealthFactor()
	}
	return UserRiskSummary{
		TotalCollateralUSD:  collateralUSD,
		TotalDebtUSD:        debtUSD,
		AvailableBorrowsUSD: availableUSD,
		Health:              health,
	}
}

// TotalActualDeposits converts the reserve's scaled deposit total to actual
// units at the current liquidity index.
func TotalActualDeposits(state *chain.AssetReserveState) *big.Int {
	if state == nil {
		return big.NewInt(0)
	}
	return fpmath.ToActualBalance(state.TotalScaledDeposits, state.LiquidityIndex)
}

// TotalActualBorrows converts the reserve's scaled borrow total to actual
// units at the current variable-borrow index.
func TotalActualBorrows(state *chain.AssetReserveState) *big.Int {
	if state == nil {
		return big.NewInt(0)
	}
	return fpmath.ToActualBalance(state.TotalScaledVariableBorrows, state.VariableBorrowIndex)
}

// PoolAvailableLiquidity is what the reserve can actually lend right now.
// Clamped at zero: independently-fetched totals can be momentarily stale
// enough for borrows to nominally exceed deposits.
func PoolAvailableLiquidity(state *chain.AssetReserveState) *big.Int {
	deposits := TotalActualDeposits(state)
	borrows := TotalActualBorrows(state)
	if deposits.Cmp(borrows) < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(deposits, borrows)
}

// CollateralBorrowCap converts the user's USD borrow headroom into units of
// one asset at its oracle price. Both sides carry the oracle's 8-decimal
// scale, so it cancels. A nil or zero price degrades to zero.
func CollateralBorrowCap(availableBorrowsUSD, oraclePriceUSD *big.Int, assetDecimals uint8) *big.Int {
	if availableBorrowsUSD == nil || availableBorrowsUSD.Sign() <= 0 {
		return big.NewInt(0)
	}
	if oraclePriceUSD == nil || oraclePriceUSD.Sign() <= 0 {
		return big.NewInt(0)
	}
	cap := new(big.Int).Mul(availableBorrowsUSD, fpmath.ScaleFactor(assetDecimals))
	return cap.Quo(cap, oraclePriceUSD)
}

// AvailableToBorrow is the dual-cap rule: the user may never be shown a
// borrowable amount exceeding either their collateral-implied capacity or the
// pool's lendable liquidity.
func AvailableToBorrow(state *chain.AssetReserveState, availableBorrowsUSD, oraclePriceUSD *big.Int) *big.Int {
	if state == nil {
		return big.NewInt(0)
	}
	collateralCap := CollateralBorrowCap(availableBorrowsUSD, oraclePriceUSD, state.Decimals)
	poolCap := PoolAvailableLiquidity(state)
	if collateralCap.Cmp(poolCap) < 0 {
		return collateralCap
	}
	return poolCap
}

// CanBorrow reports whether a borrow of any size is currently possible.
func CanBorrow(state *chain.AssetReserveState, availableBorrowsUSD, oraclePriceUSD *big.Int) bool {
	if state == nil || !state.IsSupported {
		return false
	}
	return AvailableToBorrow(state, availableBorrowsUSD, oraclePriceUSD).Sign() > 0
}
