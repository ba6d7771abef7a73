package risk

import (
	"math/big"

	"github.com/shopspring/decimal"

	fpmath "LendView/internal/math"
)

// HealthFactor is the risk-weighted collateral / debt ratio. A debt-free
// account has no meaningful ratio; the contract signals that with a reserved
// maximum-integer sentinel, which is modeled here as an explicit unbounded
// variant so no arithmetic ever touches the sentinel value.
type HealthFactor struct {
	unbounded bool
	ratio     *big.Int // 1e18 scale, set only when !unbounded
}

// UnboundedHealthFactor returns the no-debt variant.
func UnboundedHealthFactor() HealthFactor {
	return HealthFactor{unbounded: true}
}

// FiniteHealthFactor wraps a 1e18-scaled ratio.
func FiniteHealthFactor(ratio *big.Int) HealthFactor {
	if ratio == nil {
		ratio = big.NewInt(0)
	}
	return HealthFactor{ratio: new(big.Int).Set(ratio)}
}

// HealthFactorFromRaw converts the contract's raw value, mapping the
// max-uint256 sentinel to the unbounded variant.
func HealthFactorFromRaw(raw *big.Int) HealthFactor {
	if raw == nil {
		return FiniteHealthFactor(big.NewInt(0))
	}
	if raw.Cmp(fpmath.MaxUint256) == 0 {
		return UnboundedHealthFactor()
	}
	return FiniteHealthFactor(raw)
}

// IsUnbounded reports whether the account carries no debt.
func (h HealthFactor) IsUnbounded() bool {
	return h.unbounded
}

// Ratio returns the 1e18-scaled ratio; ok is false for the unbounded variant.
func (h HealthFactor) Ratio() (*big.Int, bool) {
	if h.unbounded {
		return nil, false
	}
	return new(big.Int).Set(h.ratio), true
}

// AtOrBelow reports whether the factor is at or below a 1e18-scaled
// threshold. Unbounded is above every threshold.
func (h HealthFactor) AtOrBelow(threshold *big.Int) bool {
	if h.unbounded || threshold == nil {
		return false
	}
	return h.ratio.Cmp(threshold) <= 0
}

// Display renders the factor for users: the infinity symbol when unbounded,
// otherwise the ratio with two decimals.
func (h HealthFactor) Display() string {
	if h.unbounded {
		return "∞"
	}
	return decimal.NewFromBigInt(h.ratio, -18).StringFixed(fpmath.USDDisplayDecimals)
}
