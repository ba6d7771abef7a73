package math

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NotAvailable is the sentinel rendered for undefined inputs. Derived values
// with an undefined dependency must surface this rather than computing
// against zero.
const NotAvailable = "N/A"

// AnnualRateToPercent renders a RAY-scaled nominal annual rate as a
// two-decimal percentage string ("3.25%"). Nil or negative rates render as
// the N/A sentinel.
func AnnualRateToPercent(rateRAY *big.Int) string {
	if rateRAY == nil || rateRAY.Sign() < 0 {
		return NotAvailable
	}
	return BpsToPercent(RayToBps(rateRAY))
}

// BpsToPercent renders a basis-point value as a two-decimal percentage
// string: 7500 -> "75.00%".
func BpsToPercent(bps *big.Int) string {
	if bps == nil || bps.Sign() < 0 {
		return NotAvailable
	}
	pct := decimal.NewFromBigInt(bps, -2)
	return pct.StringFixed(PercentDisplayDecimals) + "%"
}

// FormatTokenAmount renders an integer amount at tokenDecimals precision as a
// decimal string with displayDecimals places. A positive amount that would
// render as all zeros at the requested precision yields a "< 0.0001"-style
// sentinel instead of a misleading zero. Nil renders as N/A.
func FormatTokenAmount(raw *big.Int, tokenDecimals uint8, displayDecimals int32) string {
	if raw == nil {
		return NotAvailable
	}
	value := decimal.NewFromBigInt(raw, -int32(tokenDecimals))
	if value.IsPositive() {
		smallest := decimal.New(1, -displayDecimals)
		if value.LessThan(smallest) {
			return fmt.Sprintf("< %s", smallest.StringFixed(displayDecimals))
		}
	}
	return value.StringFixed(displayDecimals)
}

// FormatUSD renders an 8-decimal fixed-point USD amount with two decimal
// places.
func FormatUSD(raw *big.Int) string {
	return FormatTokenAmount(raw, OraclePriceDecimals, USDDisplayDecimals)
}
