package risk

import (
	"math/big"

	"LendView/internal/chain"
	fpmath "LendView/internal/math"
)

// AssetAnalytics is the display-ready per-reserve view. Every field degrades
// to the N/A sentinel when its underlying read is missing; a stale price
// never silently renders as zero.
type AssetAnalytics struct {
	DepositAPY           string
	VariableBorrowAPR    string
	LTV                  string
	LiquidationThreshold string
	ReserveFactor        string
	LiquidationBonus     string
	TotalDeposits        string
	TotalBorrows         string
	AvailableLiquidity   string
	PriceUSD             string
	Supported            bool
}

// Analyze renders a reserve's state for display. Either input may be nil;
// the affected fields degrade to N/A independently of the rest.
func Analyze(state *chain.AssetReserveState, assetDecimals uint8, priceUSD *big.Int) AssetAnalytics {
	a := AssetAnalytics{
		DepositAPY:           fpmath.NotAvailable,
		VariableBorrowAPR:    fpmath.NotAvailable,
		LTV:                  fpmath.NotAvailable,
		LiquidationThreshold: fpmath.NotAvailable,
		ReserveFactor:        fpmath.NotAvailable,
		LiquidationBonus:     fpmath.NotAvailable,
		TotalDeposits:        fpmath.NotAvailable,
		TotalBorrows:         fpmath.NotAvailable,
		AvailableLiquidity:   fpmath.NotAvailable,
		PriceUSD:             fpmath.NotAvailable,
	}
	if priceUSD != nil {
		a.PriceUSD = fpmath.FormatUSD(priceUSD)
	}
	if state == nil {
		return a
	}
	a.DepositAPY = fpmath.AnnualRateToPercent(state.AnnualLiquidityRateRAY)
	a.VariableBorrowAPR = fpmath.AnnualRateToPercent(state.AnnualVariableBorrowRateRAY)
	a.LTV = fpmath.BpsToPercent(state.LTV)
	a.LiquidationThreshold = fpmath.BpsToPercent(state.LiquidationThreshold)
	a.ReserveFactor = fpmath.BpsToPercent(state.ReserveFactor)
	a.LiquidationBonus = fpmath.BpsToPercent(state.LiquidationBonus)
	a.TotalDeposits = fpmath.FormatTokenAmount(TotalActualDeposits(state), assetDecimals, fpmath.TokenDisplayDecimals)
	a.TotalBorrows = fpmath.FormatTokenAmount(TotalActualBorrows(state), assetDecimals, fpmath.TokenDisplayDecimals)
	a.AvailableLiquidity = fpmath.FormatTokenAmount(PoolAvailableLiquidity(state), assetDecimals, fpmath.TokenDisplayDecimals)
	a.Supported = state.IsSupported
	return a
}
