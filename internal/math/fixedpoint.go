package math

import (
	"math/big"
)

// Protocol fixed-point scales.
var (
	// Ray is the 27-decimal scale used for interest rates and accrual indices.
	Ray = mustBigInt("1000000000000000000000000000")

	// WAD is the 18-decimal scale used for the health factor ratio.
	WAD = mustBigInt("1000000000000000000")

	// BasisPoints is the percentage scale: 10000 = 100%.
	BasisPoints = big.NewInt(10_000)

	// MaxUint256 is the largest representable on-chain integer. The protocol
	// reports it as the health factor of a debt-free account.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Display precision defaults.
const (
	TokenDisplayDecimals   = 4
	USDDisplayDecimals     = 2
	PercentDisplayDecimals = 2
	OraclePriceDecimals    = 8
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// ToActualBalance converts a scaled balance into an actual-unit balance using
// the reserve's current accrual index: scaled * index / RAY, truncating toward
// zero. Nil or negative inputs degrade to zero; callers never see an error for
// missing chain data.
func ToActualBalance(scaled, index *big.Int) *big.Int {
	if scaled == nil || index == nil || scaled.Sign() <= 0 || index.Sign() <= 0 {
		return big.NewInt(0)
	}
	actual := new(big.Int).Mul(scaled, index)
	return actual.Quo(actual, Ray)
}

// RayToBps converts a RAY-scaled ratio to basis points: value * 10000 / RAY.
func RayToBps(value *big.Int) *big.Int {
	if value == nil || value.Sign() < 0 {
		return big.NewInt(0)
	}
	bps := new(big.Int).Mul(value, BasisPoints)
	return bps.Quo(bps, Ray)
}

// ScaleFactor returns 10^decimals for a token's on-chain precision.
func ScaleFactor(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
