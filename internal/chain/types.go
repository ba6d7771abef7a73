package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetReserveState mirrors the per-asset reserve fields exposed by the
// lending pool. Index values are RAY-scaled and only ever increase; scaled
// totals multiplied by the matching index yield the actual totals.
type AssetReserveState struct {
	IsSupported                bool
	Decimals                   uint8
	LTV                        *big.Int // basis points
	LiquidationThreshold       *big.Int // basis points
	InterestRateStrategy       common.Address
	ReserveFactor              *big.Int // basis points
	LiquidationBonus           *big.Int // basis points
	LiquidityIndex             *big.Int // RAY
	VariableBorrowIndex        *big.Int // RAY
	LastUpdateTimestamp        *big.Int
	TotalScaledDeposits        *big.Int
	TotalScaledVariableBorrows *big.Int
	CurrentTotalReserves       *big.Int
	ATokenAddress              common.Address
	AnnualLiquidityRateRAY     *big.Int
	AnnualVariableBorrowRateRAY *big.Int
}

// Reader is the chain-state query surface consumed by the aggregator, guard,
// and session refresh loop. Implementations must be safe for concurrent use;
// every method is a single request/response read and honors ctx cancellation.
type Reader interface {
	// AssetData returns the reserve state for one underlying asset.
	AssetData(ctx context.Context, asset common.Address) (*AssetReserveState, error)

	// AssetPrice returns the oracle price in 8-decimal fixed point USD.
	AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error)

	// EffectiveUserDeposit returns the index-adjusted actual-unit deposit
	// balance for (asset, user).
	EffectiveUserDeposit(ctx context.Context, asset, user common.Address) (*big.Int, error)

	// EffectiveUserBorrowBalance returns the index-adjusted actual-unit
	// variable debt for (asset, user).
	EffectiveUserBorrowBalance(ctx context.Context, asset, user common.Address) (*big.Int, error)

	// UserTotalCollateralUSD returns the risk-weighted collateral value in
	// 8-decimal fixed point USD.
	UserTotalCollateralUSD(ctx context.Context, user common.Address) (*big.Int, error)

	// UserTotalDebtUSD returns the total debt value in 8-decimal fixed point USD.
	UserTotalDebtUSD(ctx context.Context, user common.Address) (*big.Int, error)

	// UserAvailableBorrowsUSD returns the remaining USD borrow headroom.
	UserAvailableBorrowsUSD(ctx context.Context, user common.Address) (*big.Int, error)

	// HealthFactor returns the raw 1e18-scaled health factor ratio. The
	// contract reports max uint256 for a debt-free account.
	HealthFactor(ctx context.Context, user common.Address) (*big.Int, error)

	// SupportedAssets returns the pool's reserve list.
	SupportedAssets(ctx context.Context) ([]common.Address, error)

	// WalletBalance returns the user's ERC-20 balance of the underlying asset.
	WalletBalance(ctx context.Context, asset, user common.Address) (*big.Int, error)
}
