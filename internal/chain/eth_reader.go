package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"LendView/internal/observability"
)

// A returned struct of static fields ABI-encodes identically to a flat output
// list, so the pool ABI is declared flat to keep unpacking simple.
const lendingPoolABI = `[
	{"inputs":[{"name":"asset","type":"address"}],"name":"getAssetData","outputs":[
		{"name":"isSupported","type":"bool"},
		{"name":"decimals","type":"uint8"},
		{"name":"ltv","type":"uint256"},
		{"name":"liquidationThreshold","type":"uint256"},
		{"name":"interestRateStrategy","type":"address"},
		{"name":"reserveFactor","type":"uint256"},
		{"name":"liquidationBonus","type":"uint256"},
		{"name":"liquidityIndex","type":"uint256"},
		{"name":"variableBorrowIndex","type":"uint256"},
		{"name":"lastUpdateTimestamp","type":"uint256"},
		{"name":"totalScaledDeposits","type":"uint256"},
		{"name":"totalScaledVariableBorrows","type":"uint256"},
		{"name":"currentTotalReserves","type":"uint256"},
		{"name":"aTokenAddress","type":"address"},
		{"name":"currentAnnualLiquidityRateRAY","type":"uint256"},
		{"name":"currentAnnualVariableBorrowRateRAY","type":"uint256"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"user","type":"address"}],"name":"getEffectiveUserDeposit","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"user","type":"address"}],"name":"getEffectiveUserBorrowBalance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"user","type":"address"}],"name":"getUserTotalCollateralUSD","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"user","type":"address"}],"name":"getUserTotalDebtUSD","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"user","type":"address"}],"name":"getUserAvailableBorrowsUSD","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"user","type":"address"}],"name":"calculateHealthFactor","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getSupportedAssets","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"}
]`

const priceOracleABI = `[
	{"inputs":[{"name":"asset","type":"address"}],"name":"getAssetPrice","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const erc20ABI = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the subset of the Ethereum RPC used for reads. Satisfied
// by *ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthReader implements Reader against a lending pool and price oracle
// deployment via eth_call.
type EthReader struct {
	caller  ContractCaller
	pool    common.Address
	oracle  common.Address
	metrics *observability.Metrics

	poolABI   abi.ABI
	oracleABI abi.ABI
	tokenABI  abi.ABI
}

// Dial connects to an EVM RPC endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// NewEthReader builds a reader bound to the given contract addresses.
// metrics may be nil.
func NewEthReader(caller ContractCaller, pool, oracle common.Address, metrics *observability.Metrics) (*EthReader, error) {
	poolParsed, err := abi.JSON(strings.NewReader(lendingPoolABI))
	if err != nil {
		return nil, fmt.Errorf("parse lending pool ABI: %w", err)
	}
	oracleParsed, err := abi.JSON(strings.NewReader(priceOracleABI))
	if err != nil {
		return nil, fmt.Errorf("parse price oracle ABI: %w", err)
	}
	tokenParsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 ABI: %w", err)
	}
	return &EthReader{
		caller:    caller,
		pool:      pool,
		oracle:    oracle,
		metrics:   metrics,
		poolABI:   poolParsed,
		oracleABI: oracleParsed,
		tokenABI:  tokenParsed,
	}, nil
}

func (r *EthReader) call(ctx context.Context, target common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	start := time.Now()
	ret, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	r.observe(method, start, err)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := parsed.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func (r *EthReader) observe(method string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.ChainReads.WithLabelValues(method).Inc()
	r.metrics.ChainReadDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.ChainReadErrors.WithLabelValues(method).Inc()
	}
}

func (r *EthReader) callUint(ctx context.Context, target common.Address, parsed abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	out, err := r.call(ctx, target, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected return arity %d", method, len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, out[0])
	}
	return value, nil
}

// AssetData fetches and decodes the full reserve state for an asset.
func (r *EthReader) AssetData(ctx context.Context, asset common.Address) (*AssetReserveState, error) {
	out, err := r.call(ctx, r.pool, r.poolABI, "getAssetData", asset)
	if err != nil {
		return nil, err
	}
	if len(out) != 16 {
		return nil, fmt.Errorf("getAssetData: unexpected return arity %d", len(out))
	}

	state := &AssetReserveState{}
	fields := []struct {
		dst interface{}
		src interface{}
	}{
		{&state.IsSupported, out[0]},
		{&state.Decimals, out[1]},
		{&state.LTV, out[2]},
		{&state.LiquidationThreshold, out[3]},
		{&state.InterestRateStrategy, out[4]},
		{&state.ReserveFactor, out[5]},
		{&state.LiquidationBonus, out[6]},
		{&state.LiquidityIndex, out[7]},
		{&state.VariableBorrowIndex, out[8]},
		{&state.LastUpdateTimestamp, out[9]},
		{&state.TotalScaledDeposits, out[10]},
		{&state.TotalScaledVariableBorrows, out[11]},
		{&state.CurrentTotalReserves, out[12]},
		{&state.ATokenAddress, out[13]},
		{&state.AnnualLiquidityRateRAY, out[14]},
		{&state.AnnualVariableBorrowRateRAY, out[15]},
	}
	for i, f := range fields {
		if err := assign(f.dst, f.src); err != nil {
			return nil, fmt.Errorf("getAssetData field %d: %w", i, err)
		}
	}
	return state, nil
}

func assign(dst, src interface{}) error {
	switch d := dst.(type) {
	case *bool:
		v, ok := src.(bool)
		if !ok {
			return fmt.Errorf("want bool, got %T", src)
		}
		*d = v
	case *uint8:
		v, ok := src.(uint8)
		if !ok {
			return fmt.Errorf("want uint8, got %T", src)
		}
		*d = v
	case **big.Int:
		v, ok := src.(*big.Int)
		if !ok {
			return fmt.Errorf("want *big.Int, got %T", src)
		}
		*d = v
	case *common.Address:
		v, ok := src.(common.Address)
		if !ok {
			return fmt.Errorf("want address, got %T", src)
		}
		*d = v
	default:
		return fmt.Errorf("unsupported destination %T", dst)
	}
	return nil
}

// AssetPrice reads the oracle price for an asset.
func (r *EthReader) AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	return r.callUint(ctx, r.oracle, r.oracleABI, "getAssetPrice", asset)
}

// EffectiveUserDeposit reads the actual-unit deposit balance.
func (r *EthReader) EffectiveUserDeposit(ctx context.Context, asset, user common.Address) (*big.Int, error) {
	return r.callUint(ctx, r.pool, r.poolABI, "getEffectiveUserDeposit", asset, user)
}

// EffectiveUserBorrowBalance reads the actual-unit debt balance.
func (r *EthReader) EffectiveUserBorrowBalance(ctx context.Context, asset, user common.Address) (*big.Int, error) {
	return r.callUint(ctx, r.pool, r.poolABI, "getEffectiveUserBorrowBalance", asset, user)
}

// UserTotalCollateralUSD reads the USD collateral total.
func (r *EthReader) UserTotalCollateralUSD(ctx context.Context, user common.Address) (*big.Int, error) {
	return r.callUint(ctx, r.pool, r.poolABI, "getUserTotalCollateralUSD", user)
}

// UserTotalDebtUSD reads the USD debt total.
func (r *EthReader) UserTotalDebtUSD(ctx context.Context, user common.Address) (*big.Int, error) {
	return r.callUint(ctx, r.pool, r.poolABI, "getUserTotalDebtUSD", user)
}

// UserAvailableBorrowsUSD reads the USD borrow headroom.
func (r *EthReader) UserAvailableBorrowsUSD(ctx context.Context, user common.Address) (*big.Int, error) {
	return r.callUint(ctx, r.pool, r.poolABI, "getUserAvailableBorrowsUSD", user)
}

// HealthFactor reads the raw 1e18-scaled health factor.
func (r *EthReader) HealthFactor(ctx context.Context, user common.Address) (*big.Int, error) {
	return r.callUint(ctx, r.pool, r.poolABI, "calculateHealthFactor", user)
}

// SupportedAssets reads the pool's reserve list.
func (r *EthReader) SupportedAssets(ctx context.Context) ([]common.Address, error) {
	out, err := r.call(ctx, r.pool, r.poolABI, "getSupportedAssets")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getSupportedAssets: unexpected return arity %d", len(out))
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getSupportedAssets: unexpected return type %T", out[0])
	}
	return addrs, nil
}

// WalletBalance reads the ERC-20 balance of the underlying token.
func (r *EthReader) WalletBalance(ctx context.Context, asset, user common.Address) (*big.Int, error) {
	return r.callUint(ctx, asset, r.tokenABI, "balanceOf", user)
}
