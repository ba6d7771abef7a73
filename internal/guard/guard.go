// Package guard validates user-initiated lending actions against the most
// recent chain snapshot before any transaction is formed. Every action gets a
// verdict with a stable machine-readable reason code; an action whose backing
// reads have not resolved yet is held in the validating state rather than
// approved or rejected.
package guard

import (
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"LendView/internal/chain"
	fpmath "LendView/internal/math"
	"LendView/internal/risk"
)

// Action identifies the lending operation being validated.
type Action uint8

const (
	ActionDeposit Action = iota
	ActionWithdraw
	ActionBorrow
	ActionRepay
)

func (a Action) String() string {
	switch a {
	case ActionDeposit:
		return "deposit"
	case ActionWithdraw:
		return "withdraw"
	case ActionBorrow:
		return "borrow"
	case ActionRepay:
		return "repay"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of a validation pass.
type Verdict uint8

const (
	// VerdictValidating means one or more reads the check depends on have
	// not resolved. The action must not be submitted in this state.
	VerdictValidating Verdict = iota
	VerdictValid
	VerdictInvalid
)

func (v Verdict) String() string {
	switch v {
	case VerdictValidating:
		return "validating"
	case VerdictValid:
		return "valid"
	case VerdictInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Reason is a stable machine-readable rejection code. Codes are part of the
// API surface; callers key UI copy and metrics labels off them.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonSnapshotIncomplete  Reason = "snapshot_incomplete"
	ReasonAmountNotPositive   Reason = "amount_not_positive"
	ReasonAssetNotSupported   Reason = "asset_not_supported"
	ReasonInsufficientWallet  Reason = "insufficient_wallet_balance"
	ReasonExceedsDeposit      Reason = "exceeds_deposit_balance"
	ReasonExceedsHeadroom     Reason = "exceeds_available_borrows"
	ReasonExceedsDebt         Reason = "exceeds_outstanding_debt"
	ReasonNoOutstandingDebt   Reason = "no_outstanding_debt"
	ReasonHealthFactorTooLow  Reason = "health_factor_too_low"
)

// ValidationResult carries the verdict for one action check. EffectiveAmount
// is the base-unit amount the check ran against; for a full repay it is the
// outstanding debt at snapshot time. Detail is the human-readable rejection
// text, and names the limiting balance at display precision where one exists.
type ValidationResult struct {
	Action          Action
	Verdict         Verdict
	Reason          Reason
	Detail          string
	EffectiveAmount *big.Int
}

// Approved reports whether the action may proceed to submission.
func (r ValidationResult) Approved() bool {
	return r.Verdict == VerdictValid
}

// RepayInput is either an exact base-unit amount or a request to clear the
// full outstanding debt. The two cases are distinguished structurally so no
// magic amount value flows through the validation path.
type RepayInput struct {
	full   bool
	amount *big.Int
}

// RepayExact repays the given base-unit amount.
func RepayExact(amount *big.Int) RepayInput {
	return RepayInput{amount: amount}
}

// RepayFull repays the entire outstanding debt.
func RepayFull() RepayInput {
	return RepayInput{full: true}
}

// IsFull reports whether the input requests a full repayment.
func (in RepayInput) IsFull() bool { return in.full }

// Amount returns the exact amount, or nil for a full repayment.
func (in RepayInput) Amount() *big.Int { return in.amount }

// Snapshot is the set of reads a validation pass consults. A nil field means
// the corresponding read has not resolved; checks that depend on it return
// the validating verdict instead of guessing.
type Snapshot struct {
	Reserve *chain.AssetReserveState

	// WalletBalance is the user's ERC-20 balance of the underlying asset.
	WalletBalance *big.Int

	// DepositBalance is the user's index-adjusted deposit in the asset.
	DepositBalance *big.Int

	// DebtBalance is the user's index-adjusted variable debt in the asset.
	DebtBalance *big.Int

	// AvailableToBorrow is the dual-cap borrow headroom in token base units.
	AvailableToBorrow *big.Int

	// Health is the user's current health factor. Nil until the read resolves.
	Health *risk.HealthFactor
}

// DefaultMinBorrowHealthFactor is the 1e18-scaled health factor floor below
// which new borrows are refused, 1.1 by default.
var DefaultMinBorrowHealthFactor = func() *big.Int {
	v, _ := new(big.Int).SetString("1100000000000000000", 10)
	return v
}()

// Guard runs action validation. Safe for concurrent use; it holds no mutable
// state beyond its configuration.
type Guard struct {
	minBorrowHealthFactor *big.Int
	log                   zerolog.Logger
}

// NewGuard builds a Guard. A nil minBorrowHealthFactor selects the default.
func NewGuard(log zerolog.Logger, minBorrowHealthFactor *big.Int) *Guard {
	if minBorrowHealthFactor == nil {
		minBorrowHealthFactor = DefaultMinBorrowHealthFactor
	}
	return &Guard{
		minBorrowHealthFactor: minBorrowHealthFactor,
		log:                   log.With().Str("component", "guard").Logger(),
	}
}

// CheckDeposit validates a deposit of amount base units against the user's
// wallet balance.
func (g *Guard) CheckDeposit(snap Snapshot, amount *big.Int) ValidationResult {
	if r, ok := g.commonChecks(ActionDeposit, snap, amount); !ok {
		return r
	}
	if snap.WalletBalance == nil {
		return g.pending(ActionDeposit)
	}
	if amount.Cmp(snap.WalletBalance) > 0 {
		detail := fmt.Sprintf("amount exceeds wallet balance of %s", displayLimit(snap, snap.WalletBalance))
		return g.reject(ActionDeposit, ReasonInsufficientWallet, detail, amount)
	}
	return g.approve(ActionDeposit, amount)
}

// CheckWithdraw validates a withdrawal against the user's deposit balance.
func (g *Guard) CheckWithdraw(snap Snapshot, amount *big.Int) ValidationResult {
	if r, ok := g.commonChecks(ActionWithdraw, snap, amount); !ok {
		return r
	}
	if snap.DepositBalance == nil {
		return g.pending(ActionWithdraw)
	}
	if amount.Cmp(snap.DepositBalance) > 0 {
		detail := fmt.Sprintf("amount exceeds deposited balance of %s", displayLimit(snap, snap.DepositBalance))
		return g.reject(ActionWithdraw, ReasonExceedsDeposit, detail, amount)
	}
	return g.approve(ActionWithdraw, amount)
}

// CheckBorrow validates a borrow against the dual-cap headroom and the
// minimum health factor floor.
func (g *Guard) CheckBorrow(snap Snapshot, amount *big.Int) ValidationResult {
	if r, ok := g.commonChecks(ActionBorrow, snap, amount); !ok {
		return r
	}
	if snap.AvailableToBorrow == nil || snap.Health == nil {
		return g.pending(ActionBorrow)
	}
	if amount.Cmp(snap.AvailableToBorrow) > 0 {
		detail := fmt.Sprintf("amount exceeds available borrow capacity of %s", displayLimit(snap, snap.AvailableToBorrow))
		return g.reject(ActionBorrow, ReasonExceedsHeadroom, detail, amount)
	}
	if snap.Health.AtOrBelow(g.minBorrowHealthFactor) {
		detail := fmt.Sprintf("health factor %s is at or below the %s minimum for new borrows",
			snap.Health.Display(), decimal.NewFromBigInt(g.minBorrowHealthFactor, -18).StringFixed(2))
		return g.reject(ActionBorrow, ReasonHealthFactorTooLow, detail, amount)
	}
	return g.approve(ActionBorrow, amount)
}

// CheckRepay validates a repayment. A full repayment resolves to the
// outstanding debt at snapshot time; both forms also require the wallet to
// cover the effective amount.
func (g *Guard) CheckRepay(snap Snapshot, input RepayInput) ValidationResult {
	if snap.Reserve == nil {
		return g.pending(ActionRepay)
	}
	if !snap.Reserve.IsSupported {
		return g.reject(ActionRepay, ReasonAssetNotSupported, "asset is not supported by the pool", input.Amount())
	}
	if snap.DebtBalance == nil {
		return g.pending(ActionRepay)
	}
	if snap.DebtBalance.Sign() == 0 {
		return g.reject(ActionRepay, ReasonNoOutstandingDebt, "no outstanding debt to repay", input.Amount())
	}

	amount := input.Amount()
	if input.IsFull() {
		amount = new(big.Int).Set(snap.DebtBalance)
	} else {
		if amount == nil || amount.Sign() <= 0 {
			return g.reject(ActionRepay, ReasonAmountNotPositive, "amount must be greater than zero", amount)
		}
		if amount.Cmp(snap.DebtBalance) > 0 {
			detail := fmt.Sprintf("amount exceeds outstanding debt of %s", displayLimit(snap, snap.DebtBalance))
			return g.reject(ActionRepay, ReasonExceedsDebt, detail, amount)
		}
	}

	if snap.WalletBalance == nil {
		return g.pending(ActionRepay)
	}
	if amount.Cmp(snap.WalletBalance) > 0 {
		detail := fmt.Sprintf("amount exceeds wallet balance of %s", displayLimit(snap, snap.WalletBalance))
		return g.reject(ActionRepay, ReasonInsufficientWallet, detail, amount)
	}
	return g.approve(ActionRepay, amount)
}

func (g *Guard) commonChecks(action Action, snap Snapshot, amount *big.Int) (ValidationResult, bool) {
	if amount == nil || amount.Sign() <= 0 {
		return g.reject(action, ReasonAmountNotPositive, "amount must be greater than zero", amount), false
	}
	if snap.Reserve == nil {
		return g.pending(action), false
	}
	if !snap.Reserve.IsSupported {
		return g.reject(action, ReasonAssetNotSupported, "asset is not supported by the pool", amount), false
	}
	return ValidationResult{}, true
}

// displayLimit renders a limiting balance at the asset's display precision.
// Only called on paths where the reserve read has resolved.
func displayLimit(snap Snapshot, limit *big.Int) string {
	return fpmath.FormatTokenAmount(limit, snap.Reserve.Decimals, fpmath.TokenDisplayDecimals)
}

func (g *Guard) pending(action Action) ValidationResult {
	return ValidationResult{Action: action, Verdict: VerdictValidating, Reason: ReasonSnapshotIncomplete}
}

func (g *Guard) approve(action Action, amount *big.Int) ValidationResult {
	return ValidationResult{Action: action, Verdict: VerdictValid, EffectiveAmount: amount}
}

func (g *Guard) reject(action Action, reason Reason, detail string, amount *big.Int) ValidationResult {
	g.log.Debug().
		Str("action", action.String()).
		Str("reason", string(reason)).
		Str("detail", detail).
		Msg("action rejected")
	return ValidationResult{Action: action, Verdict: VerdictInvalid, Reason: reason, Detail: detail, EffectiveAmount: amount}
}
