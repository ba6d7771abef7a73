// Package submit turns approved actions into pool transactions. Every
// user-position action passes through the guard first; a local rejection
// never reaches the chain and is reported distinctly from an on-chain
// failure.
package submit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"LendView/internal/assets"
	"LendView/internal/guard"
	fpmath "LendView/internal/math"
	"LendView/internal/observability"
	"LendView/internal/session"
)

// PoolTransactor executes lending pool operations. Implementations block
// until the transaction is confirmed and return its hash. Approve targets
// the pool as spender.
type PoolTransactor interface {
	Approve(ctx context.Context, asset common.Address, amount *big.Int) (common.Hash, error)
	Deposit(ctx context.Context, asset common.Address, amount *big.Int) (common.Hash, error)
	Withdraw(ctx context.Context, asset common.Address, amount *big.Int) (common.Hash, error)
	Borrow(ctx context.Context, asset common.Address, amount *big.Int) (common.Hash, error)
	Repay(ctx context.Context, asset common.Address, amount *big.Int) (common.Hash, error)
	LiquidationCall(ctx context.Context, collateralAsset, debtAsset, borrower common.Address, debtToCover *big.Int, receiveUnderlying bool) (common.Hash, error)
	FlashLoan(ctx context.Context, receiver, asset common.Address, amount *big.Int, params []byte) (common.Hash, error)
}

// RejectedError reports that the guard refused an action locally. No
// transaction was formed or sent.
type RejectedError struct {
	Result guard.ValidationResult
}

func (e *RejectedError) Error() string {
	if e.Result.Verdict == guard.VerdictValidating {
		return fmt.Sprintf("%s held: required reads have not resolved", e.Result.Action)
	}
	return fmt.Sprintf("%s rejected: %s", e.Result.Action, e.Result.Reason)
}

// ChainError wraps a failure that happened after the guard approved, so
// callers can tell a reverted or unsent transaction from a local rejection.
type ChainError struct {
	Action guard.Action
	Err    error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s failed on chain: %v", e.Action, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// Submitter is the guarded write path. It validates against the session
// snapshot, sends through the transactor, and refreshes the session once the
// transaction confirms so the next validation sees the new position.
type Submitter struct {
	transactor PoolTransactor
	registry   *assets.Registry
	metrics    *observability.Metrics
	log        zerolog.Logger
}

// NewSubmitter wires a submitter. metrics may be nil.
func NewSubmitter(transactor PoolTransactor, registry *assets.Registry, metrics *observability.Metrics, log zerolog.Logger) *Submitter {
	return &Submitter{
		transactor: transactor,
		registry:   registry,
		metrics:    metrics,
		log:        log.With().Str("component", "submitter").Logger(),
	}
}

// Deposit validates, approves the pool for the amount, and deposits.
func (s *Submitter) Deposit(ctx context.Context, sess *session.Session, asset common.Address, amount *big.Int) (common.Hash, error) {
	result := sess.Validate(guard.ActionDeposit, asset, amount)
	return s.execute(ctx, sess, asset, result, true)
}

// Withdraw validates and withdraws.
func (s *Submitter) Withdraw(ctx context.Context, sess *session.Session, asset common.Address, amount *big.Int) (common.Hash, error) {
	result := sess.Validate(guard.ActionWithdraw, asset, amount)
	return s.execute(ctx, sess, asset, result, false)
}

// Borrow validates and borrows.
func (s *Submitter) Borrow(ctx context.Context, sess *session.Session, asset common.Address, amount *big.Int) (common.Hash, error) {
	result := sess.Validate(guard.ActionBorrow, asset, amount)
	return s.execute(ctx, sess, asset, result, false)
}

// Repay validates and repays. A full repayment is sent with the max uint256
// sentinel the pool interprets as "entire debt", with the allowance set to
// the same sentinel so interest accrued between validation and inclusion is
// still covered.
func (s *Submitter) Repay(ctx context.Context, sess *session.Session, asset common.Address, input guard.RepayInput) (common.Hash, error) {
	result := sess.ValidateRepay(asset, input)
	if input.IsFull() && result.Approved() {
		result.EffectiveAmount = new(big.Int).Set(fpmath.MaxUint256)
	}
	return s.execute(ctx, sess, asset, result, true)
}

// execute runs the shared approve/send/refresh path for one validated action.
func (s *Submitter) execute(ctx context.Context, sess *session.Session, asset common.Address, result guard.ValidationResult, needsAllowance bool) (common.Hash, error) {
	action := result.Action
	if s.metrics != nil {
		s.metrics.SubmissionsAttempted.WithLabelValues(action.String()).Inc()
	}

	if !result.Approved() {
		if s.metrics != nil {
			s.metrics.SubmissionsRejected.WithLabelValues(action.String(), string(result.Reason)).Inc()
		}
		return common.Hash{}, &RejectedError{Result: result}
	}

	start := time.Now()
	amount := result.EffectiveAmount

	if needsAllowance {
		if _, err := s.transactor.Approve(ctx, asset, amount); err != nil {
			return s.chainFailure(action, fmt.Errorf("approve: %w", err))
		}
	}

	var (
		hash common.Hash
		err  error
	)
	switch action {
	case guard.ActionDeposit:
		hash, err = s.transactor.Deposit(ctx, asset, amount)
	case guard.ActionWithdraw:
		hash, err = s.transactor.Withdraw(ctx, asset, amount)
	case guard.ActionBorrow:
		hash, err = s.transactor.Borrow(ctx, asset, amount)
	case guard.ActionRepay:
		hash, err = s.transactor.Repay(ctx, asset, amount)
	default:
		err = fmt.Errorf("unsupported action %s", action)
	}
	if err != nil {
		return s.chainFailure(action, err)
	}

	if s.metrics != nil {
		s.metrics.SubmissionDuration.WithLabelValues(action.String()).Observe(time.Since(start).Seconds())
	}
	s.log.Info().
		Str("action", action.String()).
		Str("asset", asset.Hex()).
		Str("tx", hash.Hex()).
		Msg("transaction confirmed")

	// The position changed; re-read before the next validation.
	if err := sess.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("post-confirmation refresh incomplete")
	}
	return hash, nil
}

func (s *Submitter) chainFailure(action guard.Action, err error) (common.Hash, error) {
	if s.metrics != nil {
		s.metrics.SubmissionsFailed.WithLabelValues(action.String()).Inc()
	}
	s.log.Error().Err(err).Str("action", action.String()).Msg("transaction failed")
	return common.Hash{}, &ChainError{Action: action, Err: err}
}

// LiquidationCall forwards a liquidation. Only argument sanity is checked
// locally; profitability and health factor screening are the caller's
// concern.
func (s *Submitter) LiquidationCall(ctx context.Context, sess *session.Session, collateralAsset, debtAsset, borrower common.Address, debtToCover *big.Int, receiveUnderlying bool) (common.Hash, error) {
	if collateralAsset == (common.Address{}) || debtAsset == (common.Address{}) || borrower == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("liquidation call: zero address argument")
	}
	if collateralAsset == debtAsset {
		return common.Hash{}, fmt.Errorf("liquidation call: collateral and debt assets must differ")
	}
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("liquidation call: debt to cover must be positive")
	}

	hash, err := s.transactor.LiquidationCall(ctx, collateralAsset, debtAsset, borrower, debtToCover, receiveUnderlying)
	if err != nil {
		return common.Hash{}, fmt.Errorf("liquidation call: %w", err)
	}
	if sess != nil {
		if err := sess.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("post-liquidation refresh incomplete")
		}
	}
	return hash, nil
}

// FlashLoan forwards a flash loan request after argument sanity checks.
func (s *Submitter) FlashLoan(ctx context.Context, receiver, asset common.Address, amount *big.Int, params []byte) (common.Hash, error) {
	if receiver == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("flash loan: receiver required")
	}
	if s.registry != nil {
		if _, ok := s.registry.Lookup(asset); !ok {
			return common.Hash{}, fmt.Errorf("flash loan: asset %s not supported", asset.Hex())
		}
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("flash loan: amount must be positive")
	}
	return s.transactor.FlashLoan(ctx, receiver, asset, amount, params)
}
