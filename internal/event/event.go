package event

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind discriminates the four protocol event categories.
type Kind int32

const (
	KindUnknown Kind = iota
	KindDeposit
	KindWithdraw
	KindBorrow
	KindRepay
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "Deposit"
	case KindWithdraw:
		return "Withdraw"
	case KindBorrow:
		return "Borrow"
	case KindRepay:
		return "Repay"
	default:
		return "Unknown"
	}
}

// Kinds lists all concrete event categories, in emission-schema order.
func Kinds() []Kind {
	return []Kind{KindDeposit, KindWithdraw, KindBorrow, KindRepay}
}

// Coordinates pins an event to its on-chain location. TxHash plus LogIndex is
// globally unique even when one transaction emits several matching events.
type Coordinates struct {
	TxHash      common.Hash
	LogIndex    uint
	BlockNumber uint64
}

// DedupKey returns the stable identity used by the ledger reconciler.
func (c Coordinates) DedupKey() string {
	return fmt.Sprintf("%s:%d", c.TxHash.Hex(), c.LogIndex)
}

// PositionEvent is one decoded Deposited/Withdrawn/Borrowed/Repaid emission.
// Repayer is only set for repayments, where the actor settling the debt may
// differ from the debtor.
type PositionEvent struct {
	Kind         Kind
	Asset        common.Address
	User         common.Address
	Repayer      *common.Address
	Amount       *big.Int // underlying asset units
	ScaledAmount *big.Int
	Timestamp    time.Time // block timestamp as reported by the contract
	Coordinates
}

// ConcernsUser reports whether the event belongs in the given user's history.
// A repayment is relevant if the user is either the debtor or the repayer.
func (e *PositionEvent) ConcernsUser(user common.Address) bool {
	if e.User == user {
		return true
	}
	if e.Kind == KindRepay && e.Repayer != nil && *e.Repayer == user {
		return true
	}
	return false
}
