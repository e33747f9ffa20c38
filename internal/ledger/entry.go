package ledger

import (
	"fmt"
	"time"

	"github.com/Smartdevs17/rootsave/internal/common"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindDeposit     Kind = "DEPOSIT"
	KindWithdraw    Kind = "WITHDRAW"
	KindYieldCredit Kind = "YIELD_CREDIT"
)

// Status is the lifecycle state of an entry. Pending is the only
// non-terminal state; Completed and Failed are absorbing.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether s is an absorbing status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Entry is one recorded financial event for an address.
type Entry struct {
	ID             string `badgerhold:"key"`
	Address        string `badgerholdIndex:"Address"`
	Kind           Kind
	Amount         string // decimal SOL string
	AmountLamports uint64
	// USDValueAtRecording is the decimal USD valuation captured when the
	// entry was written; "0" when no rate was available.
	USDValueAtRecording string
	CreatedAt           time.Time
	Status              Status
	TxHash              string
	Notes               string
}

// Stats is the fold of entry amounts by kind.
type Stats struct {
	TotalDeposited   uint64 // lamports
	TotalWithdrawn   uint64 // lamports
	TotalYieldEarned uint64 // lamports
	Count            int
}

// Filter narrows an Entries listing. Nil fields match everything.
type Filter struct {
	Kind        *Kind
	Status      *Status
	From        *time.Time
	To          *time.Time
	MinLamports *uint64
	MaxLamports *uint64
}

// Validate checks filter consistency.
func (f *Filter) Validate() error {
	if f.Kind != nil {
		switch *f.Kind {
		case KindDeposit, KindWithdraw, KindYieldCredit:
		default:
			return fmt.Errorf("kind must be DEPOSIT, WITHDRAW or YIELD_CREDIT")
		}
	}
	if f.Status != nil {
		switch *f.Status {
		case StatusPending, StatusCompleted, StatusFailed:
		default:
			return fmt.Errorf("status must be PENDING, COMPLETED or FAILED")
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("to date must be after or equal to from date")
	}
	if f.MinLamports != nil && f.MaxLamports != nil && *f.MinLamports > *f.MaxLamports {
		return fmt.Errorf("minAmount must be less than or equal to maxAmount")
	}
	return nil
}

func (f *Filter) matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.Kind != nil && e.Kind != *f.Kind {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	if f.MinLamports != nil && e.AmountLamports < *f.MinLamports {
		return false
	}
	if f.MaxLamports != nil && e.AmountLamports > *f.MaxLamports {
		return false
	}
	return true
}

// NewEntry builds an unpersisted entry from a decimal SOL amount.
func NewEntry(address string, kind Kind, amountSOL string, status Status) (*Entry, error) {
	lamports, err := common.SOLToLamports(amountSOL)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	return &Entry{
		Address:        address,
		Kind:           kind,
		Amount:         common.LamportsToSOL(lamports),
		AmountLamports: lamports,
		Status:         status,
	}, nil
}
