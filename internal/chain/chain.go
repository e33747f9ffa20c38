// Package chain defines the injected chain-client capability the wallet
// session issues its operations through. The production adapter lives in
// chain/solanarpc; tests substitute fakes.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// IntentKind is the chain-affecting operation being requested.
type IntentKind string

const (
	IntentDeposit  IntentKind = "DEPOSIT"
	IntentWithdraw IntentKind = "WITHDRAW"
)

// Intent is one user-initiated vault program operation. For withdraws the
// amount is bookkeeping only: the program always pays out the full
// withdrawable balance.
type Intent struct {
	Kind           IntentKind
	AmountLamports uint64
}

// ReceiptStatus is the confirmed outcome of a submitted transaction.
type ReceiptStatus string

const (
	ReceiptSuccess ReceiptStatus = "SUCCESS"
	ReceiptFailed  ReceiptStatus = "FAILED"
)

// Receipt carries the chain's inclusion metadata for a confirmed transaction.
type Receipt struct {
	Status      ReceiptStatus
	Slot        uint64
	FeeLamports uint64
}

// Client is the chain capability. All calls are network I/O bounded by ctx.
// Implementations receive the private key only as a short-lived signing
// parameter and must not retain it.
type Client interface {
	// Submit signs and broadcasts the intent, returning the transaction hash.
	Submit(ctx context.Context, intent Intent, key solana.PrivateKey) (string, error)

	// WaitForConfirmation blocks until the transaction reaches a confirmed
	// commitment or ctx expires.
	WaitForConfirmation(ctx context.Context, txHash string) (*Receipt, error)

	// CurrentYield returns the accrued-but-unwithdrawn yield in lamports per
	// the vault program's own accounting.
	CurrentYield(ctx context.Context, address string) (uint64, error)

	// UserDeposit returns the active principal in lamports.
	UserDeposit(ctx context.Context, address string) (uint64, error)

	// TotalWithdrawable returns principal plus accrued yield in lamports,
	// the authoritative figure a withdraw pays out.
	TotalWithdrawable(ctx context.Context, address string) (uint64, error)

	// GetBalance returns the address's native balance in lamports.
	GetBalance(ctx context.Context, address string) (uint64, error)
}

// TransportError is a transient network or RPC failure. Eligible for
// user-initiated retry; never auto-retried because a resend may duplicate a
// submission.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chain transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RevertError means the vault program rejected the operation.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "transaction reverted by program"
	}
	return fmt.Sprintf("transaction reverted: %s", e.Reason)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRevert reports whether err is (or wraps) a RevertError.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}
