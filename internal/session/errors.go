package session

import (
	"errors"

	"github.com/Smartdevs17/rootsave/internal/chain"
	"github.com/Smartdevs17/rootsave/internal/keymat"
	"github.com/Smartdevs17/rootsave/internal/ledger"
	"github.com/Smartdevs17/rootsave/internal/vault"
)

var (
	// ErrNotUnlocked guards chain-affecting operations: the session must be
	// unlocked first.
	ErrNotUnlocked = errors.New("wallet is not unlocked")

	// ErrOperationInProgress means a deposit or withdraw is already in
	// flight. Fail-fast rather than queueing keeps user intent explicit.
	ErrOperationInProgress = errors.New("another operation is in progress")

	// ErrNothingToWithdraw means the authoritative withdrawable amount is zero.
	ErrNothingToWithdraw = errors.New("nothing to withdraw")

	// ErrWalletExists guards create/import when key material is already stored.
	ErrWalletExists = errors.New("a wallet already exists on this device")

	// ErrInvalidAmount rejects zero or unparseable amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
)

// Classify maps any error propagated by the session to a short, stable code
// and a human-readable message. Raw transport messages never reach the user.
func Classify(err error) (code, message string) {
	var revert *chain.RevertError

	switch {
	case errors.Is(err, vault.ErrVaultUnavailable):
		return "VAULT_UNAVAILABLE", "No device authentication method is enrolled. Enable a screen lock or biometrics and try again."
	case errors.Is(err, vault.ErrAuthenticationCancelled):
		return "AUTH_CANCELLED", "Authentication was cancelled."
	case errors.Is(err, vault.ErrAuthenticationFailed):
		return "AUTH_FAILED", "Authentication failed. Try again."
	case errors.Is(err, vault.ErrNotFound):
		return "WALLET_NOT_FOUND", "No wallet is stored on this device."
	case errors.Is(err, vault.ErrMalformedKey):
		return "MALFORMED_KEY", "The key material is malformed and was rejected."
	case errors.Is(err, keymat.ErrInvalidPhrase):
		return "INVALID_PHRASE", "The recovery phrase is invalid. It must be 12 or 24 words from the standard wordlist."
	case errors.Is(err, keymat.ErrEntropy):
		return "ENTROPY_UNAVAILABLE", "The device's secure random source is unavailable."
	case errors.Is(err, ErrNotUnlocked):
		return "NOT_UNLOCKED", "Unlock the wallet first."
	case errors.Is(err, ErrOperationInProgress):
		return "OPERATION_IN_PROGRESS", "Another operation is still in progress. Wait for it to finish."
	case errors.Is(err, ErrNothingToWithdraw):
		return "NOTHING_TO_WITHDRAW", "There is nothing to withdraw."
	case errors.Is(err, ErrWalletExists):
		return "WALLET_EXISTS", "A wallet already exists on this device. Clear it before creating a new one."
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT", "Enter an amount greater than zero."
	case errors.As(err, &revert):
		if revert.Reason == "" {
			return "CHAIN_REVERT", "The savings program rejected the operation."
		}
		return "CHAIN_REVERT", "The savings program rejected the operation: " + revert.Reason
	case chain.IsTransport(err):
		return "CHAIN_TRANSPORT", "A network error occurred talking to the chain. The operation was not retried automatically; try again."
	case errors.Is(err, ledger.ErrEntryNotFound):
		return "ENTRY_NOT_FOUND", "A ledger record could not be found."
	default:
		return "INTERNAL", "Something went wrong."
	}
}
