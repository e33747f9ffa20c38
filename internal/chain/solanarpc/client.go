// Package solanarpc is the production chain.Client adapter: it talks to a
// Solana RPC node and to the on-chain savings vault program.
package solanarpc

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Smartdevs17/rootsave/internal/chain"
	"github.com/Smartdevs17/rootsave/internal/yield"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// vaultSeed is the PDA seed prefix the program derives per-depositor
	// state accounts from.
	vaultSeed = "vault"

	confirmPollInterval = 2 * time.Second
)

// vaultState mirrors the program's per-depositor account layout
// (borsh, after the 8-byte account discriminator).
type vaultState struct {
	Depositor     solana.PublicKey
	Lamports      uint64
	DepositTs     int64
	AnnualRateBps uint32
}

// Client implements chain.Client over a Solana RPC endpoint.
type Client struct {
	rpcClient *rpc.Client
	programID solana.PublicKey
}

var _ chain.Client = (*Client)(nil)

// New creates a Client for the vault program at programID, speaking to rpcURL.
func New(rpcURL, programID string) (*Client, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid vault program id: %w", err)
	}

	return &Client{
		rpcClient: rpc.New(rpcURL),
		programID: program,
	}, nil
}

// Submit builds, signs and broadcasts the intent's program instruction.
// The key is used only within this call.
func (c *Client) Submit(ctx context.Context, intent chain.Intent, key solana.PrivateKey) (string, error) {
	if len(key) != 64 {
		return "", fmt.Errorf("invalid private key length: expected 64 bytes")
	}
	owner := key.PublicKey()

	instruction, err := c.buildInstruction(intent, owner)
	if err != nil {
		return "", err
	}

	// Get latest blockhash
	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", &chain.TransportError{Op: "getLatestBlockhash", Err: err}
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		recent.Value.Blockhash,
		solana.TransactionPayer(owner),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	// Sign transaction
	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if owner.Equals(pub) {
			return &key
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	// Send transaction
	sig, err := c.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false, // transaction validation before broadcast
			PreflightCommitment: rpc.CommitmentFinalized,
		},
	)
	if err != nil {
		if reason, reverted := revertReason(err); reverted {
			return "", &chain.RevertError{Reason: reason}
		}
		return "", &chain.TransportError{Op: "sendTransaction", Err: err}
	}

	return sig.String(), nil
}

// buildInstruction assembles the deposit or withdraw instruction.
// Accounts: depositor (signer, writable), vault state PDA (writable),
// system program.
func (c *Client) buildInstruction(intent chain.Intent, owner solana.PublicKey) (solana.Instruction, error) {
	statePDA, _, err := c.findStateAddress(owner)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch intent.Kind {
	case chain.IntentDeposit:
		amount := make([]byte, 8)
		binary.LittleEndian.PutUint64(amount, intent.AmountLamports)
		data = append(instructionDiscriminator("deposit"), amount...)
	case chain.IntentWithdraw:
		// withdraw pays out the full balance, no args
		data = instructionDiscriminator("withdraw")
	default:
		return nil, fmt.Errorf("unknown intent kind: %s", intent.Kind)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(statePDA, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}

	return solana.NewInstruction(c.programID, accounts, data), nil
}

// WaitForConfirmation polls signature status until the transaction reaches a
// confirmed commitment or ctx expires.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string) (*chain.Receipt, error) {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hash: %w", err)
	}

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, &chain.TransportError{Op: "waitForConfirmation", Err: ctx.Err()}
		case <-ticker.C:
		}

		out, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return nil, &chain.TransportError{Op: "getSignatureStatuses", Err: err}
		}
		if len(out.Value) == 0 || out.Value[0] == nil {
			continue // not yet visible
		}

		status := out.Value[0]
		if status.ConfirmationStatus != rpc.ConfirmationStatusConfirmed &&
			status.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
			continue
		}

		receipt := &chain.Receipt{
			Status:      chain.ReceiptSuccess,
			Slot:        status.Slot,
			FeeLamports: c.transactionFee(ctx, sig),
		}
		if status.Err != nil {
			receipt.Status = chain.ReceiptFailed
		}
		return receipt, nil
	}
}

// transactionFee fetches the paid fee. Best-effort: a zero fee on lookup
// failure never blocks confirmation.
func (c *Client) transactionFee(ctx context.Context, sig solana.Signature) uint64 {
	maxVersion := uint64(0)
	tx, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil || tx == nil || tx.Meta == nil {
		return 0
	}
	return tx.Meta.Fee
}

// CurrentYield returns the program's accrued yield for address.
// Yield accrues as simple interest on the recorded principal at the account's
// rate, mirroring the program's own accounting.
func (c *Client) CurrentYield(ctx context.Context, address string) (uint64, error) {
	state, err := c.fetchState(ctx, address)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	return accruedYield(state), nil
}

// UserDeposit returns the active principal for address.
func (c *Client) UserDeposit(ctx context.Context, address string) (uint64, error) {
	state, err := c.fetchState(ctx, address)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	return state.Lamports, nil
}

// TotalWithdrawable returns principal plus accrued yield for address.
func (c *Client) TotalWithdrawable(ctx context.Context, address string) (uint64, error) {
	state, err := c.fetchState(ctx, address)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	total := state.Lamports + accruedYield(state)
	if total < state.Lamports {
		total = ^uint64(0) // saturate on overflow
	}
	return total, nil
}

// GetBalance returns the native SOL balance in lamports.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid Solana address: %w", err)
	}

	balance, err := c.rpcClient.GetBalance(ctx, pub, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, &chain.TransportError{Op: "getBalance", Err: err}
	}
	return balance.Value, nil
}

// fetchState loads and decodes the depositor's vault state account.
// A missing account means no active deposit and returns nil, nil.
func (c *Client) fetchState(ctx context.Context, address string) (*vaultState, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid Solana address: %w", err)
	}

	statePDA, _, err := c.findStateAddress(pub)
	if err != nil {
		return nil, err
	}

	out, err := c.rpcClient.GetAccountInfo(ctx, statePDA)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, &chain.TransportError{Op: "getAccountInfo", Err: err}
	}
	if out.Value == nil {
		return nil, nil
	}

	data := out.Value.Data.GetBinary()
	if len(data) <= 8 {
		return nil, fmt.Errorf("vault state account too short: %d bytes", len(data))
	}

	// Skip the 8-byte account discriminator
	var state vaultState
	if err := bin.NewBorshDecoder(data[8:]).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode vault state: %w", err)
	}

	return &state, nil
}

func (c *Client) findStateAddress(owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	pda, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte(vaultSeed), owner.Bytes()},
		c.programID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive vault state address: %w", err)
	}
	return pda, bump, nil
}

func accruedYield(state *vaultState) uint64 {
	elapsed := time.Since(time.Unix(state.DepositTs, 0))
	return yield.Projected(state.Lamports, elapsed, state.AnnualRateBps)
}

// instructionDiscriminator derives the 8-byte instruction tag from its name,
// per the program's IDL convention.
func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// revertReason extracts a program rejection from an RPC send error.
// Preflight simulation failures carry the program logs in the error text.
func revertReason(err error) (string, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "custom program error") &&
		!strings.Contains(msg, "Transaction simulation failed") &&
		!strings.Contains(msg, "InstructionError") {
		return "", false
	}

	// Prefer the program's own message when the logs carry one
	if idx := strings.Index(msg, "Error Message:"); idx >= 0 {
		reason := msg[idx+len("Error Message:"):]
		if end := strings.IndexAny(reason, ".\n\""); end > 0 {
			reason = reason[:end]
		}
		return strings.TrimSpace(reason), true
	}
	return msg, true
}
