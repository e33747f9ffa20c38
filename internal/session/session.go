// Package session is the orchestrating wallet state machine. It owns the
// in-memory key material while unlocked, sequences every chain-affecting
// operation through the ledger, and is the only component that performs
// cross-cutting error recovery.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Smartdevs17/rootsave/internal/chain"
	"github.com/Smartdevs17/rootsave/internal/common"
	"github.com/Smartdevs17/rootsave/internal/keymat"
	"github.com/Smartdevs17/rootsave/internal/ledger"
	"github.com/Smartdevs17/rootsave/internal/rates"
	"github.com/Smartdevs17/rootsave/internal/vault"
	"github.com/Smartdevs17/rootsave/internal/yield"
	"github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
)

// State is the session's mutually-exclusive mode.
type State int

const (
	// StateUninitialized: no vault entry exists.
	StateUninitialized State = iota
	// StateLocked: key material is stored but not resident in memory.
	StateLocked
	// StateUnlocked: key material is resident, address known.
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateLocked:
		return "LOCKED"
	case StateUnlocked:
		return "UNLOCKED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config tunes the session's recovery and yield-recording behavior.
type Config struct {
	// StaleEntryWindow bounds the recency search when a pending entry's id
	// was lost across an error boundary.
	StaleEntryWindow time.Duration

	// YieldTickInterval is the minimum spacing between recorded yield credits.
	YieldTickInterval time.Duration

	// YieldMinDeltaLamports is the smallest yield delta worth recording.
	YieldMinDeltaLamports uint64

	// AnnualRateBps drives display-only projections.
	AnnualRateBps uint32
}

func (c *Config) applyDefaults() {
	if c.StaleEntryWindow <= 0 {
		c.StaleEntryWindow = 5 * time.Minute
	}
	if c.YieldTickInterval <= 0 {
		c.YieldTickInterval = time.Hour
	}
	if c.YieldMinDeltaLamports == 0 {
		c.YieldMinDeltaLamports = 1000
	}
	if c.AnnualRateBps == 0 {
		c.AnnualRateBps = 500
	}
}

// Session is the wallet state machine. Construct exactly one per process in
// the composition root and pass it by reference; there is no global instance.
type Session struct {
	vault  *vault.Vault
	ledger *ledger.Store
	chain  chain.Client
	rates  rates.Source
	cfg    Config
	log    *log.Entry

	mu      sync.Mutex // guards state, keyPair, address, balance, lastRefreshErr
	state   State
	keyPair *keymat.KeyPair
	address string

	balance        uint64
	lastRefreshErr error
	refreshGen     atomic.Uint64

	// opMu serializes deposit/withdraw; a second caller fails fast
	opMu sync.Mutex
}

// New wires a Session from its capabilities. ratesSource may be nil, in which
// case every USD valuation records as zero.
func New(v *vault.Vault, l *ledger.Store, c chain.Client, ratesSource rates.Source, cfg Config) *Session {
	cfg.applyDefaults()
	return &Session{
		vault:  v,
		ledger: l,
		chain:  c,
		rates:  ratesSource,
		cfg:    cfg,
		state:  StateUninitialized,
		log:    log.WithField("component", "session"),
	}
}

// InitializeFromStored resolves the startup state from the vault without
// authenticating: Locked when key material exists, Uninitialized otherwise.
func (s *Session) InitializeFromStored() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Startup only: once the session has moved past Uninitialized the vault
	// no longer owns the state, and a re-init must not demote an Unlocked
	// session while its key material is still resident.
	if s.state != StateUninitialized {
		return s.state
	}

	if !s.vault.Exists() {
		s.state = StateUninitialized
		return s.state
	}

	s.state = StateLocked
	if addr, err := s.vault.Address(); err == nil {
		s.address = addr
	}
	return s.state
}

// CreateWallet generates fresh key material, stores it in the vault and
// transitions to Locked. The recovery phrase is returned exactly once for
// the caller to display for backup; it is not retrievable again.
func (s *Session) CreateWallet(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return "", ErrWalletExists
	}

	kp, err := keymat.Generate()
	if err != nil {
		return "", err
	}
	defer kp.Zero()

	if err := s.vault.Store(kp); err != nil {
		return "", fmt.Errorf("failed to store wallet: %w", err)
	}

	s.state = StateLocked
	s.address = kp.Address
	s.log.WithField("addr", kp.Address).Info("wallet created")

	return kp.RecoveryPhrase, nil
}

// ImportWallet derives key material from a recovery phrase and stores it.
func (s *Session) ImportWallet(ctx context.Context, phrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return ErrWalletExists
	}

	kp, err := keymat.FromPhrase(phrase)
	if err != nil {
		return err
	}
	defer kp.Zero()

	if err := s.vault.Store(kp); err != nil {
		return fmt.Errorf("failed to store wallet: %w", err)
	}

	s.state = StateLocked
	s.address = kp.Address
	s.log.WithField("addr", kp.Address).Info("wallet imported")

	return nil
}

// Unlock authenticates against the vault and loads key material into memory.
// A cancelled authentication returns (false, nil) and leaves the session
// Locked; every other vault error propagates. A successful unlock triggers a
// detached balance refresh that never blocks or fails the unlock itself.
func (s *Session) Unlock(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUnlocked {
		return true, nil
	}

	kp, err := s.vault.Read(ctx)
	if err != nil {
		if errors.Is(err, vault.ErrAuthenticationCancelled) {
			return false, nil
		}
		return false, err
	}

	s.keyPair = kp
	s.address = kp.Address
	s.state = StateUnlocked

	go s.refreshBalance()

	return true, nil
}

// Lock synchronously zeroes the in-memory key material.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnlocked {
		return
	}

	s.keyPair.Zero()
	s.keyPair = nil
	s.state = StateLocked
}

// ClearWallet wipes the per-address ledger, then the vault, then resets to
// Uninitialized. Ledger-clear failure is logged but never blocks the vault
// clear: losing history is non-fatal, failing to delete the key is not.
func (s *Session) ClearWallet(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Resolve the address while it is still known
	address := s.address
	if address == "" {
		if addr, err := s.vault.Address(); err == nil {
			address = addr
		}
	}

	if address != "" {
		if err := s.ledger.Clear(ctx, address); err != nil {
			s.log.WithError(err).WithField("addr", address).Error("failed to clear ledger, proceeding with vault clear")
		}
	}

	if err := s.vault.Clear(); err != nil {
		return fmt.Errorf("failed to clear vault: %w", err)
	}

	if s.keyPair != nil {
		s.keyPair.Zero()
		s.keyPair = nil
	}
	s.address = ""
	s.balance = 0
	s.lastRefreshErr = nil
	s.state = StateUninitialized

	return nil
}

// Deposit records a Pending intent, submits the deposit to the chain, and
// tracks the entry through confirmation. No ledger write means no broadcast;
// any chain failure after the write marks the entry Failed before the error
// propagates.
func (s *Session) Deposit(ctx context.Context, amount string) (string, error) {
	if !s.opMu.TryLock() {
		return "", ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	address, key, err := s.signingSnapshot()
	if err != nil {
		return "", err
	}

	lamports, err := common.SOLToLamports(amount)
	if err != nil || lamports == 0 {
		return "", ErrInvalidAmount
	}

	intent := chain.Intent{Kind: chain.IntentDeposit, AmountLamports: lamports}
	return s.executeIntent(ctx, address, key, ledger.KindDeposit, intent)
}

// WithdrawAll withdraws the full authoritative balance. The amount is fetched
// from the chain immediately before the Pending entry is recorded, never from
// a cached figure.
func (s *Session) WithdrawAll(ctx context.Context) (string, error) {
	if !s.opMu.TryLock() {
		return "", ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	address, key, err := s.signingSnapshot()
	if err != nil {
		return "", err
	}

	withdrawable, err := s.chain.TotalWithdrawable(ctx, address)
	if err != nil {
		return "", err
	}
	if withdrawable == 0 {
		return "", ErrNothingToWithdraw
	}

	intent := chain.Intent{Kind: chain.IntentWithdraw, AmountLamports: withdrawable}
	return s.executeIntent(ctx, address, key, ledger.KindWithdraw, intent)
}

// executeIntent runs the shared deposit/withdraw sequence:
// Pending entry -> submit -> txHash update -> confirmation -> Completed.
func (s *Session) executeIntent(ctx context.Context, address string, key solana.PrivateKey, kind ledger.Kind, intent chain.Intent) (string, error) {
	defer clear(key) // the key copy lives only for this signing operation

	amountSOL := common.LamportsToSOL(intent.AmountLamports)

	entry, err := ledger.NewEntry(address, kind, amountSOL, ledger.StatusPending)
	if err != nil {
		return "", err
	}
	entry.USDValueAtRecording = s.usdValuation(ctx, intent.AmountLamports)

	// Step 1: record the intent. Failure here aborts before any chain
	// interaction - no submission without a recorded intent.
	entryID, err := s.ledger.Append(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("failed to record intent: %w", err)
	}

	logger := s.log.WithFields(log.Fields{"addr": address, "kind": kind, "entry": entryID})

	// Step 2: broadcast
	txHash, err := s.chain.Submit(ctx, intent, key)
	if err != nil {
		logger.WithError(err).Warn("broadcast failed")
		s.markFailed(ctx, address, entryID, kind)
		return "", err
	}

	// Step 3: attach the hash while the entry stays Pending
	if err := s.ledger.UpdateStatus(ctx, address, entryID, ledger.StatusPending, txHash); err != nil {
		// Bookkeeping only: the submission is already out
		logger.WithError(err).Warn("failed to attach tx hash to ledger entry")
	}

	// Step 4: await confirmation. Once broadcast, the submission itself is
	// not cancellable; only its recorded outcome is.
	receipt, err := s.chain.WaitForConfirmation(ctx, txHash)
	if err != nil {
		logger.WithError(err).Warn("confirmation failed")
		s.markFailed(ctx, address, entryID, kind)
		return "", err
	}
	if receipt.Status != chain.ReceiptSuccess {
		s.markFailed(ctx, address, entryID, kind)
		return "", &chain.RevertError{Reason: "transaction failed on chain"}
	}

	// Step 5: terminal success
	if err := s.ledger.UpdateStatus(ctx, address, entryID, ledger.StatusCompleted, txHash); err != nil {
		logger.WithError(err).Warn("failed to complete ledger entry")
	}

	logger.WithField("tx", txHash).Info("operation confirmed")
	go s.refreshBalance()

	return txHash, nil
}

// markFailed best-effort marks the operation's Pending entry Failed so the
// ledger never shows a terminated operation as perpetually Pending. When the
// direct id no longer resolves, it falls back to scanning for a recent
// Pending entry of the same kind within the configured window.
func (s *Session) markFailed(ctx context.Context, address, entryID string, kind ledger.Kind) {
	if entryID != "" {
		err := s.ledger.UpdateStatus(ctx, address, entryID, ledger.StatusFailed, "")
		if err == nil {
			return
		}
		s.log.WithError(err).WithField("entry", entryID).Warn("direct failure update missed, scanning for stale pending entry")
	}

	stale, err := s.ledger.FindStalePending(ctx, address, kind, s.cfg.StaleEntryWindow)
	if err != nil || stale == nil {
		if err != nil {
			s.log.WithError(err).Warn("stale pending scan failed")
		}
		return
	}
	if err := s.ledger.UpdateStatus(ctx, address, stale.ID, ledger.StatusFailed, ""); err != nil {
		s.log.WithError(err).WithField("entry", stale.ID).Warn("failed to mark stale entry failed")
	}
}

// CurrentYield returns the chain's accrued yield. Advisory: a chain error
// degrades to zero rather than failing the caller.
func (s *Session) CurrentYield(ctx context.Context) uint64 {
	return s.advisoryRead(ctx, "currentYield", s.chain.CurrentYield)
}

// UserDeposit returns the active principal. Advisory, zero on error.
func (s *Session) UserDeposit(ctx context.Context) uint64 {
	return s.advisoryRead(ctx, "userDeposit", s.chain.UserDeposit)
}

// TotalWithdrawable returns principal plus yield. Advisory, zero on error;
// WithdrawAll never uses this path - it re-reads authoritatively and
// propagates failures.
func (s *Session) TotalWithdrawable(ctx context.Context) uint64 {
	return s.advisoryRead(ctx, "totalWithdrawable", s.chain.TotalWithdrawable)
}

func (s *Session) advisoryRead(ctx context.Context, op string, read func(context.Context, string) (uint64, error)) uint64 {
	address := s.Address()
	if address == "" {
		return 0
	}
	value, err := read(ctx, address)
	if err != nil {
		s.log.WithError(err).WithField("op", op).Debug("advisory read failed, degrading to zero")
		return 0
	}
	return value
}

// RecordYieldTick appends a Completed YieldCredit entry when at least the
// tick interval has passed since the last one and the yield accrued beyond
// what the ledger has recorded for the current deposit cycle exceeds the
// significance threshold. Purely a historical record; it never affects the
// withdrawable balance.
func (s *Session) RecordYieldTick(ctx context.Context) error {
	address := s.Address()
	if address == "" {
		return nil // no wallet, nothing to record
	}

	last, err := s.ledger.LastByKind(ctx, address, ledger.KindYieldCredit)
	if err != nil {
		return err
	}
	if last != nil && time.Since(last.CreatedAt) < s.cfg.YieldTickInterval {
		return nil
	}

	authoritative, err := s.chain.CurrentYield(ctx, address)
	if err != nil {
		return err
	}

	recorded, err := s.cycleYieldRecorded(ctx, address)
	if err != nil {
		return err
	}

	if authoritative <= recorded {
		return nil
	}
	delta := authoritative - recorded
	if delta < s.cfg.YieldMinDeltaLamports {
		return nil
	}

	entry, err := ledger.NewEntry(address, ledger.KindYieldCredit, common.LamportsToSOL(delta), ledger.StatusCompleted)
	if err != nil {
		return err
	}
	entry.USDValueAtRecording = s.usdValuation(ctx, delta)
	entry.Notes = "yield accrued"

	if _, err := s.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to record yield credit: %w", err)
	}

	s.log.WithFields(log.Fields{"addr": address, "lamports": delta}).Info("yield credit recorded")
	return nil
}

// cycleYieldRecorded sums the YieldCredit amounts appended since the last
// completed withdraw. A withdraw closes the position and the chain's accrued
// yield restarts from zero, so credits from earlier cycles must not count
// against the new baseline.
func (s *Session) cycleYieldRecorded(ctx context.Context, address string) (uint64, error) {
	withdrawKind := ledger.KindWithdraw
	completed := ledger.StatusCompleted
	withdraws, err := s.ledger.Entries(ctx, address, &ledger.Filter{Kind: &withdrawKind, Status: &completed})
	if err != nil {
		return 0, err
	}

	creditKind := ledger.KindYieldCredit
	filter := &ledger.Filter{Kind: &creditKind}
	if len(withdraws) > 0 {
		// Entries lists newest-first; the current cycle starts at the most
		// recent completed withdraw.
		filter.From = &withdraws[0].CreatedAt
	}

	credits, err := s.ledger.Entries(ctx, address, filter)
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, c := range credits {
		total += c.AmountLamports
	}
	return total, nil
}

// ProjectedYield is a display-only simple-interest projection of principal
// (decimal SOL) over elapsed at the configured annual rate.
func (s *Session) ProjectedYield(principal string, elapsed time.Duration) (string, error) {
	lamports, err := common.SOLToLamports(principal)
	if err != nil {
		return "", ErrInvalidAmount
	}
	return common.LamportsToSOL(yield.Projected(lamports, elapsed, s.cfg.AnnualRateBps)), nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsUnlocked reports whether key material is resident in memory.
func (s *Session) IsUnlocked() bool {
	return s.State() == StateUnlocked
}

// Address returns the wallet address, or "" when no wallet is known.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Balance returns the last refreshed native balance in lamports.
func (s *Session) Balance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// LastRefreshError exposes the detached balance refresh's most recent
// failure for debugging. Never propagated into operation results.
func (s *Session) LastRefreshError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefreshErr
}

// signingSnapshot returns the address and a copy of the private key for one
// signing operation. Fails with ErrNotUnlocked unless the session is unlocked.
func (s *Session) signingSnapshot() (string, solana.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnlocked || s.keyPair == nil {
		return "", nil, ErrNotUnlocked
	}

	key := make(solana.PrivateKey, len(s.keyPair.PrivateKey))
	copy(key, s.keyPair.PrivateKey)
	return s.address, key, nil
}

// usdValuation returns the decimal-USD value of lamports at the current
// rate. Advisory: any rate failure records as "0".
func (s *Session) usdValuation(ctx context.Context, lamports uint64) string {
	if s.rates == nil {
		return "0"
	}

	price, err := s.rates.SOLPriceUSD(ctx)
	if err != nil {
		s.log.WithError(err).Debug("rate lookup failed, recording zero valuation")
		return "0"
	}

	priceMicro, err := common.USDToMicro(price)
	if err != nil {
		return "0"
	}

	return common.MicroToUSD(common.USDValueMicro(lamports, priceMicro))
}

// refreshBalance is the detached post-unlock/post-operation balance read.
// Stale in-flight reads are discarded: the freshest result wins.
func (s *Session) refreshBalance() {
	gen := s.refreshGen.Add(1)

	address := s.Address()
	if address == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	balance, err := s.chain.GetBalance(ctx, address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshGen.Load() != gen {
		return // a newer refresh already landed
	}
	if err != nil {
		s.lastRefreshErr = err
		s.log.WithError(err).Debug("balance refresh failed")
		return
	}
	s.balance = balance
	s.lastRefreshErr = nil
}
