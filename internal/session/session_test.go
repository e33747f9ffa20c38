package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Smartdevs17/rootsave/internal/chain"
	"github.com/Smartdevs17/rootsave/internal/keymat"
	"github.com/Smartdevs17/rootsave/internal/ledger"
	"github.com/Smartdevs17/rootsave/internal/vault"
	"github.com/Smartdevs17/rootsave/internal/vault/securestore"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// fakeSecureStore is an in-memory securestore with scriptable failures.
type fakeSecureStore struct {
	mu      sync.Mutex
	stored  bool
	account string
	secret  []byte
	getErr  error
}

func (f *fakeSecureStore) Put(service, account string, secret []byte, policy securestore.AuthPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = true
	f.account = account
	f.secret = append([]byte(nil), secret...)
	return nil
}

func (f *fakeSecureStore) Get(ctx context.Context, service, reason string) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", nil, f.getErr
	}
	if !f.stored {
		return "", nil, securestore.ErrNotFound
	}
	return f.account, append([]byte(nil), f.secret...), nil
}

func (f *fakeSecureStore) Account(service string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stored {
		return "", securestore.ErrNotFound
	}
	return f.account, nil
}

func (f *fakeSecureStore) Has(service string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, nil
}

func (f *fakeSecureStore) Delete(service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = false
	f.account = ""
	f.secret = nil
	return nil
}

// fakeChain is a scriptable chain.Client.
type fakeChain struct {
	mu sync.Mutex

	submitHash    string
	submitErr     error
	submitGate    chan struct{} // when non-nil, Submit blocks until closed
	submitEntered chan struct{} // receives once Submit has been reached

	receipt    *chain.Receipt
	confirmErr error

	yield        uint64
	yieldErr     error
	deposit      uint64
	withdrawable uint64
	viewErr      error
	balance      uint64
	balanceErr   error

	submitted []chain.Intent
}

func (f *fakeChain) Submit(ctx context.Context, intent chain.Intent, key solana.PrivateKey) (string, error) {
	f.mu.Lock()
	gate := f.submitGate
	entered := f.submitEntered
	f.mu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, intent)
	return f.submitHash, nil
}

func (f *fakeChain) WaitForConfirmation(ctx context.Context, txHash string) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &chain.Receipt{Status: chain.ReceiptSuccess, Slot: 100}, nil
}

func (f *fakeChain) CurrentYield(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.yieldErr != nil {
		return 0, f.yieldErr
	}
	if f.viewErr != nil {
		return 0, f.viewErr
	}
	return f.yield, nil
}

func (f *fakeChain) UserDeposit(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.viewErr != nil {
		return 0, f.viewErr
	}
	return f.deposit, nil
}

func (f *fakeChain) TotalWithdrawable(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.viewErr != nil {
		return 0, f.viewErr
	}
	return f.withdrawable, nil
}

func (f *fakeChain) GetBalance(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeChain) submittedIntents() []chain.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.Intent(nil), f.submitted...)
}

// fakeRates returns a fixed price.
type fakeRates struct {
	price string
	err   error
}

func (f *fakeRates) SOLPriceUSD(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.price, nil
}

type fixture struct {
	session *Session
	store   *fakeSecureStore
	chain   *fakeChain
	ledger  *ledger.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := &fakeSecureStore{}
	ledgerStore, err := ledger.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { ledgerStore.Close() })

	chainClient := &fakeChain{submitHash: "0xabc"}

	s := New(
		vault.New(store, ""),
		ledgerStore,
		chainClient,
		&fakeRates{price: "150.00"},
		Config{StaleEntryWindow: 5 * time.Minute, YieldTickInterval: time.Hour, YieldMinDeltaLamports: 1000, AnnualRateBps: 500},
	)

	return &fixture{session: s, store: store, chain: chainClient, ledger: ledgerStore}
}

// unlockedFixture creates a wallet and unlocks it.
func unlockedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)

	_, err := f.session.CreateWallet(context.Background())
	require.NoError(t, err)

	ok, err := f.session.Unlock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	return f
}

func TestInitializeFromStored(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, StateUninitialized, f.session.InitializeFromStored())

	_, err := f.session.CreateWallet(context.Background())
	require.NoError(t, err)

	// a fresh session over the same store boots Locked with the address known
	s2 := New(vault.New(f.store, ""), f.ledger, f.chain, nil, Config{})
	require.Equal(t, StateLocked, s2.InitializeFromStored())
	require.NotEmpty(t, s2.Address())
}

func TestInitializeFromStoredKeepsUnlockedSession(t *testing.T) {
	f := unlockedFixture(t)

	// re-initializing past startup is a no-op, not a demotion to Locked
	require.Equal(t, StateUnlocked, f.session.InitializeFromStored())
	require.True(t, f.session.IsUnlocked())

	// key material is still resident and usable
	_, err := f.session.Deposit(context.Background(), "0.01")
	require.NoError(t, err)
}

func TestCreateWallet(t *testing.T) {
	f := newFixture(t)

	phrase, err := f.session.CreateWallet(context.Background())
	require.NoError(t, err)
	require.Len(t, strings.Fields(phrase), 24)
	require.Equal(t, StateLocked, f.session.State())
	require.NotEmpty(t, f.session.Address())

	// only one wallet per device
	_, err = f.session.CreateWallet(context.Background())
	require.ErrorIs(t, err, ErrWalletExists)
}

func TestImportWallet(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.session.ImportWallet(context.Background(), "not a phrase"), keymat.ErrInvalidPhrase)
	require.Equal(t, StateUninitialized, f.session.State())

	kp, err := keymat.Generate()
	require.NoError(t, err)

	require.NoError(t, f.session.ImportWallet(context.Background(), kp.RecoveryPhrase))
	require.Equal(t, StateLocked, f.session.State())
	require.Equal(t, kp.Address, f.session.Address())
}

func TestUnlockFromUninitialized(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.Unlock(context.Background())
	require.ErrorIs(t, err, vault.ErrNotFound)
	require.Equal(t, StateUninitialized, f.session.State())
}

func TestUnlockCancelled(t *testing.T) {
	// Scenario C: dismissed prompt is not an error and the session stays locked
	f := newFixture(t)
	_, err := f.session.CreateWallet(context.Background())
	require.NoError(t, err)

	f.store.getErr = securestore.ErrCancelled
	ok, err := f.session.Unlock(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, StateLocked, f.session.State())
}

func TestUnlockAuthFailed(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.CreateWallet(context.Background())
	require.NoError(t, err)

	f.store.getErr = securestore.ErrAuthFailed
	_, err = f.session.Unlock(context.Background())
	require.ErrorIs(t, err, vault.ErrAuthenticationFailed)
}

func TestUnlockTriggersBalanceRefresh(t *testing.T) {
	f := newFixture(t)
	f.chain.balance = 777

	_, err := f.session.CreateWallet(context.Background())
	require.NoError(t, err)

	ok, err := f.session.Unlock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return f.session.Balance() == 777
	}, time.Second, 5*time.Millisecond)
}

func TestLock(t *testing.T) {
	f := unlockedFixture(t)

	f.session.Lock()
	require.Equal(t, StateLocked, f.session.State())
	require.False(t, f.session.IsUnlocked())

	_, err := f.session.Deposit(context.Background(), "1")
	require.ErrorIs(t, err, ErrNotUnlocked)
}

func TestDepositRequiresUnlocked(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.CreateWallet(context.Background())
	require.NoError(t, err)

	_, err = f.session.Deposit(context.Background(), "1")
	require.ErrorIs(t, err, ErrNotUnlocked)

	_, err = f.session.WithdrawAll(context.Background())
	require.ErrorIs(t, err, ErrNotUnlocked)
}

func TestDepositRejectsBadAmounts(t *testing.T) {
	f := unlockedFixture(t)

	for _, amount := range []string{"0", "0.0", "", "abc", "-1"} {
		_, err := f.session.Deposit(context.Background(), amount)
		require.ErrorIs(t, err, ErrInvalidAmount, "amount %q", amount)
	}

	entries, err := f.ledger.Entries(context.Background(), f.session.Address(), nil)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDepositSuccess(t *testing.T) {
	// Scenario A: pending entry -> broadcast -> confirmation -> completed
	f := unlockedFixture(t)
	ctx := context.Background()

	txHash, err := f.session.Deposit(ctx, "0.01")
	require.NoError(t, err)
	require.Equal(t, "0xabc", txHash)

	entries, err := f.ledger.Entries(ctx, f.session.Address(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.KindDeposit, entries[0].Kind)
	require.Equal(t, ledger.StatusCompleted, entries[0].Status)
	require.Equal(t, "0xabc", entries[0].TxHash)
	require.Equal(t, "0.010000000", entries[0].Amount)

	stats, err := f.ledger.Stats(ctx, f.session.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), stats.TotalDeposited)

	intents := f.chain.submittedIntents()
	require.Len(t, intents, 1)
	require.Equal(t, chain.IntentDeposit, intents[0].Kind)
	require.Equal(t, uint64(10_000_000), intents[0].AmountLamports)
}

func TestDepositRecordsUSDValuation(t *testing.T) {
	f := unlockedFixture(t)
	ctx := context.Background()

	_, err := f.session.Deposit(ctx, "2")
	require.NoError(t, err)

	entries, err := f.ledger.Entries(ctx, f.session.Address(), nil)
	require.NoError(t, err)
	// 2 SOL at 150.00 USD
	require.Equal(t, "300.000000", entries[0].USDValueAtRecording)
}

func TestDepositBroadcastFailure(t *testing.T) {
	// Scenario D: transport failure after the pending write marks it failed
	f := unlockedFixture(t)
	ctx := context.Background()

	f.chain.submitErr = &chain.TransportError{Op: "sendTransaction", Err: errors.New("connection reset")}

	_, err := f.session.Deposit(ctx, "0.02")
	require.Error(t, err)
	require.True(t, chain.IsTransport(err))

	entries, err := f.ledger.Entries(ctx, f.session.Address(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.StatusFailed, entries[0].Status)

	// the default fold still counts the failed amount
	stats, err := f.ledger.Stats(ctx, f.session.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(20_000_000), stats.TotalDeposited)
}

func TestDepositConfirmationFailure(t *testing.T) {
	f := unlockedFixture(t)
	ctx := context.Background()

	f.chain.receipt = &chain.Receipt{Status: chain.ReceiptFailed, Slot: 101}

	_, err := f.session.Deposit(ctx, "1")
	require.Error(t, err)
	require.True(t, chain.IsRevert(err))

	entries, err := f.ledger.Entries(ctx, f.session.Address(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.StatusFailed, entries[0].Status)
	require.Equal(t, "0xabc", entries[0].TxHash) // hash was attached before confirmation
}

func TestWithdrawAll(t *testing.T) {
	f := unlockedFixture(t)
	ctx := context.Background()

	f.chain.withdrawable = 5_000_000_000

	txHash, err := f.session.WithdrawAll(ctx)
	require.NoError(t, err)
	require.Equal(t, "0xabc", txHash)

	entries, err := f.ledger.Entries(ctx, f.session.Address(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.KindWithdraw, entries[0].Kind)
	require.Equal(t, ledger.StatusCompleted, entries[0].Status)
	require.Equal(t, uint64(5_000_000_000), entries[0].AmountLamports)

	intents := f.chain.submittedIntents()
	require.Len(t, intents, 1)
	require.Equal(t, chain.IntentWithdraw, intents[0].Kind)
}

func TestWithdrawAllNothingToWithdraw(t *testing.T) {
	// Scenario B: zero authoritative balance fails fast with no ledger entry
	f := unlockedFixture(t)
	ctx := context.Background()

	f.chain.withdrawable = 0

	_, err := f.session.WithdrawAll(ctx)
	require.ErrorIs(t, err, ErrNothingToWithdraw)

	entries, err := f.ledger.Entries(ctx, f.session.Address(), nil)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWithdrawAllViewFailurePropagates(t *testing.T) {
	f := unlockedFixture(t)

	f.chain.viewErr = &chain.TransportError{Op: "getAccountInfo", Err: errors.New("timeout")}

	_, err := f.session.WithdrawAll(context.Background())
	require.True(t, chain.IsTransport(err))

	entries, lerr := f.ledger.Entries(context.Background(), f.session.Address(), nil)
	require.NoError(t, lerr)
	require.Empty(t, entries)
}

func TestOperationInProgress(t *testing.T) {
	f := unlockedFixture(t)
	ctx := context.Background()

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.chain.submitGate = gate
	f.chain.submitEntered = entered

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Deposit(ctx, "1")
		done <- err
	}()

	// wait until the first operation is provably in flight
	<-entered

	// a second operation fails fast instead of queueing
	_, err := f.session.Deposit(ctx, "1")
	require.ErrorIs(t, err, ErrOperationInProgress)

	_, err = f.session.WithdrawAll(ctx)
	require.ErrorIs(t, err, ErrOperationInProgress)

	close(gate)
	require.NoError(t, <-done)
}

func TestAdvisoryReadsDegradeToZero(t *testing.T) {
	f := unlockedFixture(t)
	ctx := context.Background()

	f.chain.yield = 123
	f.chain.deposit = 456
	f.chain.withdrawable = 579

	require.Equal(t, uint64(123), f.session.CurrentYield(ctx))
	require.Equal(t, uint64(456), f.session.UserDeposit(ctx))
	require.Equal(t, uint64(579), f.session.TotalWithdrawable(ctx))

	f.chain.viewErr = &chain.TransportError{Op: "view", Err: errors.New("down")}
	f.chain.yieldErr = f.chain.viewErr

	require.Equal(t, uint64(0), f.session.CurrentYield(ctx))
	require.Equal(t, uint64(0), f.session.UserDeposit(ctx))
	require.Equal(t, uint64(0), f.session.TotalWithdrawable(ctx))
}

func TestRecordYieldTick(t *testing.T) {
	f := unlockedFixture(t)
	ctx := context.Background()

	f.chain.yield = 50_000

	require.NoError(t, f.session.RecordYieldTick(ctx))

	kind := ledger.KindYieldCredit
	entries, err := f.ledger.Entries(ctx, f.session.Address(), &ledger.Filter{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.StatusCompleted, entries[0].Status)
	require.Equal(t, uint64(50_000), entries[0].AmountLamports)

	// a second tick inside the interval records nothing even though more
	// yield accrued
	f.chain.yield = 120_000
	require.NoError(t, f.session.RecordYieldTick(ctx))

	entries, err = f.ledger.Entries(ctx, f.session.Address(), &ledger.Filter{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRecordYieldTickBelowThreshold(t *testing.T) {
	f := unlockedFixture(t)
	ctx := context.Background()

	f.chain.yield = 999 // below the 1000 lamport significance threshold

	require.NoError(t, f.session.RecordYieldTick(ctx))

	kind := ledger.KindYieldCredit
	entries, err := f.ledger.Entries(ctx, f.session.Address(), &ledger.Filter{Kind: &kind})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRecordYieldTickAfterWithdrawCycle(t *testing.T) {
	// A completed withdraw closes the position and the chain's accrued yield
	// restarts from zero. Credits recorded in earlier cycles must not starve
	// the fresh cycle's recording; credits within the current cycle still
	// count against the baseline.
	f := unlockedFixture(t)
	ctx := context.Background()
	address := f.session.Address()

	appendAt := func(kind ledger.Kind, amountSOL string, age time.Duration) {
		e, err := ledger.NewEntry(address, kind, amountSOL, ledger.StatusCompleted)
		require.NoError(t, err)
		e.CreatedAt = time.Now().UTC().Add(-age)
		_, err = f.ledger.Append(ctx, e)
		require.NoError(t, err)
	}

	appendAt(ledger.KindYieldCredit, "0.000050000", 3*time.Hour) // cycle 1
	appendAt(ledger.KindWithdraw, "5", 2*time.Hour)              // closes cycle 1
	appendAt(ledger.KindYieldCredit, "0.000010000", 90*time.Minute)

	f.chain.yield = 45_000 // cycle 2 accrual

	require.NoError(t, f.session.RecordYieldTick(ctx))

	kind := ledger.KindYieldCredit
	entries, err := f.ledger.Entries(ctx, address, &ledger.Filter{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// newest-first: the tick recorded 45_000 minus the 10_000 already in
	// this cycle, ignoring the 50_000 from before the withdraw
	require.Equal(t, uint64(35_000), entries[0].AmountLamports)
}

func TestClearWallet(t *testing.T) {
	f := unlockedFixture(t)
	ctx := context.Background()

	_, err := f.session.Deposit(ctx, "1")
	require.NoError(t, err)
	address := f.session.Address()

	require.NoError(t, f.session.ClearWallet(ctx))
	require.Equal(t, StateUninitialized, f.session.State())
	require.Empty(t, f.session.Address())

	entries, err := f.ledger.Entries(ctx, address, nil)
	require.NoError(t, err)
	require.Empty(t, entries)

	has, err := f.store.Has("")
	require.NoError(t, err)
	require.False(t, has)
}

func TestProjectedYield(t *testing.T) {
	f := newFixture(t)

	// 100 SOL at 500 bps over one year
	got, err := f.session.ProjectedYield("100", 365*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, "5.000000000", got)

	_, err = f.session.ProjectedYield("bogus", time.Hour)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{vault.ErrVaultUnavailable, "VAULT_UNAVAILABLE"},
		{vault.ErrAuthenticationCancelled, "AUTH_CANCELLED"},
		{vault.ErrNotFound, "WALLET_NOT_FOUND"},
		{keymat.ErrInvalidPhrase, "INVALID_PHRASE"},
		{ErrNotUnlocked, "NOT_UNLOCKED"},
		{ErrOperationInProgress, "OPERATION_IN_PROGRESS"},
		{ErrNothingToWithdraw, "NOTHING_TO_WITHDRAW"},
		{&chain.TransportError{Op: "x", Err: errors.New("y")}, "CHAIN_TRANSPORT"},
		{&chain.RevertError{Reason: "deposit active"}, "CHAIN_REVERT"},
		{errors.New("anything else"), "INTERNAL"},
	}

	for _, tt := range tests {
		code, message := Classify(tt.err)
		require.Equal(t, tt.code, code)
		require.NotEmpty(t, message)
		// classified messages never leak the raw error text
		require.NotContains(t, message, "anything else")
	}
}
