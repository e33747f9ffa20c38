package vault

import (
	"context"
	"testing"

	"github.com/Smartdevs17/rootsave/internal/keymat"
	"github.com/Smartdevs17/rootsave/internal/vault/securestore"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory securestore with scriptable failures.
type memStore struct {
	account string
	secret  []byte
	stored  bool

	putErr error
	getErr error
}

func (m *memStore) Put(service, account string, secret []byte, policy securestore.AuthPolicy) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.account = account
	m.secret = append([]byte(nil), secret...)
	m.stored = true
	return nil
}

func (m *memStore) Get(ctx context.Context, service, reason string) (string, []byte, error) {
	if m.getErr != nil {
		return "", nil, m.getErr
	}
	if !m.stored {
		return "", nil, securestore.ErrNotFound
	}
	return m.account, append([]byte(nil), m.secret...), nil
}

func (m *memStore) Account(service string) (string, error) {
	if !m.stored {
		return "", securestore.ErrNotFound
	}
	return m.account, nil
}

func (m *memStore) Has(service string) (bool, error) { return m.stored, nil }

func (m *memStore) Delete(service string) error {
	m.stored = false
	m.account = ""
	m.secret = nil
	return nil
}

func newTestVault() (*Vault, *memStore) {
	store := &memStore{}
	return New(store, ""), store
}

func TestStoreReadRoundTrip(t *testing.T) {
	v, _ := newTestVault()

	kp, err := keymat.Generate()
	require.NoError(t, err)

	require.NoError(t, v.Store(kp))

	got, err := v.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, kp.Address, got.Address)
	require.Equal(t, []byte(kp.PrivateKey), []byte(got.PrivateKey))
	require.Equal(t, kp.RecoveryPhrase, got.RecoveryPhrase)
}

func TestStoreRejectsMalformedKey(t *testing.T) {
	v, store := newTestVault()

	kp, err := keymat.Generate()
	require.NoError(t, err)

	// Truncated key must be rejected at store time, not coerced
	short := &keymat.KeyPair{
		Address:    kp.Address,
		PrivateKey: kp.PrivateKey[:32],
	}
	require.ErrorIs(t, v.Store(short), ErrMalformedKey)
	require.False(t, store.stored)

	// Over-long key likewise
	long := &keymat.KeyPair{
		Address:    kp.Address,
		PrivateKey: append(append([]byte(nil), kp.PrivateKey...), 0xFF),
	}
	require.ErrorIs(t, v.Store(long), ErrMalformedKey)
	require.False(t, store.stored)
}

func TestStoreRejectsMismatchedAddress(t *testing.T) {
	v, store := newTestVault()

	a, err := keymat.Generate()
	require.NoError(t, err)
	b, err := keymat.Generate()
	require.NoError(t, err)

	mismatched := &keymat.KeyPair{
		Address:    b.Address,
		PrivateKey: a.PrivateKey,
	}
	require.ErrorIs(t, v.Store(mismatched), ErrMalformedKey)
	require.False(t, store.stored)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		want     error
	}{
		{"unavailable", securestore.ErrUnavailable, ErrVaultUnavailable},
		{"cancelled", securestore.ErrCancelled, ErrAuthenticationCancelled},
		{"auth failed", securestore.ErrAuthFailed, ErrAuthenticationFailed},
		{"not found", securestore.ErrNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, store := newTestVault()
			store.getErr = tt.storeErr

			_, err := v.Read(context.Background())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStoreUnavailable(t *testing.T) {
	v, store := newTestVault()
	store.putErr = securestore.ErrUnavailable

	kp, err := keymat.Generate()
	require.NoError(t, err)

	require.ErrorIs(t, v.Store(kp), ErrVaultUnavailable)
}

func TestReadMissing(t *testing.T) {
	v, _ := newTestVault()

	_, err := v.Read(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClearIdempotent(t *testing.T) {
	v, _ := newTestVault()

	kp, err := keymat.Generate()
	require.NoError(t, err)
	require.NoError(t, v.Store(kp))
	require.True(t, v.Exists())

	require.NoError(t, v.Clear())
	require.NoError(t, v.Clear())
	require.False(t, v.Exists())
}

func TestAddressWithoutAuth(t *testing.T) {
	v, _ := newTestVault()

	kp, err := keymat.Generate()
	require.NoError(t, err)
	require.NoError(t, v.Store(kp))

	addr, err := v.Address()
	require.NoError(t, err)
	require.Equal(t, kp.Address, addr)
}
