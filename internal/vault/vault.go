// Package vault gates the wallet's key material behind device-authenticated
// storage. All validation happens at the write boundary: malformed key
// material is rejected by Store, never coerced at read time.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Smartdevs17/rootsave/internal/keymat"
	"github.com/Smartdevs17/rootsave/internal/vault/securestore"
	"github.com/gagliardetto/solana-go"
)

// DefaultService is the securestore service name the wallet secret lives under.
const DefaultService = "rootsave-wallet"

// privateKeyLen is the full Solana ed25519 private key length.
const privateKeyLen = 64

var (
	// ErrVaultUnavailable means no device authentication factor is enrolled.
	// Surfaced with guidance to enable one; custody operations cannot proceed.
	ErrVaultUnavailable = errors.New("vault unavailable: enable a device authentication method (screen lock or biometrics)")

	// ErrAuthenticationCancelled means the user dismissed the prompt.
	// Callers must not treat this as a hard error.
	ErrAuthenticationCancelled = errors.New("authentication cancelled")

	// ErrAuthenticationFailed means the authentication factor was rejected.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNotFound means no key material is stored.
	ErrNotFound = errors.New("no wallet stored")

	// ErrMalformedKey means Store was handed key material that is not a
	// valid 64-byte key matching its address.
	ErrMalformedKey = errors.New("malformed key material")
)

// secretPayload is the serialized form of the vaulted secret.
// PrivateKey is raw 64-byte key material (base64 in JSON).
type secretPayload struct {
	PrivateKey     []byte `json:"privateKey"`
	RecoveryPhrase string `json:"recoveryPhrase,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

// Vault stores exactly one KeyPair behind a securestore provider.
type Vault struct {
	store   securestore.Store
	service string
}

// New creates a Vault over store. Empty service falls back to DefaultService.
func New(store securestore.Store, service string) *Vault {
	if service == "" {
		service = DefaultService
	}
	return &Vault{store: store, service: service}
}

// Store validates and persists kp under the biometry-or-passcode policy.
// The private key must be exactly 64 bytes and must derive kp.Address;
// anything else fails with ErrMalformedKey before any write happens.
func (v *Vault) Store(kp *keymat.KeyPair) error {
	if kp == nil || len(kp.PrivateKey) != privateKeyLen {
		return fmt.Errorf("%w: private key must be exactly %d bytes", ErrMalformedKey, privateKeyLen)
	}
	if kp.PrivateKey.PublicKey().String() != kp.Address {
		return fmt.Errorf("%w: private key does not match address", ErrMalformedKey)
	}

	payload := secretPayload{
		PrivateKey:     kp.PrivateKey,
		RecoveryPhrase: kp.RecoveryPhrase,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	secret, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}
	defer clear(secret)

	policy := securestore.AuthPolicy{RequireUserAuth: true}
	if err := v.store.Put(v.service, kp.Address, secret, policy); err != nil {
		return mapStoreError(err)
	}

	return nil
}

// Read authenticates the user and returns the stored KeyPair. The returned
// key material round-trips byte-identically with what Store accepted; the
// caller owns it and must Zero it when done.
func (v *Vault) Read(ctx context.Context) (*keymat.KeyPair, error) {
	account, secret, err := v.store.Get(ctx, v.service, "Unlock your wallet")
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer clear(secret)

	var payload secretPayload
	if err := json.Unmarshal(secret, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret: %w", err)
	}

	return &keymat.KeyPair{
		Address:        account,
		PrivateKey:     solana.PrivateKey(payload.PrivateKey),
		RecoveryPhrase: payload.RecoveryPhrase,
	}, nil
}

// Exists reports whether key material is stored, without authenticating.
func (v *Vault) Exists() bool {
	has, err := v.store.Has(v.service)
	if err != nil {
		return false
	}
	return has
}

// Address returns the stored wallet address without authenticating.
func (v *Vault) Address() (string, error) {
	account, err := v.store.Account(v.service)
	if err != nil {
		return "", mapStoreError(err)
	}
	return account, nil
}

// Clear irreversibly deletes the stored key material. Clearing an empty
// vault succeeds.
func (v *Vault) Clear() error {
	if err := v.store.Delete(v.service); err != nil {
		return mapStoreError(err)
	}
	return nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, securestore.ErrUnavailable):
		return ErrVaultUnavailable
	case errors.Is(err, securestore.ErrCancelled):
		return ErrAuthenticationCancelled
	case errors.Is(err, securestore.ErrAuthFailed):
		return ErrAuthenticationFailed
	case errors.Is(err, securestore.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}
