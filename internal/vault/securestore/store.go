// Package securestore defines the device-backed secret storage capability
// consumed by the credential vault. Providers wrap whatever the platform
// offers (keychain, secure enclave, encrypted file) behind one interface.
package securestore

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the device has no authentication factor enrolled.
	// Callers must surface this with guidance, never swallow it.
	ErrUnavailable = errors.New("securestore: no device authentication method enrolled")

	// ErrCancelled means the user dismissed the authentication prompt.
	// Not a hard error: callers retry by re-invoking.
	ErrCancelled = errors.New("securestore: authentication cancelled")

	// ErrAuthFailed means the authentication factor was rejected.
	ErrAuthFailed = errors.New("securestore: authentication failed")

	// ErrNotFound means no secret is stored under the requested service.
	ErrNotFound = errors.New("securestore: entry not found")
)

// AuthPolicy controls the access policy a secret is stored under.
type AuthPolicy struct {
	// RequireUserAuth demands fresh device authentication
	// (biometry or passcode equivalent) on every Get.
	RequireUserAuth bool
}

// Store is the secure storage capability. One secret per service name.
type Store interface {
	// Put persists secret under service. The account is stored in the clear
	// so it can be read back without authenticating.
	Put(service, account string, secret []byte, policy AuthPolicy) error

	// Get authenticates the user (showing reason on the prompt) and returns
	// the stored account and secret. The caller owns the returned secret
	// bytes and must zero them after use.
	Get(ctx context.Context, service, reason string) (account string, secret []byte, err error)

	// Account returns the plaintext account for service without
	// authenticating.
	Account(service string) (string, error)

	// Has reports whether a secret exists under service, without
	// authenticating.
	Has(service string) (bool, error)

	// Delete removes the secret. Deleting a missing entry succeeds.
	Delete(service string) error
}
