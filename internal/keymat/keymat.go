// Package keymat derives wallet key material. Purely deterministic math over
// input bytes: no I/O, no storage, no logging.
package keymat

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

var (
	// ErrInvalidPhrase means the recovery phrase failed the wordlist or
	// checksum validation (word count must be exactly 12 or 24).
	ErrInvalidPhrase = errors.New("invalid recovery phrase")

	// ErrEntropy means the platform RNG was unavailable.
	ErrEntropy = errors.New("secure random source unavailable")
)

// KeyPair is a derived wallet identity.
// PrivateKey is the full 64-byte ed25519 private key (Solana representation).
type KeyPair struct {
	Address        string
	PrivateKey     solana.PrivateKey
	RecoveryPhrase string
}

// Zero wipes the private key bytes from memory. The KeyPair must not be used
// after Zero.
func (kp *KeyPair) Zero() {
	clear(kp.PrivateKey)
	kp.PrivateKey = nil
	kp.RecoveryPhrase = ""
}

// Generate produces a fresh keypair with a 24-word recovery phrase.
func Generate() (*KeyPair, error) {
	entropy, err := bip39.NewEntropy(256) // 256 bits = 24 words
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropy, err)
	}

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to build mnemonic: %w", err)
	}

	return FromPhrase(phrase)
}

// FromPhrase deterministically re-derives the keypair from a recovery phrase.
// The phrase must be 12 or 24 words from the BIP-39 wordlist with a valid
// checksum; anything else fails with ErrInvalidPhrase.
func FromPhrase(phrase string) (*KeyPair, error) {
	phrase = normalizePhrase(phrase)
	if !validatePhrase(phrase) {
		return nil, ErrInvalidPhrase
	}

	// Empty passphrase: the recovery phrase alone must reproduce the wallet
	seed := bip39.NewSeed(phrase, "")
	defer clear(seed)

	key := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	priv := solana.PrivateKey(key)

	return &KeyPair{
		Address:        priv.PublicKey().String(),
		PrivateKey:     priv,
		RecoveryPhrase: phrase,
	}, nil
}

// ValidatePhrase reports whether phrase would be accepted by FromPhrase,
// without performing derivation.
func ValidatePhrase(phrase string) bool {
	return validatePhrase(normalizePhrase(phrase))
}

func validatePhrase(phrase string) bool {
	words := strings.Fields(phrase)
	if len(words) != 12 && len(words) != 24 {
		return false
	}
	return bip39.IsMnemonicValid(phrase)
}

// normalizePhrase collapses whitespace so that copy-pasted phrases with
// line breaks or double spaces derive the same key as the canonical form
func normalizePhrase(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(phrase))), " ")
}
