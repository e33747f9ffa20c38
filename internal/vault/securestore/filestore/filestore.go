// Package filestore is an encrypted-file securestore provider for platforms
// without an OS keychain. Secrets live in a single JSON envelope whose
// ciphertext is AES-GCM over a scrypt-derived key; the authentication factor
// is a device passphrase obtained through an injected Authenticator.
package filestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Smartdevs17/rootsave/internal/vault/securestore"
	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt parameters for the local credential file
	// Security is prioritized over performance
	//
	// N=2^18 (~256MB RAM, 0.5-2s) - optimal balance:
	//   - Maximum security while remaining compatible with mobile devices
	//   - Works on phones (4-16GB RAM) and desktops alike
	//   - Brute-force attacks remain extremely expensive
	//
	// Note: N=2^20 (~1GB) offers the highest security but fails on mobile due to
	// Android memory limits per app (~256-512MB typically)
	scryptN      = 1 << 18
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

// envelope is the on-disk file structure. Account stays in the clear so the
// wallet address can be read back without an authentication prompt.
type envelope struct {
	Service    string `json:"service"`
	Account    string `json:"account"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// FileStore implements securestore.Store over one encrypted file.
type FileStore struct {
	path string
	auth Authenticator
}

var _ securestore.Store = (*FileStore)(nil)

// New creates a FileStore persisting to path, gating reads and writes through
// auth.
func New(path string, auth Authenticator) *FileStore {
	return &FileStore{path: path, auth: auth}
}

// Put encrypts secret under a passphrase-derived key and writes the envelope.
func (s *FileStore) Put(service, account string, secret []byte, policy securestore.AuthPolicy) error {
	if policy.RequireUserAuth && !s.auth.Enrolled() {
		return securestore.ErrUnavailable
	}

	passphrase, err := s.auth.Passphrase(context.Background(), "Protect your wallet key")
	if err != nil {
		return mapAuthError(err)
	}
	defer clear(passphrase)

	// Generate salt and nonce
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}

	ciphertext := aesGCM.Seal(nil, nonce, secret, nil)

	env := envelope{
		Service:    service,
		Account:    account,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}

	fileData, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := os.WriteFile(s.path, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Get prompts for the passphrase and decrypts the stored secret.
// A wrong passphrase surfaces as securestore.ErrAuthFailed; a dismissed
// prompt as securestore.ErrCancelled.
func (s *FileStore) Get(ctx context.Context, service, reason string) (string, []byte, error) {
	env, err := s.readEnvelope()
	if err != nil {
		return "", nil, err
	}

	passphrase, err := s.auth.Passphrase(ctx, reason)
	if err != nil {
		return "", nil, mapAuthError(err)
	}
	defer clear(passphrase)

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode salt: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.CipherText)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	aesGCM, err := newGCM(passphrase, salt)
	if err != nil {
		return "", nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// GCM authentication failure: wrong passphrase
		return "", nil, securestore.ErrAuthFailed
	}

	return env.Account, plaintext, nil
}

// Account reads the plaintext account without authenticating.
func (s *FileStore) Account(service string) (string, error) {
	env, err := s.readEnvelope()
	if err != nil {
		return "", err
	}
	return env.Account, nil
}

// Has reports whether a non-empty envelope exists.
func (s *FileStore) Has(service string) (bool, error) {
	_, err := s.readEnvelope()
	if errors.Is(err, securestore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the file. Idempotent.
func (s *FileStore) Delete(service string) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *FileStore) readEnvelope() (*envelope, error) {
	fileInfo, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, securestore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if fileInfo.Size() == 0 {
		return nil, securestore.ErrNotFound
	}

	fileData, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Skip UTF-8 BOM if present (older files carried one)
	if len(fileData) >= 3 && fileData[0] == 0xEF && fileData[1] == 0xBB && fileData[2] == 0xBF {
		fileData = fileData[3:]
	}

	var env envelope
	if err := json.Unmarshal(fileData, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return &env, nil
}

func newGCM(passphrase, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aesGCM, nil
}

func mapAuthError(err error) error {
	if errors.Is(err, ErrPromptCancelled) {
		return securestore.ErrCancelled
	}
	return err
}
