package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrPromptCancelled means the user dismissed the passphrase prompt.
var ErrPromptCancelled = errors.New("passphrase prompt cancelled")

// Authenticator obtains the device passphrase that gates the encrypted file.
// It stands in for the OS authentication prompt on keychain-backed platforms.
type Authenticator interface {
	// Enrolled reports whether an authentication factor is available at all.
	Enrolled() bool

	// Passphrase prompts the user, displaying reason, and returns the
	// passphrase bytes. The caller must zero the returned slice after use.
	// A dismissed prompt returns ErrPromptCancelled.
	Passphrase(ctx context.Context, reason string) ([]byte, error)
}

// TerminalAuthenticator prompts for the passphrase on the controlling
// terminal with hidden input.
type TerminalAuthenticator struct{}

// Enrolled reports whether stdin is an interactive terminal.
func (TerminalAuthenticator) Enrolled() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Passphrase reads the passphrase without echoing. An empty entry is treated
// as a dismissed prompt.
func (TerminalAuthenticator) Passphrase(ctx context.Context, reason string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter passphrase")
	}

	fmt.Fprintf(os.Stderr, "%s\nEnter wallet passphrase: ", reason)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrPromptCancelled
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	clear(raw)
	return out, nil
}

// StaticAuthenticator serves a passphrase captured once at startup, so a
// long-running daemon prompts a single time instead of on every vault access.
type StaticAuthenticator struct {
	passphrase []byte
}

// NewStaticAuthenticator copies passphrase into the authenticator.
// The caller may zero its own copy afterwards.
func NewStaticAuthenticator(passphrase []byte) *StaticAuthenticator {
	out := make([]byte, len(passphrase))
	copy(out, passphrase)
	return &StaticAuthenticator{passphrase: out}
}

func (a *StaticAuthenticator) Enrolled() bool {
	return len(a.passphrase) > 0
}

func (a *StaticAuthenticator) Passphrase(ctx context.Context, reason string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(a.passphrase) == 0 {
		return nil, ErrPromptCancelled
	}
	out := make([]byte, len(a.passphrase))
	copy(out, a.passphrase)
	return out, nil
}

// Zero wipes the held passphrase. Subsequent prompts report cancellation.
func (a *StaticAuthenticator) Zero() {
	clear(a.passphrase)
	a.passphrase = nil
}
