// Offline recovery check: re-derives the wallet address from a recovery
// phrase without touching the vault, the ledger or the network.
// Usage: go run ./cmd/recoverkey
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/Smartdevs17/rootsave/internal/keymat"
)

func main() {
	fmt.Fprintln(os.Stderr, "Enter recovery phrase (12 or 24 words):")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "no input")
		os.Exit(1)
	}
	phrase := scanner.Text()

	kp, err := keymat.FromPhrase(phrase)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer kp.Zero()

	fmt.Println(kp.Address)
}
