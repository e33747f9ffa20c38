// Package config loads daemon configuration from environment variables.
// Load returns an explicit *Config threaded through the composition root;
// there is no package-global instance.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config contains all configuration parameters for the daemon.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// WalletFilePath is where the encrypted credential file lives.
	WalletFilePath string `envconfig:"WALLET_FILE_PATH" required:"true"`

	// LedgerDir is the badger database directory for the transaction ledger.
	LedgerDir string `envconfig:"LEDGER_DIR" required:"true"`

	SolanaRPCURL   string `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	VaultProgramID string `envconfig:"VAULT_PROGRAM_ID" required:"true"`

	// StaleEntryWindow bounds how far back failure recovery searches for a
	// pending ledger entry whose id was lost.
	StaleEntryWindow time.Duration `envconfig:"STALE_ENTRY_WINDOW" default:"5m"`

	// YieldTickInterval is how often the yield-credit recorder runs, and the
	// minimum spacing between recorded yield credits.
	YieldTickInterval time.Duration `envconfig:"YIELD_TICK_INTERVAL" default:"1h"`

	// YieldMinDeltaLamports is the smallest yield delta worth a ledger entry.
	YieldMinDeltaLamports uint64 `envconfig:"YIELD_MIN_DELTA_LAMPORTS" default:"1000"`

	// AnnualRateBps is the display-projection interest rate in basis points.
	// Authoritative yield always comes from the chain.
	AnnualRateBps uint32 `envconfig:"ANNUAL_RATE_BPS" default:"500"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return cfg, nil
}
