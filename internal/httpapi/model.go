package httpapi

import "time"

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CreateWalletResponse represents response for POST /wallet/create
type CreateWalletResponse struct {
	Address string `json:"address"`
	// RecoveryPhrase is shown exactly once; it is not retrievable again.
	RecoveryPhrase string `json:"recoveryPhrase"`
}

// ImportWalletRequest represents request for POST /wallet/import
type ImportWalletRequest struct {
	RecoveryPhrase string `json:"recoveryPhrase" binding:"required"`
}

// UnlockResponse represents response for POST /wallet/unlock
type UnlockResponse struct {
	Unlocked bool `json:"unlocked"`
}

// StatusResponse represents response for GET /wallet
type StatusResponse struct {
	State            string `json:"state"`
	Address          string `json:"address,omitempty"`
	BalanceLamports  uint64 `json:"balanceLamports"`
	BalanceSOL       string `json:"balanceSol"`
	LastRefreshError string `json:"lastRefreshError,omitempty"`
}

// DepositRequest represents request for POST /savings/deposit
type DepositRequest struct {
	Amount string `json:"amount" binding:"required"` // decimal SOL
}

// TxResponse represents response for deposit/withdraw operations
type TxResponse struct {
	TxHash string `json:"txHash"`
}

// SummaryResponse represents response for GET /savings/summary.
// All chain figures are advisory reads that degrade to zero on error.
type SummaryResponse struct {
	Address            string `json:"address"`
	DepositSOL         string `json:"depositSol"`
	YieldSOL           string `json:"yieldSol"`
	WithdrawableSOL    string `json:"withdrawableSol"`
	ProjectedYearlySOL string `json:"projectedYearlySol"`
}

// HistoryEntry is one ledger entry rendered for the API.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Amount    string    `json:"amount"`
	USDValue  string    `json:"usdValueAtRecording"`
	Status    string    `json:"status"`
	TxHash    string    `json:"txHash,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryResponse represents response for GET /savings/history
type HistoryResponse struct {
	Address          string         `json:"address"`
	TotalDeposited   string         `json:"totalDeposited"`
	TotalWithdrawn   string         `json:"totalWithdrawn"`
	TotalYieldEarned string         `json:"totalYieldEarned"`
	Entries          []HistoryEntry `json:"entries"`
}
