// Package httpapi is the localhost HTTP surface the embedding UI layer calls.
// It translates session results and the error taxonomy into JSON; no wallet
// logic lives here.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Smartdevs17/rootsave/internal/common"
	"github.com/Smartdevs17/rootsave/internal/ledger"
	"github.com/Smartdevs17/rootsave/internal/session"
	log "github.com/sirupsen/logrus"
)

// Handler serves the wallet API over one Session.
type Handler struct {
	session *session.Session
	ledger  *ledger.Store
}

// NewHandler creates a Handler over the session and ledger store.
func NewHandler(s *session.Session, l *ledger.Store) *Handler {
	return &Handler{session: s, ledger: l}
}

// CreateWallet handles POST /wallet/create
// @Summary      Create wallet
// @Description  Generates fresh key material and stores it in the vault. The recovery phrase is returned exactly once.
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  CreateWalletResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /wallet/create [post]
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	phrase, err := h.session.CreateWallet(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CreateWalletResponse{
		Address:        h.session.Address(),
		RecoveryPhrase: phrase,
	})
}

// ImportWallet handles POST /wallet/import
// @Summary      Import wallet
// @Description  Derives key material from a recovery phrase and stores it in the vault
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      ImportWalletRequest  true  "Recovery phrase"
// @Success      200      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /wallet/import [post]
func (h *Handler) ImportWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req ImportWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.session.ImportWallet(r.Context(), req.RecoveryPhrase); err != nil {
		writeError(w, err)
		return
	}

	h.Status(w, r)
}

// Unlock handles POST /wallet/unlock
// @Summary      Unlock wallet
// @Description  Authenticates against the vault and loads key material into memory. A cancelled prompt returns unlocked=false, not an error.
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  UnlockResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /wallet/unlock [post]
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	unlocked, err := h.session.Unlock(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UnlockResponse{Unlocked: unlocked})
}

// Lock handles POST /wallet/lock
// @Summary      Lock wallet
// @Description  Zeroes the in-memory key material
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /wallet/lock [post]
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	h.session.Lock()
	h.Status(w, r)
}

// Wallet dispatches GET /wallet and DELETE /wallet.
func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.Status(w, r)
	case http.MethodDelete:
		h.ClearWallet(w, r)
	default:
		http.Error(w, "Method not allowed. Should be GET or DELETE", http.StatusMethodNotAllowed)
	}
}

// ClearWallet handles DELETE /wallet
// @Summary      Clear wallet
// @Description  Irreversibly deletes the stored key material and the transaction history
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /wallet [delete]
func (h *Handler) ClearWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed. Should be DELETE", http.StatusMethodNotAllowed)
		return
	}

	if err := h.session.ClearWallet(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	h.Status(w, r)
}

// Status handles GET /wallet
// @Summary      Wallet status
// @Description  Returns the session state, address and last refreshed balance
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /wallet [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		State:           h.session.State().String(),
		Address:         h.session.Address(),
		BalanceLamports: h.session.Balance(),
		BalanceSOL:      common.LamportsToSOL(h.session.Balance()),
	}
	if err := h.session.LastRefreshError(); err != nil {
		resp.LastRefreshError = err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Deposit handles POST /savings/deposit
// @Summary      Deposit into savings
// @Description  Records the intent, submits the deposit to the vault program and awaits confirmation
// @Tags         savings
// @Accept       json
// @Produce      json
// @Param        request  body      DepositRequest  true  "Amount in SOL"
// @Success      200      {object}  TxResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Failure      502      {object}  ErrorResponse
// @Router       /savings/deposit [post]
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	txHash, err := h.session.Deposit(r.Context(), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TxResponse{TxHash: txHash})
}

// Withdraw handles POST /savings/withdraw
// @Summary      Withdraw all savings
// @Description  Withdraws the full authoritative balance (principal plus accrued yield)
// @Tags         savings
// @Produce      json
// @Success      200  {object}  TxResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /savings/withdraw [post]
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	txHash, err := h.session.WithdrawAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TxResponse{TxHash: txHash})
}

// Summary handles GET /savings/summary
// @Summary      Savings summary
// @Description  Returns the chain's view of principal, accrued yield and withdrawable amount, plus a one-year projection. Advisory values degrade to zero on chain errors.
// @Tags         savings
// @Produce      json
// @Success      200  {object}  SummaryResponse
// @Router       /savings/summary [get]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	deposit := h.session.UserDeposit(ctx)

	projected, err := h.session.ProjectedYield(common.LamportsToSOL(deposit), 365*24*time.Hour)
	if err != nil {
		projected = "0"
	}

	writeJSON(w, http.StatusOK, SummaryResponse{
		Address:            h.session.Address(),
		DepositSOL:         common.LamportsToSOL(deposit),
		YieldSOL:           common.LamportsToSOL(h.session.CurrentYield(ctx)),
		WithdrawableSOL:    common.LamportsToSOL(h.session.TotalWithdrawable(ctx)),
		ProjectedYearlySOL: projected,
	})
}

// History handles GET /savings/history
// @Summary      Transaction history
// @Description  Lists ledger entries newest-first with filtering, plus totals by kind. Totals include entries of every status.
// @Tags         savings
// @Produce      json
// @Param        kind       query     string  false  "DEPOSIT, WITHDRAW or YIELD_CREDIT"
// @Param        status     query     string  false  "PENDING, COMPLETED or FAILED"
// @Param        from       query     string  false  "Start date (YYYY-MM-DD)"
// @Param        to         query     string  false  "End date (YYYY-MM-DD)"
// @Param        minAmount  query     string  false  "Minimum amount in SOL"
// @Param        maxAmount  query     string  false  "Maximum amount in SOL"
// @Success      200  {object}  HistoryResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /savings/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	address := h.session.Address()
	if address == "" {
		writeJSON(w, http.StatusOK, HistoryResponse{Entries: []HistoryEntry{}})
		return
	}

	filter, err := parseHistoryFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	entries, err := h.ledger.Entries(r.Context(), address, filter)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	stats, err := h.ledger.Stats(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := HistoryResponse{
		Address:          address,
		TotalDeposited:   common.LamportsToSOL(stats.TotalDeposited),
		TotalWithdrawn:   common.LamportsToSOL(stats.TotalWithdrawn),
		TotalYieldEarned: common.LamportsToSOL(stats.TotalYieldEarned),
		Entries:          make([]HistoryEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HistoryEntry{
			ID:        e.ID,
			Kind:      string(e.Kind),
			Amount:    e.Amount,
			USDValue:  e.USDValueAtRecording,
			Status:    string(e.Status),
			TxHash:    e.TxHash,
			Notes:     e.Notes,
			CreatedAt: e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseHistoryFilter maps query parameters onto a ledger filter.
func parseHistoryFilter(r *http.Request) (*ledger.Filter, error) {
	var filter ledger.Filter

	const dateLayout = "2006-01-02"
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		t, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			return nil, errInvalidDate("from")
		}
		filter.From = &t
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		t, err := time.Parse(dateLayout, toStr)
		if err != nil {
			return nil, errInvalidDate("to")
		}
		// End of day so the filter is inclusive
		t = t.Add(24*time.Hour - time.Nanosecond)
		filter.To = &t
	}

	if kindStr := r.URL.Query().Get("kind"); kindStr != "" {
		kind := ledger.Kind(kindStr)
		filter.Kind = &kind
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := ledger.Status(statusStr)
		filter.Status = &status
	}

	if minStr := r.URL.Query().Get("minAmount"); minStr != "" {
		lamports, err := common.SOLToLamports(minStr)
		if err != nil {
			return nil, err
		}
		filter.MinLamports = &lamports
	}
	if maxStr := r.URL.Query().Get("maxAmount"); maxStr != "" {
		lamports, err := common.SOLToLamports(maxStr)
		if err != nil {
			return nil, err
		}
		filter.MaxLamports = &lamports
	}

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return &filter, nil
}

func errInvalidDate(field string) error {
	return fmt.Errorf("invalid %s date: use YYYY-MM-DD (e.g. 2006-01-02)", field)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

// writeError resolves the error taxonomy to a short classification and an
// HTTP status. Raw internal messages never reach the client for 5xx codes.
func writeError(w http.ResponseWriter, err error) {
	code, message := session.Classify(err)
	writeJSON(w, statusForCode(code), ErrorResponse{Error: message, Code: code})
}

func statusForCode(code string) int {
	switch code {
	case "INVALID_PHRASE", "INVALID_AMOUNT", "NOTHING_TO_WITHDRAW", "MALFORMED_KEY":
		return http.StatusBadRequest
	case "AUTH_FAILED", "AUTH_CANCELLED":
		return http.StatusUnauthorized
	case "WALLET_NOT_FOUND":
		return http.StatusNotFound
	case "WALLET_EXISTS", "NOT_UNLOCKED", "OPERATION_IN_PROGRESS":
		return http.StatusConflict
	case "VAULT_UNAVAILABLE":
		return http.StatusPreconditionFailed
	case "CHAIN_TRANSPORT", "CHAIN_REVERT":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
