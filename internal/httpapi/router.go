package httpapi

import (
	"net/http"

	"github.com/Smartdevs17/rootsave/internal/ledger"
	"github.com/Smartdevs17/rootsave/internal/session"

	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRouter sets up router with handlers
func SetupRouter(s *session.Session, l *ledger.Store) http.Handler {
	h := NewHandler(s, l)

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Wallet lifecycle
	mux.HandleFunc("/wallet/create", h.CreateWallet)
	mux.HandleFunc("/wallet/import", h.ImportWallet)
	mux.HandleFunc("/wallet/unlock", h.Unlock)
	mux.HandleFunc("/wallet/lock", h.Lock)
	mux.HandleFunc("/wallet", h.Wallet)

	// Savings operations
	mux.HandleFunc("/savings/deposit", h.Deposit)
	mux.HandleFunc("/savings/withdraw", h.Withdraw)
	mux.HandleFunc("/savings/summary", h.Summary)
	mux.HandleFunc("/savings/history", h.History)

	return mux
}
