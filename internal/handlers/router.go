package handlers

import (
	"net/http"

	"swiftbank/internal/config"
	"swiftbank/internal/db"
	"swiftbank/internal/middleware"
	"swiftbank/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg      config.Config
	txRunner db.TxRunner
	users    UserStore
	accounts AccountStore
	audit    AuditStore
	ledger   LedgerService
	history  HistoryService
	hub      *websocket.Hub
}

func New(cfg config.Config, txRunner db.TxRunner, users UserStore, accounts AccountStore, audit AuditStore, ledger LedgerService, history HistoryService, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:      cfg,
		txRunner: txRunner,
		users:    users,
		accounts: accounts,
		audit:    audit,
		ledger:   ledger,
		history:  history,
		hub:      hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/account", h.GetAccount)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/transactions/deposit", h.Deposit)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/transactions/withdraw", h.Withdraw)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/transactions/transfer", h.Transfer)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/transactions", h.ListTransactions)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/beneficiaries", h.ListBeneficiaries)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/beneficiaries", h.AddBeneficiary)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Delete("/beneficiaries/{accountID}", h.RemoveBeneficiary)
	router.Get("/ws/balances", h.WSBalances)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
