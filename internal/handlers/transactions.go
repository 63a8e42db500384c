package handlers

import (
	"encoding/json"
	"net/http"

	"swiftbank/internal/middleware"
	"swiftbank/internal/services"
	"swiftbank/internal/validator"
)

type amountRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	account, txn, err := h.ledger.Deposit(r.Context(), userID, amountMinor)
	if err != nil {
		respondLedgerError(w, err, "deposit_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"account":     accountJSON(account),
		"transaction": selfTransactionJSON(txn),
	})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	account, txn, err := h.ledger.Withdraw(r.Context(), userID, amountMinor)
	if err != nil {
		respondLedgerError(w, err, "withdrawal_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"account":     accountJSON(account),
		"transaction": selfTransactionJSON(txn),
	})
}

type transferRequest struct {
	ToAccountID string `json:"to_account_id"`
	Amount      string `json:"amount"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateAccountID(req.ToAccountID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_account_id")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	from, to, txn, err := h.ledger.Transfer(r.Context(), userID, req.ToAccountID, amountMinor)
	if err != nil {
		respondLedgerError(w, err, "transfer_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"from_account": accountJSON(from),
		"to_account":   accountJSON(to),
		"transaction":  transferTransactionJSON(txn),
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	txType := query.Get("type")
	if !validHistoryType(txType) {
		respondError(w, http.StatusBadRequest, "invalid_type")
		return
	}
	startDate, err := parseDate(query.Get("start_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_start_date")
		return
	}
	endDate, err := parseDate(query.Get("end_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_end_date")
		return
	}
	entries, meta, err := h.history.GetTransactions(r.Context(), userID, services.HistoryFilter{
		Page:      parseInt(query.Get("page"), 1),
		Limit:     parseInt(query.Get("limit"), 10),
		Type:      txType,
		StartDate: startDate,
		EndDate:   endDate,
		Query:     query.Get("q"),
	})
	if err != nil {
		respondLedgerError(w, err, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		normalized = append(normalized, entryJSON(entry))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transactions": normalized,
		"meta":         meta,
	})
}

// respondLedgerError maps the service error taxonomy to status codes; any
// unclassified error stays a 500 with a generic message.
func respondLedgerError(w http.ResponseWriter, err error, fallback string) {
	switch err {
	case services.ErrInvalidAmount:
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case services.ErrAmountTooLarge:
		respondError(w, http.StatusBadRequest, "amount_too_large")
	case services.ErrInsufficientFunds:
		respondError(w, http.StatusBadRequest, "insufficient_funds")
	case services.ErrAccountNotFound:
		respondError(w, http.StatusNotFound, "account_not_found")
	case services.ErrNotBeneficiary:
		respondError(w, http.StatusForbidden, "not_a_beneficiary")
	case services.ErrSameAccountTransfer:
		respondError(w, http.StatusBadRequest, "same_account_transfer")
	case services.ErrSelfBeneficiary:
		respondError(w, http.StatusBadRequest, "self_beneficiary")
	case services.ErrBeneficiaryNotFound:
		respondError(w, http.StatusNotFound, "beneficiary_not_found")
	case services.ErrBeneficiaryExists:
		respondError(w, http.StatusConflict, "beneficiary_exists")
	case services.ErrBeneficiaryHasHistory:
		respondError(w, http.StatusConflict, "beneficiary_has_history")
	case services.ErrInvalidHistoryType:
		respondError(w, http.StatusBadRequest, "invalid_type")
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
