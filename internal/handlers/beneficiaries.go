package handlers

import (
	"encoding/json"
	"net/http"

	"swiftbank/internal/middleware"
	"swiftbank/internal/validator"

	"github.com/go-chi/chi/v5"
)

type addBeneficiaryRequest struct {
	AccountID string `json:"account_id"`
}

func (h *Handler) AddBeneficiary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req addBeneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	// A malformed id can never name an account, so it reads as not found.
	if err := validator.ValidateAccountID(req.AccountID); err != nil {
		respondError(w, http.StatusNotFound, "beneficiary_not_found")
		return
	}
	account, err := h.ledger.AddBeneficiary(r.Context(), userID, req.AccountID)
	if err != nil {
		respondLedgerError(w, err, "unable to add beneficiary")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"account": accountJSON(account),
	})
}

func (h *Handler) RemoveBeneficiary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accountID := chi.URLParam(r, "accountID")
	if err := validator.ValidateAccountID(accountID); err != nil {
		respondError(w, http.StatusNotFound, "beneficiary_not_found")
		return
	}
	if err := h.ledger.RemoveBeneficiary(r.Context(), userID, accountID); err != nil {
		respondLedgerError(w, err, "unable to remove beneficiary")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	beneficiaries, meta, err := h.history.ListBeneficiaries(
		r.Context(), userID,
		parseInt(query.Get("page"), 1),
		parseInt(query.Get("limit"), 10),
		query.Get("q"),
	)
	if err != nil {
		respondLedgerError(w, err, "unable to load beneficiaries")
		return
	}
	normalized := make([]map[string]any, 0, len(beneficiaries))
	for _, beneficiary := range beneficiaries {
		normalized = append(normalized, beneficiaryJSON(beneficiary))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"beneficiaries": normalized,
		"meta":          meta,
	})
}
