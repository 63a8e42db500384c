package handlers

import (
	"net/http"

	"swiftbank/internal/middleware"
)

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, beneficiaries, err := h.history.GetAccount(r.Context(), userID)
	if err != nil {
		respondLedgerError(w, err, "unable to load account")
		return
	}
	normalized := make([]map[string]any, 0, len(beneficiaries))
	for _, beneficiary := range beneficiaries {
		normalized = append(normalized, beneficiaryJSON(beneficiary))
	}
	payload := accountJSON(account)
	payload["beneficiaries"] = normalized
	respondJSON(w, http.StatusOK, map[string]any{
		"account": payload,
	})
}
