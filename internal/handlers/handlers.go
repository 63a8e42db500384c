package handlers

import (
	"encoding/json"
	"net/http"

	"swiftbank/internal/money"
	"swiftbank/internal/services"
	"swiftbank/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func accountJSON(account store.Account) map[string]any {
	return map[string]any{
		"id":         account.ID,
		"user_id":    account.UserID,
		"balance":    money.FormatMinor(account.Balance),
		"active":     account.Active,
		"created_at": account.CreatedAt,
	}
}

func selfTransactionJSON(txn store.SelfTransaction) map[string]any {
	return map[string]any{
		"id":         txn.ID,
		"account_id": txn.AccountID,
		"type":       txn.Type,
		"amount":     money.FormatMinor(txn.Amount),
		"balance":    money.FormatMinor(txn.Balance),
		"created_at": txn.CreatedAt,
	}
}

func transferTransactionJSON(txn store.TransferTransaction) map[string]any {
	return map[string]any{
		"id":              txn.ID,
		"from_account_id": txn.FromAccountID,
		"to_account_id":   txn.ToAccountID,
		"amount":          money.FormatMinor(txn.Amount),
		"from_balance":    money.FormatMinor(txn.FromBalance),
		"to_balance":      money.FormatMinor(txn.ToBalance),
		"created_at":      txn.CreatedAt,
	}
}

func entryJSON(entry services.Entry) map[string]any {
	return map[string]any{
		"id":         entry.ID,
		"type":       entry.Type,
		"amount":     money.FormatMinor(entry.Amount),
		"balance":    money.FormatMinor(entry.Balance),
		"particular": entry.Particular,
		"created_at": entry.CreatedAt,
	}
}

func beneficiaryJSON(beneficiary store.Beneficiary) map[string]any {
	return map[string]any{
		"account_id": beneficiary.AccountID,
		"name":       derefStringPtr(beneficiary.Username),
		"email":      derefStringPtr(beneficiary.Email),
	}
}

func derefStringPtr(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
