package handlers

import (
	"errors"
	"strconv"
	"time"

	"swiftbank/internal/money"
	"swiftbank/internal/services"
)

var errInvalidAmount = errors.New("invalid amount")

func parseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func validHistoryType(txType string) bool {
	switch txType {
	case "", "deposit", "withdrawal", services.TypeTransferIn, services.TypeTransferOut:
		return true
	}
	return false
}
