package handlers

import (
	"context"

	"swiftbank/internal/services"
	"swiftbank/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (store.User, error)
	GetByID(ctx context.Context, userID string) (store.User, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type LedgerService interface {
	Deposit(ctx context.Context, userID string, amountMinor int64) (store.Account, store.SelfTransaction, error)
	Withdraw(ctx context.Context, userID string, amountMinor int64) (store.Account, store.SelfTransaction, error)
	Transfer(ctx context.Context, userID, toAccountID string, amountMinor int64) (store.Account, store.Account, store.TransferTransaction, error)
	AddBeneficiary(ctx context.Context, userID, beneficiaryAccountID string) (store.Account, error)
	RemoveBeneficiary(ctx context.Context, userID, beneficiaryAccountID string) error
}

type HistoryService interface {
	GetTransactions(ctx context.Context, userID string, filter services.HistoryFilter) ([]services.Entry, services.Meta, error)
	ListBeneficiaries(ctx context.Context, userID string, page, limit int, query string) ([]store.Beneficiary, services.Meta, error)
	GetAccount(ctx context.Context, userID string) (store.Account, []store.Beneficiary, error)
}
