package store

import (
	"context"
	"fmt"
	"time"
)

// Self transaction types.
const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
)

type SelfTransactionStore struct {
	db DB
}

// SelfTransaction is a one-sided, append-only record of a deposit or
// withdrawal, carrying the account's balance as it was right after the
// operation committed. Snapshots are history, never recomputed.
type SelfTransaction struct {
	ID        string    `db:"id"`
	AccountID string    `db:"account_id"`
	Type      string    `db:"type"`
	Amount    int64     `db:"amount"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
}

type SelfTransactionInput struct {
	ID        string
	AccountID string
	Type      string
	Amount    int64
	Balance   int64
	CreatedAt time.Time
}

func NewSelfTransactionStore(db DB) *SelfTransactionStore {
	return &SelfTransactionStore{db: db}
}

func (s *SelfTransactionStore) Insert(ctx context.Context, tx Execer, input SelfTransactionInput) error {
	query := `
		INSERT INTO self_transactions (id, account_id, type, amount, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.AccountID, input.Type, input.Amount, input.Balance, input.CreatedAt,
	)
	return err
}

// ListByAccount returns the account's deposits and withdrawals, newest
// first, optionally narrowed by type and creation-time range.
func (s *SelfTransactionStore) ListByAccount(ctx context.Context, accountID, txType string, startDate, endDate *time.Time) ([]SelfTransaction, error) {
	query := `
		SELECT id, account_id, type, amount, balance, created_at
		FROM self_transactions
		WHERE account_id = $1 AND deleted_at IS NULL
	`
	args := []any{accountID}
	param := 2
	if txType != "" {
		query += fmt.Sprintf(" AND type = $%d", param)
		args = append(args, txType)
		param++
	}
	if startDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", param)
		args = append(args, *startDate)
		param++
	}
	if endDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", param)
		args = append(args, *endDate)
		param++
	}
	query += " ORDER BY created_at DESC"
	var rows []SelfTransaction
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
