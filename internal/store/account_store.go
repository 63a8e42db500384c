package store

import (
	"context"
	"time"
)

type AccountStore struct {
	db DB
}

// Account is a user's single balance record. Balance is in integer minor
// units (cents) and must never go negative. Active flips true on the first
// deposit or on receiving a transfer. Soft-deleted rows are excluded from
// every query.
type Account struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	Balance   int64      `db:"balance"`
	Active    bool       `db:"active"`
	CreatedAt time.Time  `db:"created_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, id, userID string) error {
	query := `
		INSERT INTO accounts (id, user_id, balance, active)
		VALUES ($1, $2, 0, FALSE)
	`
	_, err := tx.ExecContext(ctx, query, id, userID)
	return err
}

func (s *AccountStore) GetByUserID(ctx context.Context, userID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, balance, active, created_at, deleted_at
		FROM accounts
		WHERE user_id = $1 AND deleted_at IS NULL
	`, userID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, balance, active, created_at, deleted_at
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByUserIDForUpdate(ctx context.Context, tx Getter, userID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, balance, active, created_at, deleted_at
		FROM accounts
		WHERE user_id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, userID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, balance, active, created_at, deleted_at
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance int64, active bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, active = $2, updated_at = NOW()
		WHERE id = $3
	`, balance, active, accountID)
	return err
}
