package store

import (
	"context"
	"fmt"
	"time"
)

// Directions for querying transfers from one account's point of view.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
	DirectionAny = ""
)

type TransferTransactionStore struct {
	db DB
}

// TransferTransaction is a single atomic cross-account event, queried from
// both sides. It records the post-transfer balance of both accounts.
// FromUsername/ToUsername are joined through the counterparty account's
// owning user and may be nil if that user no longer resolves.
type TransferTransaction struct {
	ID            string    `db:"id"`
	FromAccountID string    `db:"from_account_id"`
	ToAccountID   string    `db:"to_account_id"`
	Amount        int64     `db:"amount"`
	FromBalance   int64     `db:"from_balance"`
	ToBalance     int64     `db:"to_balance"`
	CreatedAt     time.Time `db:"created_at"`
	FromUsername  *string   `db:"from_username"`
	ToUsername    *string   `db:"to_username"`
}

type TransferTransactionInput struct {
	ID            string
	FromAccountID string
	ToAccountID   string
	Amount        int64
	FromBalance   int64
	ToBalance     int64
	CreatedAt     time.Time
}

func NewTransferTransactionStore(db DB) *TransferTransactionStore {
	return &TransferTransactionStore{db: db}
}

func (s *TransferTransactionStore) Insert(ctx context.Context, tx Execer, input TransferTransactionInput) error {
	query := `
		INSERT INTO transfer_transactions (id, from_account_id, to_account_id, amount, from_balance, to_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.FromAccountID, input.ToAccountID, input.Amount,
		input.FromBalance, input.ToBalance, input.CreatedAt,
	)
	return err
}

// ListByAccount returns transfers touching the account, newest first.
// Direction narrows to the account's incoming or outgoing side; DirectionAny
// matches both.
func (s *TransferTransactionStore) ListByAccount(ctx context.Context, accountID, direction string, startDate, endDate *time.Time) ([]TransferTransaction, error) {
	query := `
		SELECT t.id, t.from_account_id, t.to_account_id, t.amount, t.from_balance, t.to_balance, t.created_at,
		       fu.username AS from_username, tu.username AS to_username
		FROM transfer_transactions t
		LEFT JOIN accounts fa ON fa.id = t.from_account_id
		LEFT JOIN users fu ON fu.id = fa.user_id
		LEFT JOIN accounts ta ON ta.id = t.to_account_id
		LEFT JOIN users tu ON tu.id = ta.user_id
	`
	switch direction {
	case DirectionOut:
		query += " WHERE t.from_account_id = $1"
	case DirectionIn:
		query += " WHERE t.to_account_id = $1"
	default:
		query += " WHERE (t.from_account_id = $1 OR t.to_account_id = $1)"
	}
	args := []any{accountID}
	param := 2
	if startDate != nil {
		query += fmt.Sprintf(" AND t.created_at >= $%d", param)
		args = append(args, *startDate)
		param++
	}
	if endDate != nil {
		query += fmt.Sprintf(" AND t.created_at <= $%d", param)
		args = append(args, *endDate)
		param++
	}
	query += " ORDER BY t.created_at DESC"
	var rows []TransferTransaction
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// ExistsBetween reports whether any transfer links the two accounts in
// either direction. Removing a beneficiary is blocked while one exists.
func (s *TransferTransactionStore) ExistsBetween(ctx context.Context, q Getter, accountID, otherAccountID string) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM transfer_transactions
			WHERE (from_account_id = $1 AND to_account_id = $2)
			   OR (from_account_id = $2 AND to_account_id = $1)
		)
	`, accountID, otherAccountID)
	return exists, err
}
