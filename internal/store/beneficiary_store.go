package store

import "context"

type BeneficiaryStore struct {
	db DB
}

// Beneficiary is the display projection of an allow-listed target account,
// joined with its owning user.
type Beneficiary struct {
	AccountID string  `db:"account_id"`
	Username  *string `db:"username"`
	Email     *string `db:"email"`
}

func NewBeneficiaryStore(db DB) *BeneficiaryStore {
	return &BeneficiaryStore{db: db}
}

func (s *BeneficiaryStore) Add(ctx context.Context, tx Execer, accountID, beneficiaryAccountID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_beneficiaries (account_id, beneficiary_account_id)
		VALUES ($1, $2)
	`, accountID, beneficiaryAccountID)
	return err
}

func (s *BeneficiaryStore) Remove(ctx context.Context, tx Execer, accountID, beneficiaryAccountID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM account_beneficiaries
		WHERE account_id = $1 AND beneficiary_account_id = $2
	`, accountID, beneficiaryAccountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *BeneficiaryStore) Exists(ctx context.Context, q Getter, accountID, beneficiaryAccountID string) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM account_beneficiaries
			WHERE account_id = $1 AND beneficiary_account_id = $2
		)
	`, accountID, beneficiaryAccountID)
	return exists, err
}

// ListProjections resolves the allow-list to display rows, ordered by when
// each beneficiary was added. Soft-deleted target accounts drop out.
func (s *BeneficiaryStore) ListProjections(ctx context.Context, accountID string) ([]Beneficiary, error) {
	var rows []Beneficiary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT b.id AS account_id, u.username, u.email
		FROM account_beneficiaries ab
		JOIN accounts b ON b.id = ab.beneficiary_account_id
		LEFT JOIN users u ON u.id = b.user_id
		WHERE ab.account_id = $1 AND b.deleted_at IS NULL
		ORDER BY ab.created_at
	`, accountID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
