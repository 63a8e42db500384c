package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"swiftbank/internal/db"
	"swiftbank/internal/money"
	"swiftbank/internal/store"
	"swiftbank/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrAmountTooLarge        = errors.New("amount exceeds the allowed maximum")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrNotBeneficiary        = errors.New("destination is not a beneficiary")
	ErrSameAccountTransfer   = errors.New("cannot transfer to own account")
	ErrSelfBeneficiary       = errors.New("cannot add own account as beneficiary")
	ErrBeneficiaryNotFound   = errors.New("beneficiary not found")
	ErrBeneficiaryExists     = errors.New("beneficiary already added")
	ErrBeneficiaryHasHistory = errors.New("beneficiary has transfer history")
)

type AccountStore interface {
	GetByUserID(ctx context.Context, userID string) (store.Account, error)
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	GetByUserIDForUpdate(ctx context.Context, tx store.Getter, userID string) (store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64, active bool) error
}

type BeneficiaryStore interface {
	Add(ctx context.Context, tx store.Execer, accountID, beneficiaryAccountID string) error
	Remove(ctx context.Context, tx store.Execer, accountID, beneficiaryAccountID string) (int64, error)
	Exists(ctx context.Context, q store.Getter, accountID, beneficiaryAccountID string) (bool, error)
	ListProjections(ctx context.Context, accountID string) ([]store.Beneficiary, error)
}

type SelfTransactionStore interface {
	Insert(ctx context.Context, tx store.Execer, input store.SelfTransactionInput) error
	ListByAccount(ctx context.Context, accountID, txType string, startDate, endDate *time.Time) ([]store.SelfTransaction, error)
}

type TransferTransactionStore interface {
	Insert(ctx context.Context, tx store.Execer, input store.TransferTransactionInput) error
	ListByAccount(ctx context.Context, accountID, direction string, startDate, endDate *time.Time) ([]store.TransferTransaction, error)
	ExistsBetween(ctx context.Context, q store.Getter, accountID, otherAccountID string) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

// LedgerService owns every balance mutation. Each operation runs inside a
// serializable transaction with the touched account rows locked, so a
// transfer's debit, credit, and transaction record commit as one unit and
// concurrent mutations of the same account serialize instead of losing
// updates.
type LedgerService struct {
	txRunner      db.TxRunner
	accounts      AccountStore
	beneficiaries BeneficiaryStore
	selfTxs       SelfTransactionStore
	transfers     TransferTransactionStore
	audit         AuditStore
	hub           BalanceHub
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, beneficiaries BeneficiaryStore, selfTxs SelfTransactionStore, transfers TransferTransactionStore, audit AuditStore, hub BalanceHub) *LedgerService {
	return &LedgerService{
		txRunner:      txRunner,
		accounts:      accounts,
		beneficiaries: beneficiaries,
		selfTxs:       selfTxs,
		transfers:     transfers,
		audit:         audit,
		hub:           hub,
	}
}

func (s *LedgerService) Deposit(ctx context.Context, userID string, amountMinor int64) (store.Account, store.SelfTransaction, error) {
	if err := validateAmount(amountMinor); err != nil {
		return store.Account{}, store.SelfTransaction{}, err
	}
	var account store.Account
	var txn store.SelfTransaction
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		acc, err := s.accounts.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("deposit: load account: %w", err)
		}
		newBalance := acc.Balance + amountMinor
		// A deposit activates a dormant account.
		if err := s.accounts.UpdateBalance(ctx, tx, acc.ID, newBalance, true); err != nil {
			return fmt.Errorf("deposit: update balance: %w", err)
		}
		txn = store.SelfTransaction{
			ID:        uuid.NewString(),
			AccountID: acc.ID,
			Type:      store.TypeDeposit,
			Amount:    amountMinor,
			Balance:   newBalance,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.selfTxs.Insert(ctx, tx, selfInput(txn)); err != nil {
			return fmt.Errorf("deposit: record transaction: %w", err)
		}
		acc.Balance = newBalance
		acc.Active = true
		account = acc
		data, _ := json.Marshal(map[string]string{"transaction_id": txn.ID})
		return s.audit.Log(ctx, tx, userID, "deposit", "self_transaction", txn.ID, string(data))
	})
	if err != nil {
		return store.Account{}, store.SelfTransaction{}, err
	}
	s.broadcast(userID, account)
	return account, txn, nil
}

func (s *LedgerService) Withdraw(ctx context.Context, userID string, amountMinor int64) (store.Account, store.SelfTransaction, error) {
	if err := validateAmount(amountMinor); err != nil {
		return store.Account{}, store.SelfTransaction{}, err
	}
	var account store.Account
	var txn store.SelfTransaction
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		acc, err := s.accounts.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("withdraw: load account: %w", err)
		}
		if acc.Balance < amountMinor {
			return ErrInsufficientFunds
		}
		newBalance := acc.Balance - amountMinor
		if err := s.accounts.UpdateBalance(ctx, tx, acc.ID, newBalance, acc.Active); err != nil {
			return fmt.Errorf("withdraw: update balance: %w", err)
		}
		txn = store.SelfTransaction{
			ID:        uuid.NewString(),
			AccountID: acc.ID,
			Type:      store.TypeWithdrawal,
			Amount:    amountMinor,
			Balance:   newBalance,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.selfTxs.Insert(ctx, tx, selfInput(txn)); err != nil {
			return fmt.Errorf("withdraw: record transaction: %w", err)
		}
		acc.Balance = newBalance
		account = acc
		data, _ := json.Marshal(map[string]string{"transaction_id": txn.ID})
		return s.audit.Log(ctx, tx, userID, "withdraw", "self_transaction", txn.ID, string(data))
	})
	if err != nil {
		return store.Account{}, store.SelfTransaction{}, err
	}
	s.broadcast(userID, account)
	return account, txn, nil
}

func (s *LedgerService) Transfer(ctx context.Context, userID, toAccountID string, amountMinor int64) (store.Account, store.Account, store.TransferTransaction, error) {
	if err := validateAmount(amountMinor); err != nil {
		return store.Account{}, store.Account{}, store.TransferTransaction{}, err
	}
	var from, to store.Account
	var txn store.TransferTransaction
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		source, err := s.accounts.GetByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("transfer: load source account: %w", err)
		}
		if source.ID == toAccountID {
			return ErrSameAccountTransfer
		}
		fromAcc, toAcc, err := lockAccountPair(ctx, tx, s.accounts, source.ID, toAccountID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("transfer: lock accounts: %w", err)
		}
		allowed, err := s.beneficiaries.Exists(ctx, tx, fromAcc.ID, toAcc.ID)
		if err != nil {
			return fmt.Errorf("transfer: check beneficiary: %w", err)
		}
		if !allowed {
			return ErrNotBeneficiary
		}
		if fromAcc.Balance < amountMinor {
			return ErrInsufficientFunds
		}
		newFrom := fromAcc.Balance - amountMinor
		newTo := toAcc.Balance + amountMinor
		if err := s.accounts.UpdateBalance(ctx, tx, fromAcc.ID, newFrom, fromAcc.Active); err != nil {
			return fmt.Errorf("transfer: debit source: %w", err)
		}
		// Receiving a transfer activates a dormant destination.
		if err := s.accounts.UpdateBalance(ctx, tx, toAcc.ID, newTo, true); err != nil {
			return fmt.Errorf("transfer: credit destination: %w", err)
		}
		txn = store.TransferTransaction{
			ID:            uuid.NewString(),
			FromAccountID: fromAcc.ID,
			ToAccountID:   toAcc.ID,
			Amount:        amountMinor,
			FromBalance:   newFrom,
			ToBalance:     newTo,
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.transfers.Insert(ctx, tx, store.TransferTransactionInput{
			ID:            txn.ID,
			FromAccountID: txn.FromAccountID,
			ToAccountID:   txn.ToAccountID,
			Amount:        txn.Amount,
			FromBalance:   txn.FromBalance,
			ToBalance:     txn.ToBalance,
			CreatedAt:     txn.CreatedAt,
		}); err != nil {
			return fmt.Errorf("transfer: record transaction: %w", err)
		}
		fromAcc.Balance = newFrom
		toAcc.Balance = newTo
		toAcc.Active = true
		from, to = fromAcc, toAcc
		data, _ := json.Marshal(map[string]string{
			"transaction_id": txn.ID,
			"to_account_id":  toAcc.ID,
		})
		return s.audit.Log(ctx, tx, userID, "transfer", "transfer_transaction", txn.ID, string(data))
	})
	if err != nil {
		return store.Account{}, store.Account{}, store.TransferTransaction{}, err
	}
	s.broadcast(userID, from)
	if to.UserID != "" {
		s.broadcast(to.UserID, to)
	}
	return from, to, txn, nil
}

func (s *LedgerService) AddBeneficiary(ctx context.Context, userID, beneficiaryAccountID string) (store.Account, error) {
	var account store.Account
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		acc, err := s.accounts.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("add beneficiary: load account: %w", err)
		}
		if acc.ID == beneficiaryAccountID {
			return ErrSelfBeneficiary
		}
		if _, err := s.accounts.GetByID(ctx, beneficiaryAccountID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBeneficiaryNotFound
			}
			return fmt.Errorf("add beneficiary: load beneficiary account: %w", err)
		}
		exists, err := s.beneficiaries.Exists(ctx, tx, acc.ID, beneficiaryAccountID)
		if err != nil {
			return fmt.Errorf("add beneficiary: check existing: %w", err)
		}
		if exists {
			return ErrBeneficiaryExists
		}
		if err := s.beneficiaries.Add(ctx, tx, acc.ID, beneficiaryAccountID); err != nil {
			return fmt.Errorf("add beneficiary: insert: %w", err)
		}
		account = acc
		data, _ := json.Marshal(map[string]string{"beneficiary_account_id": beneficiaryAccountID})
		return s.audit.Log(ctx, tx, userID, "beneficiary_add", "account", acc.ID, string(data))
	})
	if err != nil {
		return store.Account{}, err
	}
	return account, nil
}

func (s *LedgerService) RemoveBeneficiary(ctx context.Context, userID, beneficiaryAccountID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		acc, err := s.accounts.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("remove beneficiary: load account: %w", err)
		}
		exists, err := s.beneficiaries.Exists(ctx, tx, acc.ID, beneficiaryAccountID)
		if err != nil {
			return fmt.Errorf("remove beneficiary: check existing: %w", err)
		}
		if !exists {
			return ErrBeneficiaryNotFound
		}
		// Removal is blocked while transfer history links the accounts,
		// in either direction.
		hasHistory, err := s.transfers.ExistsBetween(ctx, tx, acc.ID, beneficiaryAccountID)
		if err != nil {
			return fmt.Errorf("remove beneficiary: check history: %w", err)
		}
		if hasHistory {
			return ErrBeneficiaryHasHistory
		}
		removed, err := s.beneficiaries.Remove(ctx, tx, acc.ID, beneficiaryAccountID)
		if err != nil {
			return fmt.Errorf("remove beneficiary: delete: %w", err)
		}
		if removed == 0 {
			return ErrBeneficiaryNotFound
		}
		data, _ := json.Marshal(map[string]string{"beneficiary_account_id": beneficiaryAccountID})
		return s.audit.Log(ctx, tx, userID, "beneficiary_remove", "account", acc.ID, string(data))
	})
}

func (s *LedgerService) broadcast(userID string, account store.Account) {
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		AccountID: account.ID,
		Balance:   money.FormatMinor(account.Balance),
		Active:    account.Active,
	})
}

func validateAmount(amountMinor int64) error {
	if amountMinor <= 0 {
		return ErrInvalidAmount
	}
	if amountMinor > money.MaxAmountMinor {
		return ErrAmountTooLarge
	}
	return nil
}

func selfInput(txn store.SelfTransaction) store.SelfTransactionInput {
	return store.SelfTransactionInput{
		ID:        txn.ID,
		AccountID: txn.AccountID,
		Type:      txn.Type,
		Amount:    txn.Amount,
		Balance:   txn.Balance,
		CreatedAt: txn.CreatedAt,
	}
}

// lockAccountPair takes FOR UPDATE locks on both accounts in ascending id
// order so two concurrent transfers between the same pair cannot deadlock.
func lockAccountPair(ctx context.Context, tx store.Getter, accounts AccountStore, firstID, secondID string) (store.Account, store.Account, error) {
	leftID, rightID := firstID, secondID
	if rightID < leftID {
		leftID, rightID = rightID, leftID
	}
	left, err := accounts.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	right, err := accounts.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}
