package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"swiftbank/internal/money"
	"swiftbank/internal/store"
	"swiftbank/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

type stubAccountStore struct {
	getByUserID          func(userID string) (store.Account, error)
	getByID              func(accountID string) (store.Account, error)
	getByUserIDForUpdate func(userID string) (store.Account, error)
	getForUpdate         func(accountID string) (store.Account, error)
	updateBalance        func(accountID string, balance int64, active bool) error
}

func (s *stubAccountStore) GetByUserID(ctx context.Context, userID string) (store.Account, error) {
	return s.getByUserID(userID)
}

func (s *stubAccountStore) GetByID(ctx context.Context, accountID string) (store.Account, error) {
	return s.getByID(accountID)
}

func (s *stubAccountStore) GetByUserIDForUpdate(ctx context.Context, tx store.Getter, userID string) (store.Account, error) {
	return s.getByUserIDForUpdate(userID)
}

func (s *stubAccountStore) GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error) {
	return s.getForUpdate(accountID)
}

func (s *stubAccountStore) UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64, active bool) error {
	return s.updateBalance(accountID, balance, active)
}

type stubBeneficiaryStore struct {
	add             func(accountID, beneficiaryAccountID string) error
	remove          func(accountID, beneficiaryAccountID string) (int64, error)
	exists          func(accountID, beneficiaryAccountID string) (bool, error)
	listProjections func(accountID string) ([]store.Beneficiary, error)
}

func (s *stubBeneficiaryStore) Add(ctx context.Context, tx store.Execer, accountID, beneficiaryAccountID string) error {
	return s.add(accountID, beneficiaryAccountID)
}

func (s *stubBeneficiaryStore) Remove(ctx context.Context, tx store.Execer, accountID, beneficiaryAccountID string) (int64, error) {
	return s.remove(accountID, beneficiaryAccountID)
}

func (s *stubBeneficiaryStore) Exists(ctx context.Context, q store.Getter, accountID, beneficiaryAccountID string) (bool, error) {
	return s.exists(accountID, beneficiaryAccountID)
}

func (s *stubBeneficiaryStore) ListProjections(ctx context.Context, accountID string) ([]store.Beneficiary, error) {
	return s.listProjections(accountID)
}

type stubSelfTransactionStore struct {
	insert        func(input store.SelfTransactionInput) error
	listByAccount func(accountID, txType string) ([]store.SelfTransaction, error)
}

func (s *stubSelfTransactionStore) Insert(ctx context.Context, tx store.Execer, input store.SelfTransactionInput) error {
	return s.insert(input)
}

func (s *stubSelfTransactionStore) ListByAccount(ctx context.Context, accountID, txType string, startDate, endDate *time.Time) ([]store.SelfTransaction, error) {
	return s.listByAccount(accountID, txType)
}

type stubTransferTransactionStore struct {
	insert        func(input store.TransferTransactionInput) error
	listByAccount func(accountID, direction string) ([]store.TransferTransaction, error)
	existsBetween func(accountID, otherAccountID string) (bool, error)
}

func (s *stubTransferTransactionStore) Insert(ctx context.Context, tx store.Execer, input store.TransferTransactionInput) error {
	return s.insert(input)
}

func (s *stubTransferTransactionStore) ListByAccount(ctx context.Context, accountID, direction string, startDate, endDate *time.Time) ([]store.TransferTransaction, error) {
	return s.listByAccount(accountID, direction)
}

func (s *stubTransferTransactionStore) ExistsBetween(ctx context.Context, q store.Getter, accountID, otherAccountID string) (bool, error) {
	return s.existsBetween(accountID, otherAccountID)
}

type stubAuditStore struct {
	actions []string
}

func (s *stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	s.actions = append(s.actions, action)
	return nil
}

type stubHub struct {
	updates map[string][]websocket.BalanceUpdate
}

func newStubHub() *stubHub {
	return &stubHub{updates: make(map[string][]websocket.BalanceUpdate)}
}

func (s *stubHub) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	s.updates[userID] = append(s.updates[userID], update)
}

type balanceWrite struct {
	accountID string
	balance   int64
	active    bool
}

func TestDepositActivatesDormantAccount(t *testing.T) {
	var writes []balanceWrite
	var inserted store.SelfTransactionInput
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID, Balance: 500, Active: false}, nil
		},
		updateBalance: func(accountID string, balance int64, active bool) error {
			writes = append(writes, balanceWrite{accountID, balance, active})
			return nil
		},
	}
	selfTxs := &stubSelfTransactionStore{
		insert: func(input store.SelfTransactionInput) error {
			inserted = input
			return nil
		},
	}
	audit := &stubAuditStore{}
	hub := newStubHub()
	svc := NewLedgerService(stubTxRunner{}, accounts, nil, selfTxs, nil, audit, hub)

	account, txn, err := svc.Deposit(context.Background(), "user-1", 250)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Balance != 750 || !account.Active {
		t.Fatalf("expected active account with balance 750, got balance=%d active=%v", account.Balance, account.Active)
	}
	if len(writes) != 1 || writes[0].balance != 750 || !writes[0].active {
		t.Fatalf("unexpected balance write: %+v", writes)
	}
	if txn.Type != store.TypeDeposit || txn.Amount != 250 || txn.Balance != 750 {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if inserted.Balance != 750 {
		t.Fatalf("expected snapshot balance 750, got %d", inserted.Balance)
	}
	updates := hub.updates["user-1"]
	if len(updates) != 1 || updates[0].Balance != "7.50" || !updates[0].Active {
		t.Fatalf("unexpected broadcast: %+v", updates)
	}
	if len(audit.actions) != 1 || audit.actions[0] != "deposit" {
		t.Fatalf("unexpected audit trail: %v", audit.actions)
	}
}

func TestDepositRejectsBadAmounts(t *testing.T) {
	svc := NewLedgerService(stubTxRunner{}, nil, nil, nil, nil, nil, nil)
	if _, _, err := svc.Deposit(context.Background(), "user-1", 0); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := svc.Deposit(context.Background(), "user-1", -50); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := svc.Deposit(context.Background(), "user-1", money.MaxAmountMinor+1); err != ErrAmountTooLarge {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestDepositUnknownAccount(t *testing.T) {
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{}, sql.ErrNoRows
		},
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, nil, nil, nil, nil, nil)
	if _, _, err := svc.Deposit(context.Background(), "user-1", 100); err != ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	updated := false
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID, Balance: 100, Active: true}, nil
		},
		updateBalance: func(accountID string, balance int64, active bool) error {
			updated = true
			return nil
		},
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, nil, nil, nil, nil, nil)
	if _, _, err := svc.Withdraw(context.Background(), "user-1", 200); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if updated {
		t.Fatal("balance must not change on a rejected withdrawal")
	}
}

func TestWithdrawKeepsActiveFlag(t *testing.T) {
	var writes []balanceWrite
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID, Balance: 300, Active: false}, nil
		},
		updateBalance: func(accountID string, balance int64, active bool) error {
			writes = append(writes, balanceWrite{accountID, balance, active})
			return nil
		},
	}
	selfTxs := &stubSelfTransactionStore{
		insert: func(input store.SelfTransactionInput) error { return nil },
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, nil, selfTxs, nil, &stubAuditStore{}, newStubHub())

	account, txn, err := svc.Withdraw(context.Background(), "user-1", 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.Balance != 0 || account.Active {
		t.Fatalf("expected inactive account with balance 0, got %+v", account)
	}
	if txn.Type != store.TypeWithdrawal || txn.Balance != 0 {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if len(writes) != 1 || writes[0].active {
		t.Fatalf("withdrawal must not flip the active flag: %+v", writes)
	}
}

func transferFixture(fromBalance, toBalance int64) (*stubAccountStore, map[string]*store.Account) {
	rows := map[string]*store.Account{
		"acc-from": {ID: "acc-from", UserID: "user-from", Balance: fromBalance, Active: true},
		"acc-to":   {ID: "acc-to", UserID: "user-to", Balance: toBalance, Active: false},
	}
	accounts := &stubAccountStore{
		getByUserID: func(userID string) (store.Account, error) {
			for _, row := range rows {
				if row.UserID == userID {
					return *row, nil
				}
			}
			return store.Account{}, sql.ErrNoRows
		},
		getForUpdate: func(accountID string) (store.Account, error) {
			row, ok := rows[accountID]
			if !ok {
				return store.Account{}, sql.ErrNoRows
			}
			return *row, nil
		},
		updateBalance: func(accountID string, balance int64, active bool) error {
			rows[accountID].Balance = balance
			rows[accountID].Active = active
			return nil
		},
	}
	return accounts, rows
}

func TestTransferMovesFundsAtomically(t *testing.T) {
	accounts, rows := transferFixture(1000, 200)
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return true, nil },
	}
	var inserted store.TransferTransactionInput
	transfers := &stubTransferTransactionStore{
		insert: func(input store.TransferTransactionInput) error {
			inserted = input
			return nil
		},
	}
	hub := newStubHub()
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, transfers, &stubAuditStore{}, hub)

	from, to, txn, err := svc.Transfer(context.Background(), "user-from", "acc-to", 400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if from.Balance != 600 || to.Balance != 600 {
		t.Fatalf("unexpected balances: from=%d to=%d", from.Balance, to.Balance)
	}
	if rows["acc-from"].Balance+rows["acc-to"].Balance != 1200 {
		t.Fatalf("transfer must conserve total funds, got %d", rows["acc-from"].Balance+rows["acc-to"].Balance)
	}
	if !to.Active {
		t.Fatal("receiving a transfer must activate the destination")
	}
	if txn.FromBalance != 600 || txn.ToBalance != 600 || txn.Amount != 400 {
		t.Fatalf("unexpected transaction snapshots: %+v", txn)
	}
	if inserted.FromAccountID != "acc-from" || inserted.ToAccountID != "acc-to" {
		t.Fatalf("unexpected insert: %+v", inserted)
	}
	if len(hub.updates["user-from"]) != 1 || len(hub.updates["user-to"]) != 1 {
		t.Fatalf("expected a broadcast for both sides, got %+v", hub.updates)
	}
}

func TestTransferRequiresBeneficiary(t *testing.T) {
	accounts, rows := transferFixture(1000, 0)
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return false, nil },
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, nil, nil, nil)
	if _, _, _, err := svc.Transfer(context.Background(), "user-from", "acc-to", 100); err != ErrNotBeneficiary {
		t.Fatalf("expected ErrNotBeneficiary, got %v", err)
	}
	if rows["acc-from"].Balance != 1000 {
		t.Fatal("rejected transfer must not move funds")
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	accounts, _ := transferFixture(50, 0)
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return true, nil },
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, nil, nil, nil)
	if _, _, _, err := svc.Transfer(context.Background(), "user-from", "acc-to", 100); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestTransferToOwnAccount(t *testing.T) {
	accounts, _ := transferFixture(1000, 0)
	svc := NewLedgerService(stubTxRunner{}, accounts, nil, nil, nil, nil, nil)
	if _, _, _, err := svc.Transfer(context.Background(), "user-from", "acc-from", 100); err != ErrSameAccountTransfer {
		t.Fatalf("expected ErrSameAccountTransfer, got %v", err)
	}
}

func TestTransferUnknownDestination(t *testing.T) {
	accounts, _ := transferFixture(1000, 0)
	svc := NewLedgerService(stubTxRunner{}, accounts, nil, nil, nil, nil, nil)
	if _, _, _, err := svc.Transfer(context.Background(), "user-from", "acc-missing", 100); err != ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestTransferLocksAccountsInIDOrder(t *testing.T) {
	var lockOrder []string
	rows := map[string]store.Account{
		"acc-b": {ID: "acc-b", UserID: "user-from", Balance: 1000, Active: true},
		"acc-a": {ID: "acc-a", UserID: "user-to", Balance: 0, Active: true},
	}
	accounts := &stubAccountStore{
		getByUserID: func(userID string) (store.Account, error) {
			return rows["acc-b"], nil
		},
		getForUpdate: func(accountID string) (store.Account, error) {
			lockOrder = append(lockOrder, accountID)
			return rows[accountID], nil
		},
		updateBalance: func(accountID string, balance int64, active bool) error { return nil },
	}
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return true, nil },
	}
	transfers := &stubTransferTransactionStore{
		insert: func(input store.TransferTransactionInput) error { return nil },
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, transfers, &stubAuditStore{}, newStubHub())

	if _, _, _, err := svc.Transfer(context.Background(), "user-from", "acc-a", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lockOrder) != 2 || lockOrder[0] != "acc-a" || lockOrder[1] != "acc-b" {
		t.Fatalf("expected locks in ascending id order, got %v", lockOrder)
	}
}

func TestAddBeneficiary(t *testing.T) {
	added := false
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID, Balance: 100, Active: true}, nil
		},
		getByID: func(accountID string) (store.Account, error) {
			if accountID != "acc-2" {
				return store.Account{}, sql.ErrNoRows
			}
			return store.Account{ID: "acc-2"}, nil
		},
	}
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return false, nil },
		add: func(accountID, beneficiaryAccountID string) error {
			added = true
			return nil
		},
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, nil, &stubAuditStore{}, nil)

	account, err := svc.AddBeneficiary(context.Background(), "user-1", "acc-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != "acc-1" || !added {
		t.Fatalf("expected beneficiary added to acc-1, got %+v added=%v", account, added)
	}
}

func TestAddBeneficiaryRejectsSelf(t *testing.T) {
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID}, nil
		},
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, nil, nil, nil, nil, nil)
	if _, err := svc.AddBeneficiary(context.Background(), "user-1", "acc-1"); err != ErrSelfBeneficiary {
		t.Fatalf("expected ErrSelfBeneficiary, got %v", err)
	}
}

func TestAddBeneficiaryUnknownTarget(t *testing.T) {
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID}, nil
		},
		getByID: func(accountID string) (store.Account, error) {
			return store.Account{}, sql.ErrNoRows
		},
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, nil, nil, nil, nil, nil)
	if _, err := svc.AddBeneficiary(context.Background(), "user-1", "acc-missing"); err != ErrBeneficiaryNotFound {
		t.Fatalf("expected ErrBeneficiaryNotFound, got %v", err)
	}
}

func TestAddBeneficiaryDuplicate(t *testing.T) {
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID}, nil
		},
		getByID: func(accountID string) (store.Account, error) {
			return store.Account{ID: accountID}, nil
		},
	}
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return true, nil },
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, nil, nil, nil)
	if _, err := svc.AddBeneficiary(context.Background(), "user-1", "acc-2"); err != ErrBeneficiaryExists {
		t.Fatalf("expected ErrBeneficiaryExists, got %v", err)
	}
}

func TestRemoveBeneficiaryBlockedByHistory(t *testing.T) {
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID}, nil
		},
	}
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return true, nil },
	}
	transfers := &stubTransferTransactionStore{
		existsBetween: func(accountID, otherAccountID string) (bool, error) { return true, nil },
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, transfers, nil, nil)
	if err := svc.RemoveBeneficiary(context.Background(), "user-1", "acc-2"); err != ErrBeneficiaryHasHistory {
		t.Fatalf("expected ErrBeneficiaryHasHistory, got %v", err)
	}
}

func TestRemoveBeneficiaryNotListed(t *testing.T) {
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID}, nil
		},
	}
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return false, nil },
	}
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, nil, nil, nil)
	if err := svc.RemoveBeneficiary(context.Background(), "user-1", "acc-2"); err != ErrBeneficiaryNotFound {
		t.Fatalf("expected ErrBeneficiaryNotFound, got %v", err)
	}
}

func TestRemoveBeneficiary(t *testing.T) {
	accounts := &stubAccountStore{
		getByUserIDForUpdate: func(userID string) (store.Account, error) {
			return store.Account{ID: "acc-1", UserID: userID}, nil
		},
	}
	beneficiaries := &stubBeneficiaryStore{
		exists: func(accountID, beneficiaryAccountID string) (bool, error) { return true, nil },
		remove: func(accountID, beneficiaryAccountID string) (int64, error) { return 1, nil },
	}
	transfers := &stubTransferTransactionStore{
		existsBetween: func(accountID, otherAccountID string) (bool, error) { return false, nil },
	}
	audit := &stubAuditStore{}
	svc := NewLedgerService(stubTxRunner{}, accounts, beneficiaries, nil, transfers, audit, nil)
	if err := svc.RemoveBeneficiary(context.Background(), "user-1", "acc-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audit.actions) != 1 || audit.actions[0] != "beneficiary_remove" {
		t.Fatalf("unexpected audit trail: %v", audit.actions)
	}
}
