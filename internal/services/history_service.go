package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"swiftbank/internal/money"
	"swiftbank/internal/store"

	"golang.org/x/sync/errgroup"
)

// History entry types for transfers, as seen from one account's side.
// Deposits and withdrawals keep their store types.
const (
	TypeTransferIn  = "transfer-in"
	TypeTransferOut = "transfer-out"
)

const unknownAccountName = "Unknown Account"

var ErrInvalidHistoryType = errors.New("invalid transaction type filter")

type HistoryFilter struct {
	Page      int
	Limit     int
	Type      string
	StartDate *time.Time
	EndDate   *time.Time
	Query     string
}

// Entry is the unified view of one transaction, regardless of which store
// it came from. Balance is the snapshot belonging to this account's side.
type Entry struct {
	ID         string
	Type       string
	Amount     int64
	Balance    int64
	Particular string
	CreatedAt  time.Time
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

type Meta struct {
	Total      int        `json:"total"`
	Pagination Pagination `json:"pagination"`
}

// HistoryService answers the read-only queries: the merged transaction
// history, the beneficiary directory, and the account view. The two
// transaction stores have incompatible shapes, so merging, sorting,
// searching, and paginating all happen in memory after normalization;
// pushing them into the stores would break the merged ordering.
type HistoryService struct {
	accounts      AccountStore
	beneficiaries BeneficiaryStore
	selfTxs       SelfTransactionStore
	transfers     TransferTransactionStore
}

func NewHistoryService(accounts AccountStore, beneficiaries BeneficiaryStore, selfTxs SelfTransactionStore, transfers TransferTransactionStore) *HistoryService {
	return &HistoryService{
		accounts:      accounts,
		beneficiaries: beneficiaries,
		selfTxs:       selfTxs,
		transfers:     transfers,
	}
}

func (s *HistoryService) GetTransactions(ctx context.Context, userID string, filter HistoryFilter) ([]Entry, Meta, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Meta{}, ErrAccountNotFound
		}
		return nil, Meta{}, fmt.Errorf("history: load account: %w", err)
	}

	var entries []Entry
	switch filter.Type {
	case store.TypeDeposit, store.TypeWithdrawal:
		rows, err := s.selfTxs.ListByAccount(ctx, account.ID, filter.Type, filter.StartDate, filter.EndDate)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("history: query self transactions: %w", err)
		}
		entries = normalizeSelfTransactions(rows)
	case TypeTransferIn:
		rows, err := s.transfers.ListByAccount(ctx, account.ID, store.DirectionIn, filter.StartDate, filter.EndDate)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("history: query incoming transfers: %w", err)
		}
		entries = normalizeTransfers(account.ID, rows)
	case TypeTransferOut:
		rows, err := s.transfers.ListByAccount(ctx, account.ID, store.DirectionOut, filter.StartDate, filter.EndDate)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("history: query outgoing transfers: %w", err)
		}
		entries = normalizeTransfers(account.ID, rows)
	case "":
		var selfRows []store.SelfTransaction
		var transferRows []store.TransferTransaction
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			selfRows, err = s.selfTxs.ListByAccount(gctx, account.ID, "", filter.StartDate, filter.EndDate)
			return err
		})
		g.Go(func() error {
			var err error
			transferRows, err = s.transfers.ListByAccount(gctx, account.ID, store.DirectionAny, filter.StartDate, filter.EndDate)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, Meta{}, fmt.Errorf("history: query transaction stores: %w", err)
		}
		entries = append(normalizeSelfTransactions(selfRows), normalizeTransfers(account.ID, transferRows)...)
	default:
		return nil, Meta{}, ErrInvalidHistoryType
	}

	sortEntries(entries)
	if query := strings.TrimSpace(filter.Query); query != "" {
		entries = searchEntries(entries, query)
	}
	page, limit := normalizePage(filter.Page, filter.Limit)
	meta := pageMeta(len(entries), page, limit)
	start, end := pageBounds(len(entries), page, limit)
	return entries[start:end], meta, nil
}

func (s *HistoryService) ListBeneficiaries(ctx context.Context, userID string, page, limit int, query string) ([]store.Beneficiary, Meta, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Meta{}, ErrAccountNotFound
		}
		return nil, Meta{}, fmt.Errorf("beneficiaries: load account: %w", err)
	}
	rows, err := s.beneficiaries.ListProjections(ctx, account.ID)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("beneficiaries: resolve projections: %w", err)
	}
	// Beneficiary lists are small; filtering after full resolution is fine.
	if needle := strings.ToLower(strings.TrimSpace(query)); needle != "" {
		filtered := make([]store.Beneficiary, 0, len(rows))
		for _, row := range rows {
			if strings.Contains(strings.ToLower(row.AccountID), needle) ||
				strings.Contains(strings.ToLower(derefString(row.Username)), needle) ||
				strings.Contains(strings.ToLower(derefString(row.Email)), needle) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	page, limit = normalizePage(page, limit)
	meta := pageMeta(len(rows), page, limit)
	start, end := pageBounds(len(rows), page, limit)
	return rows[start:end], meta, nil
}

func (s *HistoryService) GetAccount(ctx context.Context, userID string) (store.Account, []store.Beneficiary, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Account{}, nil, ErrAccountNotFound
		}
		return store.Account{}, nil, fmt.Errorf("account: load: %w", err)
	}
	beneficiaries, err := s.beneficiaries.ListProjections(ctx, account.ID)
	if err != nil {
		return store.Account{}, nil, fmt.Errorf("account: resolve beneficiaries: %w", err)
	}
	return account, beneficiaries, nil
}

func normalizeSelfTransactions(rows []store.SelfTransaction) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		particular := fmt.Sprintf("$%s deposited", money.FormatMinor(row.Amount))
		if row.Type == store.TypeWithdrawal {
			particular = fmt.Sprintf("$%s is withdrawn", money.FormatMinor(row.Amount))
		}
		entries = append(entries, Entry{
			ID:         row.ID,
			Type:       row.Type,
			Amount:     row.Amount,
			Balance:    row.Balance,
			Particular: particular,
			CreatedAt:  row.CreatedAt,
		})
	}
	return entries
}

// normalizeTransfers picks each record's direction, balance snapshot, and
// counterparty wording from the given account's point of view.
func normalizeTransfers(accountID string, rows []store.TransferTransaction) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{
			ID:        row.ID,
			Amount:    row.Amount,
			CreatedAt: row.CreatedAt,
		}
		if row.FromAccountID == accountID {
			entry.Type = TypeTransferOut
			entry.Balance = row.FromBalance
			entry.Particular = "Sent to " + counterpartyName(row.ToUsername)
		} else {
			entry.Type = TypeTransferIn
			entry.Balance = row.ToBalance
			entry.Particular = "Received from " + counterpartyName(row.FromUsername)
		}
		entries = append(entries, entry)
	}
	return entries
}

func counterpartyName(username *string) string {
	if username == nil || *username == "" {
		return unknownAccountName
	}
	return *username
}

// sortEntries orders newest first. Ties on creation time break on id,
// descending, so the merged ordering is deterministic.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func searchEntries(entries []Entry, query string) []Entry {
	needle := strings.ToLower(query)
	matched := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Particular), needle) ||
			strings.Contains(money.FormatMinor(entry.Amount), needle) ||
			strings.Contains(entry.Type, needle) {
			matched = append(matched, entry)
		}
	}
	return matched
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	return page, limit
}

func pageMeta(total, page, limit int) Meta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Meta{
		Total: total,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
			HasMore:    page < totalPages,
		},
	}
}

func pageBounds(total, page, limit int) (int, int) {
	start := (page - 1) * limit
	if start >= total {
		return total, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
