package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/securepay/wallet-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Read-only reporting facade. Everything here reads committed state; no
// operation in this file mutates a balance or a status.

func (s *LedgerService) walletOf(ctx context.Context, userID uint64) (*model.Wallet, error) {
	w, err := s.repo.GetWalletByUser(ctx, s.repo.DB(ctx), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

// WalletInfo returns the caller's wallet record.
func (s *LedgerService) WalletInfo(ctx context.Context, userID uint64) (*model.Wallet, error) {
	return s.walletOf(ctx, userID)
}

// Balance returns the wallet number and current balance, cache-first.
func (s *LedgerService) Balance(ctx context.Context, userID uint64) (string, decimal.Decimal, error) {
	w, err := s.walletOf(ctx, userID)
	if err != nil {
		return "", decimal.Zero, err
	}
	if bal, err := s.repo.GetCachedBalance(ctx, w.ID); err == nil {
		return w.WalletNumber, bal, nil
	}
	if err := s.repo.CacheBalance(ctx, w.ID, w.Balance); err != nil {
		s.log.Warn(err)
	}
	return w.WalletNumber, w.Balance, nil
}

// TransactionQuery is the caller-facing filter; Status and Kind are
// validated against the closed enums before touching the store.
type TransactionQuery struct {
	Status string
	Kind   string
	Limit  int
	Offset int
}

// Transactions lists the caller's history with optional filters.
func (s *LedgerService) Transactions(ctx context.Context, userID uint64, q TransactionQuery) ([]model.Transaction, error) {
	w, err := s.walletOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	f := repo.TransactionFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		if !model.ValidStatus(q.Status) {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidFilter, q.Status)
		}
		f.Status = model.TransactionStatus(q.Status)
	}
	if q.Kind != "" {
		if !model.ValidKind(q.Kind) {
			return nil, fmt.Errorf("%w: kind %q", ErrInvalidFilter, q.Kind)
		}
		f.Kind = model.TransactionKind(q.Kind)
	}
	return s.repo.ListTransactions(ctx, w.ID, f)
}

// PendingTransactions lists deposits and transfers still awaiting an outcome.
func (s *LedgerService) PendingTransactions(ctx context.Context, userID uint64) ([]model.Transaction, error) {
	return s.Transactions(ctx, userID, TransactionQuery{Status: string(model.StatusPending)})
}

// CompletedTransactions lists successfully settled transactions.
func (s *LedgerService) CompletedTransactions(ctx context.Context, userID uint64) ([]model.Transaction, error) {
	return s.Transactions(ctx, userID, TransactionQuery{Status: string(model.StatusSuccess)})
}

// SummaryBucket pairs a count with an amount sum.
type SummaryBucket struct {
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Summary aggregates a wallet's history.
type Summary struct {
	WalletNumber      string                                      `json:"wallet_number"`
	CurrentBalance    decimal.Decimal                             `json:"current_balance"`
	TotalTransactions int64                                       `json:"total_transactions"`
	ByStatus          map[model.TransactionStatus]SummaryBucket   `json:"by_status"`
	ByKind            map[model.TransactionKind]decimal.Decimal   `json:"by_kind"`
	PendingAmount     decimal.Decimal                             `json:"pending_amount"`
}

// Summary computes counts and sums by status, successful sums by kind, and
// the current balance, all from committed state.
func (s *LedgerService) Summary(ctx context.Context, userID uint64) (*Summary, error) {
	w, err := s.walletOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.repo.AggregateByStatus(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	byKind, err := s.repo.AggregateByKind(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		WalletNumber:   w.WalletNumber,
		CurrentBalance: w.Balance,
		ByStatus: map[model.TransactionStatus]SummaryBucket{
			model.StatusPending: {TotalAmount: decimal.Zero},
			model.StatusSuccess: {TotalAmount: decimal.Zero},
			model.StatusFailed:  {TotalAmount: decimal.Zero},
		},
		ByKind: map[model.TransactionKind]decimal.Decimal{
			model.KindDeposit:     decimal.Zero,
			model.KindTransferOut: decimal.Zero,
			model.KindTransferIn:  decimal.Zero,
		},
		PendingAmount: decimal.Zero,
	}
	for _, row := range byStatus {
		out.ByStatus[row.Status] = SummaryBucket{Count: row.Count, TotalAmount: row.Total}
		out.TotalTransactions += row.Count
		if row.Status == model.StatusPending {
			out.PendingAmount = row.Total
		}
	}
	for _, row := range byKind {
		out.ByKind[row.Kind] = row.Total
	}
	return out, nil
}
