package repo

import (
	"context"

	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
)

const defaultListLimit = 50

// TransactionFilter narrows and pages a wallet's transaction history.
// Zero values mean "no filter"; Limit defaults to 50.
type TransactionFilter struct {
	Status model.TransactionStatus
	Kind   model.TransactionKind
	Limit  int
	Offset int
}

// StatusAggregate is one row of the per-status summary.
type StatusAggregate struct {
	Status model.TransactionStatus
	Count  int64
	Total  decimal.Decimal
}

// KindAggregate is one row of the per-kind summary over successful rows.
type KindAggregate struct {
	Kind  model.TransactionKind
	Total decimal.Decimal
}

// ListTransactions returns a wallet's history, newest first.
func (r *Repository) ListTransactions(ctx context.Context, walletID uint64, f TransactionFilter) ([]model.Transaction, error) {
	q := r.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var txs []model.Transaction
	err := q.Order("created_at desc").Limit(limit).Offset(f.Offset).Find(&txs).Error
	return txs, err
}

// AggregateByStatus groups a wallet's transactions by status with counts and
// amount sums. Reads committed state only.
func (r *Repository) AggregateByStatus(ctx context.Context, walletID uint64) ([]StatusAggregate, error) {
	var rows []StatusAggregate
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("wallet_id = ?", walletID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}

// AggregateByKind sums successful amounts per transaction kind.
func (r *Repository) AggregateByKind(ctx context.Context, walletID uint64) ([]KindAggregate, error) {
	var rows []KindAggregate
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("kind, COALESCE(SUM(amount), 0) AS total").
		Where("wallet_id = ? AND status = ?", walletID, model.StatusSuccess).
		Group("kind").
		Scan(&rows).Error
	return rows, err
}
