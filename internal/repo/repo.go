package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientFunds is returned when wallet balance is not enough.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrConcurrencyConflict means an optimistic update lost the race; the
// enclosing database transaction should be retried.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// RepositoryInterface restricts Repo methods (unit-test mocking seam).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	GetWallet(ctx context.Context, tx *gorm.DB, walletID uint64) (*model.Wallet, error)
	GetWalletByUser(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error)
	GetWalletByNumber(ctx context.Context, tx *gorm.DB, number string) (*model.Wallet, error)
	GetWalletForUpdate(ctx context.Context, tx *gorm.DB, walletID uint64) (*model.Wallet, error)
	UpdateWalletBalance(ctx context.Context, tx *gorm.DB, walletID uint64, newBalance decimal.Decimal, oldVersion uint64) error
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	GetTransactionByReference(ctx context.Context, tx *gorm.DB, reference string) (*model.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*model.Transaction, error)
	FinalizeTransaction(ctx context.Context, tx *gorm.DB, reference string, status model.TransactionStatus, upd FinalizeUpdate) (bool, error)
	ListTransactions(ctx context.Context, walletID uint64, f TransactionFilter) ([]model.Transaction, error)
	ListStalePending(ctx context.Context, cutoff time.Time) ([]model.Transaction, error)
	AggregateByStatus(ctx context.Context, walletID uint64) ([]StatusAggregate, error)
	AggregateByKind(ctx context.Context, walletID uint64) ([]KindAggregate, error)
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	CacheBalance(ctx context.Context, walletID uint64, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, walletID uint64) (decimal.Decimal, error)
}

// FinalizeUpdate carries the optional columns recorded alongside a status
// transition.
type FinalizeUpdate struct {
	FinalizedAt       time.Time
	FailureReason     *string
	ProviderReference *string
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// CreateWallet inserts a wallet row.
func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return tx.WithContext(ctx).Create(w).Error
}

// GetWallet fetches a wallet without locking.
func (r *Repository) GetWallet(ctx context.Context, tx *gorm.DB, walletID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).Where("id = ?", walletID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWalletByUser fetches the wallet owned by userID (1:1).
func (r *Repository) GetWalletByUser(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWalletByNumber fetches a wallet by its externally-quoted number.
func (r *Repository) GetWalletByNumber(ctx context.Context, tx *gorm.DB, number string) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).Where("wallet_number = ?", number).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// withRowLock adds FOR UPDATE. sqlite (tests) has no row locks; its
// single-writer model serializes the check-then-act sequence instead.
func withRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GetWalletForUpdate locks wallet row.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, walletID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := withRowLock(tx.WithContext(ctx)).
		Where("id = ?", walletID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWalletBalance writes the balance with an optimistic lock on Version.
func (r *Repository) UpdateWalletBalance(ctx context.Context, tx *gorm.DB, walletID uint64, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", walletID, oldVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

// CreateTransaction inserts record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// GetTransactionByReference fetches by the idempotency key.
func (r *Repository) GetTransactionByReference(ctx context.Context, tx *gorm.DB, reference string) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).Where("reference = ?", reference).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransactionForUpdate locks the transaction row for the duration of a
// finalize check-then-act sequence.
func (r *Repository) GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*model.Transaction, error) {
	var t model.Transaction
	if err := withRowLock(tx.WithContext(ctx)).
		Where("reference = ?", reference).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// FinalizeTransaction moves a pending row into a terminal status via
// compare-and-set on the status column. Returns false when the row was no
// longer pending, i.e. some other writer finalized it first. This CAS is the
// total-order guard for all finalize callers of a given reference.
func (r *Repository) FinalizeTransaction(ctx context.Context, tx *gorm.DB, reference string, status model.TransactionStatus, upd FinalizeUpdate) (bool, error) {
	cols := map[string]interface{}{
		"status":       status,
		"finalized_at": upd.FinalizedAt,
	}
	if upd.FailureReason != nil {
		cols["failure_reason"] = upd.FailureReason
	}
	if upd.ProviderReference != nil {
		cols["provider_reference"] = upd.ProviderReference
	}
	res := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("reference = ? AND status = ?", reference, model.StatusPending).
		Updates(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListStalePending returns pending transactions created before cutoff.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.StatusPending, cutoff).
		Order("created_at").
		Find(&txs).Error
	return txs, err
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis. A nil client (poller, sweeper, tests) is a no-op.
func (r *Repository) CacheBalance(ctx context.Context, walletID uint64, bal decimal.Decimal) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%d", walletID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, walletID uint64) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, redis.Nil
	}
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%d", walletID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
