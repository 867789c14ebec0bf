package repo

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/securepay/wallet-ledger/internal/logger"
	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{}))
	return db
}

func TestOptimisticLock_ConcurrentBalanceUpdate(t *testing.T) {
	db := newTestDB(t)

	db.Create(&model.Wallet{ID: 1, UserID: 1, WalletNumber: "0000000001", Balance: decimal.NewFromInt(100)})

	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))

	wg := sync.WaitGroup{}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = db.Transaction(func(tx *gorm.DB) error {
				w, err := r.GetWalletForUpdate(context.Background(), tx, 1)
				if err != nil {
					return err
				}
				return r.UpdateWalletBalance(context.Background(), tx, 1,
					w.Balance.Add(decimal.NewFromInt(10)), w.Version)
			})
		}()
	}
	wg.Wait()

	var final model.Wallet
	assert.NoError(t, db.First(&final, 1).Error)

	// both goroutines read version 0; only one CAS may land
	assert.True(t, final.Balance.Equal(decimal.NewFromInt(110)),
		"expected exactly one increment, got balance %s", final.Balance)
	assert.Equal(t, uint64(1), final.Version)
}

func TestUpdateWalletBalance_StaleVersionConflicts(t *testing.T) {
	db := newTestDB(t)
	db.Create(&model.Wallet{ID: 7, UserID: 7, WalletNumber: "0000000007", Balance: decimal.NewFromInt(50)})

	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	assert.NoError(t, r.UpdateWalletBalance(ctx, db, 7, decimal.NewFromInt(60), 0))
	err := r.UpdateWalletBalance(ctx, db, 7, decimal.NewFromInt(70), 0)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}
