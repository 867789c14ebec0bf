package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/securepay/wallet-ledger/internal/gateway"
	"github.com/securepay/wallet-ledger/internal/logger"
	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/securepay/wallet-ledger/internal/repo"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubGateway struct {
	initErr error
	charge  *gateway.Charge
}

func (g *stubGateway) Initialize(_ context.Context, req gateway.InitializeRequest) (*gateway.Checkout, error) {
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.Checkout{
		AuthorizationURL: "https://checkout.example/" + req.Reference,
		AccessCode:       "ac_test",
		Reference:        req.Reference,
	}, nil
}

func (g *stubGateway) Verify(_ context.Context, reference string) (*gateway.Charge, error) {
	if g.charge != nil {
		return g.charge, nil
	}
	return &gateway.Charge{Reference: reference, Status: "abandoned"}, nil
}

func newTestLedger(t *testing.T, gw Gateway) (*LedgerService, context.Context) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{}))

	// cache misses fall back to the DB, so no expectations are scripted here
	rdb, _ := redismock.NewClientMock()

	log, err := logger.NewLogger()
	assert.NoError(t, err)

	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	return NewLedgerService(repository, gw, 100, log), context.Background()
}

func seedWallet(t *testing.T, svc *LedgerService, ctx context.Context, userID uint64, number string, balance int64) *model.Wallet {
	w := &model.Wallet{
		UserID:       userID,
		WalletNumber: number,
		Balance:      decimal.NewFromInt(balance),
	}
	assert.NoError(t, svc.Repo().CreateWallet(ctx, svc.Repo().DB(ctx), w))
	return w
}

func seedPendingDeposit(t *testing.T, svc *LedgerService, ctx context.Context, walletID uint64, reference string, amount int64) *model.Transaction {
	tx := &model.Transaction{
		WalletID:  walletID,
		Kind:      model.KindDeposit,
		Amount:    decimal.NewFromInt(amount),
		Status:    model.StatusPending,
		Reference: reference,
	}
	assert.NoError(t, svc.Repo().CreateTransaction(ctx, svc.Repo().DB(ctx), tx))
	return tx
}

func walletBalance(t *testing.T, svc *LedgerService, ctx context.Context, walletID uint64) decimal.Decimal {
	w, err := svc.Repo().GetWallet(ctx, svc.Repo().DB(ctx), walletID)
	assert.NoError(t, err)
	return w.Balance
}
