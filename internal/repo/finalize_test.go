package repo

import (
	"context"
	"testing"
	"time"

	"github.com/securepay/wallet-ledger/internal/logger"
	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFinalizeTransaction_FirstCallerWins(t *testing.T) {
	db := newTestDB(t)
	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	tx := &model.Transaction{
		WalletID:  1,
		Kind:      model.KindDeposit,
		Amount:    decimal.NewFromInt(500),
		Status:    model.StatusPending,
		Reference: "R-CAS-1",
	}
	assert.NoError(t, r.CreateTransaction(ctx, db, tx))

	now := time.Now().UTC()
	applied := 0
	for i := 0; i < 5; i++ {
		moved, err := r.FinalizeTransaction(ctx, db, "R-CAS-1", model.StatusSuccess, FinalizeUpdate{FinalizedAt: now})
		assert.NoError(t, err)
		if moved {
			applied++
		}
	}
	assert.Equal(t, 1, applied, "the status CAS must land exactly once")

	// a later failed attempt cannot move the terminal row either
	moved, err := r.FinalizeTransaction(ctx, db, "R-CAS-1", model.StatusFailed, FinalizeUpdate{FinalizedAt: now})
	assert.NoError(t, err)
	assert.False(t, moved)

	final, err := r.GetTransactionByReference(ctx, db, "R-CAS-1")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, final.Status)
	assert.NotNil(t, final.FinalizedAt)
}

func TestFinalizeTransaction_RecordsAuditColumns(t *testing.T) {
	db := newTestDB(t)
	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	assert.NoError(t, r.CreateTransaction(ctx, db, &model.Transaction{
		WalletID:  2,
		Kind:      model.KindDeposit,
		Amount:    decimal.NewFromInt(100),
		Status:    model.StatusPending,
		Reference: "R-CAS-2",
	}))

	reason := "gateway reported charge failed"
	provider := "987654"
	moved, err := r.FinalizeTransaction(ctx, db, "R-CAS-2", model.StatusFailed, FinalizeUpdate{
		FinalizedAt:       time.Now().UTC(),
		FailureReason:     &reason,
		ProviderReference: &provider,
	})
	assert.NoError(t, err)
	assert.True(t, moved)

	final, err := r.GetTransactionByReference(ctx, db, "R-CAS-2")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, final.Status)
	assert.Equal(t, reason, *final.FailureReason)
	assert.Equal(t, provider, *final.ProviderReference)
}
