package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/securepay/wallet-ledger/internal/logger"
	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const testWebhookSecret = "whsec_test"

func sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func chargeEvent(event, reference, status string, amountMinor int64) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"data":{"id":302961,"reference":%q,"amount":%d,"status":%q}}`,
		event, reference, amountMinor, status))
}

func newTestReconciler(t *testing.T) (*Reconciler, *LedgerService, context.Context) {
	svc, ctx := newTestLedger(t, &stubGateway{})
	log, err := logger.NewLogger()
	assert.NoError(t, err)
	return NewReconciler(svc, testWebhookSecret, 100, log), svc, ctx
}

func TestReconciler_AppliesValidEventOnce(t *testing.T) {
	rec, svc, ctx := newTestReconciler(t)
	w := seedWallet(t, svc, ctx, 1, "1000000001", 1000)
	seedPendingDeposit(t, svc, ctx, w.ID, "R1", 500)

	body := chargeEvent("charge.success", "R1", "success", 50000) // 500.00 in minor units
	res, err := rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.NoError(t, err)
	assert.Equal(t, ReconcileApplied, res.Outcome)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.True(t, walletBalance(t, svc, ctx, w.ID).Equal(decimal.NewFromInt(1500)))

	tx, err := svc.Repo().GetTransactionByReference(ctx, svc.Repo().DB(ctx), "R1")
	assert.NoError(t, err)
	assert.Equal(t, "302961", *tx.ProviderReference)

	// redelivery: acknowledged as duplicate, balance untouched
	res, err = rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.NoError(t, err)
	assert.Equal(t, ReconcileDuplicate, res.Outcome)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.True(t, walletBalance(t, svc, ctx, w.ID).Equal(decimal.NewFromInt(1500)))
}

func TestReconciler_RejectsBadSignatureBeforeLookup(t *testing.T) {
	rec, svc, ctx := newTestReconciler(t)
	w := seedWallet(t, svc, ctx, 1, "1000000001", 1000)
	seedPendingDeposit(t, svc, ctx, w.ID, "R1", 500)

	body := chargeEvent("charge.success", "R1", "success", 50000)

	_, err := rec.Process(ctx, body, sign(body, "wrong-secret"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// tampered payload delivered under the untampered body's signature
	tampered := chargeEvent("charge.success", "R1", "success", 999900)
	_, err = rec.Process(ctx, tampered, sign(body, testWebhookSecret))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = rec.Process(ctx, body, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tx, err := svc.Repo().GetTransactionByReference(ctx, svc.Repo().DB(ctx), "R1")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, tx.Status)
	assert.True(t, walletBalance(t, svc, ctx, w.ID).Equal(decimal.NewFromInt(1000)))
}

func TestReconciler_UnknownReferenceIsNotCreated(t *testing.T) {
	rec, svc, ctx := newTestReconciler(t)
	seedWallet(t, svc, ctx, 1, "1000000001", 0)

	body := chargeEvent("charge.success", "R-INJECTED", "success", 50000)
	_, err := rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.ErrorIs(t, err, ErrUnknownReference)

	_, err = svc.Repo().GetTransactionByReference(ctx, svc.Repo().DB(ctx), "R-INJECTED")
	assert.Error(t, err, "an injected event must not mint a transaction")
}

func TestReconciler_AmountMismatchForcesFailed(t *testing.T) {
	rec, svc, ctx := newTestReconciler(t)
	w := seedWallet(t, svc, ctx, 1, "1000000001", 1000)
	seedPendingDeposit(t, svc, ctx, w.ID, "R1", 500)

	body := chargeEvent("charge.success", "R1", "success", 99900) // 999.00 vs recorded 500
	_, err := rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	tx, err := svc.Repo().GetTransactionByReference(ctx, svc.Repo().DB(ctx), "R1")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, tx.Status)
	assert.True(t, walletBalance(t, svc, ctx, w.ID).Equal(decimal.NewFromInt(1000)))
}

func TestReconciler_ChargeFailedFinalizesWithoutBalanceChange(t *testing.T) {
	rec, svc, ctx := newTestReconciler(t)
	w := seedWallet(t, svc, ctx, 1, "1000000001", 1000)
	seedPendingDeposit(t, svc, ctx, w.ID, "R1", 500)

	body := chargeEvent("charge.failed", "R1", "failed", 50000)
	res, err := rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.NoError(t, err)
	assert.Equal(t, ReconcileApplied, res.Outcome)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.True(t, walletBalance(t, svc, ctx, w.ID).Equal(decimal.NewFromInt(1000)))
}

func TestReconciler_IgnoresUnrecognizedEvents(t *testing.T) {
	rec, svc, ctx := newTestReconciler(t)
	w := seedWallet(t, svc, ctx, 1, "1000000001", 0)
	seedPendingDeposit(t, svc, ctx, w.ID, "R1", 500)

	body := chargeEvent("subscription.create", "R1", "success", 50000)
	res, err := rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.NoError(t, err)
	assert.Equal(t, ReconcileIgnored, res.Outcome)

	// charge.success whose provider status is not settled stays pending
	body = chargeEvent("charge.success", "R1", "pending", 50000)
	res, err = rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.NoError(t, err)
	assert.Equal(t, ReconcileIgnored, res.Outcome)

	tx, err := svc.Repo().GetTransactionByReference(ctx, svc.Repo().DB(ctx), "R1")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, tx.Status)
}

func TestReconciler_MalformedEvents(t *testing.T) {
	rec, _, ctx := newTestReconciler(t)

	body := []byte(`{"event":"charge.success"`)
	_, err := rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	body = []byte(`{"event":"charge.success","data":{"status":"success"}}`)
	_, err = rec.Process(ctx, body, sign(body, testWebhookSecret))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
