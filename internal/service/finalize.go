package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/securepay/wallet-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Outcome is the terminal state a finalize caller asserts.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// FinalizeInput identifies the transition. ObservedAmount must match the
// recorded amount for a success outcome; ProviderReference and
// FailureReason are recorded for audit when present.
type FinalizeInput struct {
	Reference         string
	Outcome           Outcome
	ObservedAmount    decimal.Decimal
	ProviderReference string
	FailureReason     string
}

// FinalizeResult reports what the transition did. Applied is false when the
// row was already terminal, in which case Status is the prior outcome and
// nothing was mutated.
type FinalizeResult struct {
	Reference string
	Status    model.TransactionStatus
	Applied   bool
}

// Finalize drives a transaction out of pending, exactly once. The status
// compare-and-set is the transition guard: for any reference the first
// caller wins and every later caller observes the terminal state, whatever
// order webhook retries, sweeps and cancels arrive in. A success transition
// on a deposit credits the owning wallet inside the same database
// transaction.
//
// A success outcome whose observed amount disagrees with the recorded
// amount forces the row to failed and returns ErrAmountMismatch; the ledger
// never credits an amount it did not record.
func (s *LedgerService) Finalize(ctx context.Context, in FinalizeInput) (*FinalizeResult, error) {
	var (
		res      FinalizeResult
		mismatch bool
	)
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		t, err := s.repo.GetTransactionForUpdate(ctx, tx, in.Reference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownReference
			}
			return err
		}
		if t.Terminal() {
			res = FinalizeResult{Reference: in.Reference, Status: t.Status, Applied: false}
			mismatch = false
			return nil
		}

		now := time.Now().UTC()
		upd := repo.FinalizeUpdate{FinalizedAt: now}
		if in.ProviderReference != "" {
			upd.ProviderReference = &in.ProviderReference
		}

		if in.Outcome == OutcomeSuccess && !in.ObservedAmount.Equal(t.Amount) {
			reason := fmt.Sprintf("amount mismatch: recorded %s, observed %s", t.Amount, in.ObservedAmount)
			upd.FailureReason = &reason
			moved, err := s.repo.FinalizeTransaction(ctx, tx, in.Reference, model.StatusFailed, upd)
			if err != nil {
				return err
			}
			if !moved {
				return repo.ErrConcurrencyConflict
			}
			res = FinalizeResult{Reference: in.Reference, Status: model.StatusFailed, Applied: true}
			mismatch = true
			s.log.Errorw("amount mismatch, transaction forced to failed",
				"reference", in.Reference, "recorded", t.Amount, "observed", in.ObservedAmount)
			return nil
		}

		status := model.StatusFailed
		if in.Outcome == OutcomeSuccess {
			status = model.StatusSuccess
		} else if in.FailureReason != "" {
			reason := in.FailureReason
			upd.FailureReason = &reason
		}

		moved, err := s.repo.FinalizeTransaction(ctx, tx, in.Reference, status, upd)
		if err != nil {
			return err
		}
		if !moved {
			// lost the race between the row lock and the CAS; the retry
			// will observe the terminal state
			return repo.ErrConcurrencyConflict
		}

		if status == model.StatusSuccess && t.Kind == model.KindDeposit {
			w, err := s.repo.GetWalletForUpdate(ctx, tx, t.WalletID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrWalletNotFound
				}
				return err
			}
			newBal := w.Balance.Add(t.Amount)
			if err := s.repo.UpdateWalletBalance(ctx, tx, w.ID, newBal, w.Version); err != nil {
				return err
			}
			evt := &model.OutboxEvent{
				Aggregate:   "Wallet",
				AggregateID: w.ID,
				EventType:   "DepositSucceeded",
				Payload: mustJSON(map[string]interface{}{
					"wallet_id": w.ID, "reference": in.Reference, "amount": t.Amount, "balance": newBal,
				}),
			}
			if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
				return err
			}
			if err := s.repo.CacheBalance(ctx, w.ID, newBal); err != nil {
				s.log.Warn(err)
			}
		}

		res = FinalizeResult{Reference: in.Reference, Status: status, Applied: true}
		mismatch = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mismatch {
		return &res, ErrAmountMismatch
	}
	return &res, nil
}
