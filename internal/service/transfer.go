package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/securepay/wallet-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransferResult reports a completed two-sided movement.
type TransferResult struct {
	Reference             string                  `json:"reference"`
	Amount                decimal.Decimal         `json:"amount"`
	RecipientWalletNumber string                  `json:"recipient_wallet_number"`
	Status                model.TransactionStatus `json:"status"`
	SourceBalance         decimal.Decimal         `json:"source_balance"`
	DestinationBalance    decimal.Decimal         `json:"destination_balance"`
}

// Transfer atomically moves amount from the caller's wallet to the wallet
// quoted by number. The sufficient-funds check, both balance writes and
// both transaction rows share one database transaction, so a concurrent
// transfer can never observe a half-applied movement and the source balance
// can never go negative. Wallets are locked in ascending ID order so two
// opposing transfers between the same pair cannot deadlock.
//
// Transfers are synchronous: both rows are created pending and finalized to
// success through the same transition guard deposits use, inside the same
// atomic boundary. On InsufficientFunds nothing is persisted.
func (s *LedgerService) Transfer(ctx context.Context, fromUserID uint64, toWalletNumber string, amount decimal.Decimal, description string) (*TransferResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = "Wallet transfer"
	}

	var result TransferResult
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		src, err := s.repo.GetWalletByUser(ctx, tx, fromUserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		dst, err := s.repo.GetWalletByNumber(ctx, tx, toWalletNumber)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		if src.ID == dst.ID {
			return ErrSelfTransfer
		}

		// canonical lock order, then re-read both under the lock
		firstID, secondID := src.ID, dst.ID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		w1, err := s.repo.GetWalletForUpdate(ctx, tx, firstID)
		if err != nil {
			return err
		}
		w2, err := s.repo.GetWalletForUpdate(ctx, tx, secondID)
		if err != nil {
			return err
		}
		wSrc, wDst := w1, w2
		if firstID != src.ID {
			wSrc, wDst = w2, w1
		}

		if wSrc.Balance.LessThan(amount) {
			return repo.ErrInsufficientFunds
		}

		correlation := "TRF-" + uuid.NewString()
		counterOut := wDst.ID
		counterIn := wSrc.ID
		txOut := &model.Transaction{
			WalletID:             wSrc.ID,
			Kind:                 model.KindTransferOut,
			Amount:               amount,
			Status:               model.StatusPending,
			Reference:            correlation + "-OUT",
			Description:          description,
			CounterpartyWalletID: &counterOut,
		}
		txIn := &model.Transaction{
			WalletID:             wDst.ID,
			Kind:                 model.KindTransferIn,
			Amount:               amount,
			Status:               model.StatusPending,
			Reference:            correlation + "-IN",
			Description:          description,
			CounterpartyWalletID: &counterIn,
		}
		if err := s.repo.CreateTransaction(ctx, tx, txOut); err != nil {
			return err
		}
		if err := s.repo.CreateTransaction(ctx, tx, txIn); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, ref := range []string{txOut.Reference, txIn.Reference} {
			moved, err := s.repo.FinalizeTransaction(ctx, tx, ref, model.StatusSuccess, repo.FinalizeUpdate{FinalizedAt: now})
			if err != nil {
				return err
			}
			if !moved {
				return repo.ErrConcurrencyConflict
			}
		}

		newSrc := wSrc.Balance.Sub(amount)
		newDst := wDst.Balance.Add(amount)
		if err := s.repo.UpdateWalletBalance(ctx, tx, wSrc.ID, newSrc, wSrc.Version); err != nil {
			return err
		}
		if err := s.repo.UpdateWalletBalance(ctx, tx, wDst.ID, newDst, wDst.Version); err != nil {
			return err
		}

		evt := &model.OutboxEvent{
			Aggregate:   "Wallet",
			AggregateID: wSrc.ID,
			EventType:   "TransferCompleted",
			Payload: mustJSON(map[string]interface{}{
				"reference": correlation, "from": wSrc.ID, "to": wDst.ID, "amount": amount,
			}),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, wSrc.ID, newSrc); err != nil {
			s.log.Warn(err)
		}
		if err := s.repo.CacheBalance(ctx, wDst.ID, newDst); err != nil {
			s.log.Warn(err)
		}

		result = TransferResult{
			Reference:             correlation,
			Amount:                amount,
			RecipientWalletNumber: wDst.WalletNumber,
			Status:                model.StatusSuccess,
			SourceBalance:         newSrc,
			DestinationBalance:    newDst,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("transfer completed", "reference", result.Reference, "amount", amount)
	return &result, nil
}
