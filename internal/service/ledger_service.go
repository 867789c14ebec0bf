package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/securepay/wallet-ledger/internal/gateway"
	"github.com/securepay/wallet-ledger/internal/model"
	"github.com/securepay/wallet-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stable error taxonomy surfaced at the service boundary. Handlers classify
// with errors.Is; nothing below leaks raw gorm errors upward.
var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrSelfTransfer     = errors.New("cannot transfer to own wallet")
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrUnknownReference = errors.New("unknown transaction reference")
	ErrAmountMismatch   = errors.New("observed amount does not match recorded amount")
	ErrNotPending       = errors.New("transaction is not pending")
	ErrInvalidFilter    = errors.New("invalid transaction filter")
)

// Gateway is the outbound payment-gateway collaborator. Deposits are
// initiated through it; the webhook reconciler is the only thing that ever
// credits a wallet from its outcomes.
type Gateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Checkout, error)
	Verify(ctx context.Context, reference string) (*gateway.Charge, error)
}

// LedgerService owns every balance and status mutation in the system.
type LedgerService struct {
	repo           repo.RepositoryInterface
	gateway        Gateway
	minorUnitScale decimal.Decimal
	log            *zap.SugaredLogger
}

// NewLedgerService returns LedgerService. gw may be nil for binaries that
// never initiate deposits (poller, sweeper).
func NewLedgerService(r repo.RepositoryInterface, gw Gateway, minorUnitScale int64, logger *zap.SugaredLogger) *LedgerService {
	if minorUnitScale <= 0 {
		minorUnitScale = 100
	}
	return &LedgerService{
		repo:           r,
		gateway:        gw,
		minorUnitScale: decimal.NewFromInt(minorUnitScale),
		log:            logger,
	}
}

const maxConflictRetries = 3

// withRetry runs fn in a database transaction, retrying a bounded number of
// times when the optimistic guards report contention.
func (s *LedgerService) withRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = s.repo.DB(ctx).Transaction(fn)
		if !errors.Is(err, repo.ErrConcurrencyConflict) {
			return err
		}
		s.log.Warnw("ledger contention, retrying", "attempt", attempt)
	}
	return err
}

// OnboardWallet creates the user's wallet, or returns the existing one.
// Wallets are created once and never deleted.
func (s *LedgerService) OnboardWallet(ctx context.Context, userID uint64) (*model.Wallet, error) {
	db := s.repo.DB(ctx)
	if w, err := s.repo.GetWalletByUser(ctx, db, userID); err == nil {
		return w, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w := &model.Wallet{
		UserID:       userID,
		WalletNumber: model.GenerateWalletNumber(),
		Balance:      decimal.Zero,
	}
	if err := s.repo.CreateWallet(ctx, db, w); err != nil {
		return nil, err
	}
	s.log.Infow("wallet onboarded", "wallet_id", w.ID, "wallet_number", w.WalletNumber)
	return w, nil
}

// DepositIntent is the caller-facing result of initiating a deposit.
type DepositIntent struct {
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	AuthorizationURL string          `json:"authorization_url"`
}

// InitiateDeposit records a pending deposit and opens a checkout session.
// The wallet is credited later, by the webhook reconciler, never here.
func (s *LedgerService) InitiateDeposit(ctx context.Context, userID uint64, amount decimal.Decimal, email string) (*DepositIntent, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	db := s.repo.DB(ctx)
	w, err := s.repo.GetWalletByUser(ctx, db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	reference := GenerateReference()
	t := &model.Transaction{
		WalletID:    w.ID,
		Kind:        model.KindDeposit,
		Amount:      amount,
		Status:      model.StatusPending,
		Reference:   reference,
		Description: "Wallet deposit via Paystack",
	}
	if err := s.repo.CreateTransaction(ctx, db, t); err != nil {
		return nil, err
	}

	checkout, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       email,
		Reference:   reference,
		AmountMinor: amount.Mul(s.minorUnitScale).IntPart(),
	})
	if err != nil {
		reason := fmt.Sprintf("gateway initialization failed: %v", err)
		if _, ferr := s.repo.FinalizeTransaction(ctx, db, reference, model.StatusFailed, repo.FinalizeUpdate{
			FinalizedAt:   time.Now().UTC(),
			FailureReason: &reason,
		}); ferr != nil {
			s.log.Errorw("mark failed after gateway error", "reference", reference, "error", ferr)
		}
		return nil, fmt.Errorf("initialize payment: %w", err)
	}

	s.log.Infow("deposit initiated", "reference", reference, "wallet_id", w.ID, "amount", amount)
	return &DepositIntent{
		Reference:        reference,
		Amount:           amount,
		AuthorizationURL: checkout.AuthorizationURL,
	}, nil
}

// DepositStatus pairs the local row with the gateway's live view.
type DepositStatus struct {
	Reference     string                  `json:"reference"`
	LocalStatus   model.TransactionStatus `json:"local_status"`
	GatewayStatus string                  `json:"gateway_status"`
	Amount        decimal.Decimal         `json:"amount"`
	PaidAt        string                  `json:"paid_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// DepositStatus queries the gateway for the charge and reports it alongside
// the local status. A gateway "success" with a local "pending" just means
// the webhook has not landed yet; this read never credits anything.
func (s *LedgerService) DepositStatus(ctx context.Context, reference string) (*DepositStatus, error) {
	t, err := s.repo.GetTransactionByReference(ctx, s.repo.DB(ctx), reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownReference
		}
		return nil, err
	}
	charge, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("verify charge: %w", err)
	}
	return &DepositStatus{
		Reference:     reference,
		LocalStatus:   t.Status,
		GatewayStatus: charge.Status,
		Amount:        decimal.NewFromInt(charge.AmountMinor).Div(s.minorUnitScale),
		PaidAt:        charge.PaidAt,
		CreatedAt:     t.CreatedAt,
	}, nil
}

// CancelPending marks one of the caller's own pending transactions failed.
// Terminal rows are untouchable; the finalize guard makes a race with a
// late webhook resolve to exactly one winner.
func (s *LedgerService) CancelPending(ctx context.Context, userID uint64, reference string) (*model.Transaction, error) {
	db := s.repo.DB(ctx)
	w, err := s.repo.GetWalletByUser(ctx, db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	t, err := s.repo.GetTransactionByReference(ctx, db, reference)
	if err != nil || t.WalletID != w.ID {
		return nil, ErrUnknownReference
	}
	if t.Terminal() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotPending, t.Status)
	}
	res, err := s.Finalize(ctx, FinalizeInput{
		Reference:      reference,
		Outcome:        OutcomeFailed,
		ObservedAmount: t.Amount,
		FailureReason:  "cancelled by user",
	})
	if err != nil {
		return nil, err
	}
	if !res.Applied {
		return nil, fmt.Errorf("%w: status is %s", ErrNotPending, res.Status)
	}
	return s.repo.GetTransactionByReference(ctx, db, reference)
}

// GenerateReference builds a TXN-<timestamp>-<random> reference, unique
// enough for the column's uniqueness constraint to never trip in practice.
func GenerateReference() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 8)
	for i := range buf {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		buf[i] = alphabet[n.Int64()]
	}
	return fmt.Sprintf("TXN-%s-%s", time.Now().UTC().Format("20060102150405"), buf)
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Repo exposes underlying repository (unit tests helper).
func (s *LedgerService) Repo() repo.RepositoryInterface {
	return s.repo
}
