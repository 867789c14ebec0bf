package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindDeposit     TransactionKind = "deposit"
	KindTransferOut TransactionKind = "transfer_out"
	KindTransferIn  TransactionKind = "transfer_in"
)

// ValidKind reports whether s names one of the three transaction kinds.
func ValidKind(s string) bool {
	switch TransactionKind(s) {
	case KindDeposit, KindTransferOut, KindTransferIn:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
)

// ValidStatus reports whether s names a known transaction status.
func ValidStatus(s string) bool {
	switch TransactionStatus(s) {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Transaction is a uniquely-referenced monetary event against a wallet.
// Reference is the idempotency key for the whole system: it is immutable,
// globally unique and the only handle a webhook may use to finalize.
type Transaction struct {
	ID                   uint64            `gorm:"primaryKey" json:"id"`
	WalletID             uint64            `gorm:"index;not null" json:"wallet_id"`
	Kind                 TransactionKind   `gorm:"size:32;not null;index" json:"kind"`
	Amount               decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	Status               TransactionStatus `gorm:"size:16;not null;index" json:"status"`
	Reference            string            `gorm:"size:64;uniqueIndex;not null" json:"reference"`
	Description          string            `gorm:"type:text" json:"description,omitempty"`
	CounterpartyWalletID *uint64           `json:"counterparty_wallet_id,omitempty"`
	ProviderReference    *string           `gorm:"size:64" json:"provider_reference,omitempty"`
	FailureReason        *string           `gorm:"size:255" json:"failure_reason,omitempty"`
	CreatedAt            time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	FinalizedAt          *time.Time        `json:"finalized_at,omitempty"`
}

func (Transaction) TableName() string { return "transaction" }

// Terminal reports whether the transaction has left pending. Terminal rows
// never transition again; later finalize attempts are idempotent no-ops.
func (t *Transaction) Terminal() bool { return t.Status != StatusPending }
