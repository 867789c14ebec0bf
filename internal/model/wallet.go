package model

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a single-currency custodial balance owned by exactly one user.
// Balance is only ever written through the ledger's atomic operations;
// Version backs the optimistic lock on every balance update.
type Wallet struct {
	ID           uint64          `gorm:"primaryKey" json:"id"`
	UserID       uint64          `gorm:"uniqueIndex;not null" json:"user_id"`
	WalletNumber string          `gorm:"size:10;uniqueIndex;not null" json:"wallet_number"`
	Balance      decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'" json:"balance"`
	Version      uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallet" }

// GenerateWalletNumber returns a random 10-digit wallet number.
// Uniqueness is enforced by the column index, not here.
func GenerateWalletNumber() string {
	const digits = "0123456789"
	buf := make([]byte, 10)
	for i := range buf {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		buf[i] = digits[n.Int64()]
	}
	return string(buf)
}
