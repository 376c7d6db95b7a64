package account

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Account holds a user's funds. Balance is only written by the ledger; the
// version column guards against lost updates when a row lock is not available.
type Account struct {
	ID              string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Balance         decimal.Decimal `gorm:"column:balance;type:decimal(20,4);not null;default:0" json:"balance"`
	CompletedOrders int64           `gorm:"column:completed_orders;not null;default:0" json:"completed_orders"`
	Version         int64           `gorm:"column:version;not null;default:0" json:"-"`
	Status          Status          `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
