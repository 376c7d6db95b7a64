package wheel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Prize struct {
	ID     string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Label  string          `gorm:"column:label;type:varchar(128);not null" json:"label"`
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(20,4);not null" json:"amount"`

	// Probability is a relative weight; weights do not have to add up to 1.
	Probability float64   `gorm:"column:probability;not null" json:"probability"`
	Active      bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Prize) TableName() string {
	return "wheel_prizes"
}

// Spin is the outcome of one turn of the wheel. The caller chosen ID makes
// retries return the first outcome.
type Spin struct {
	ID        string          `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Code      string          `gorm:"column:code;type:varchar(32);uniqueIndex;not null" json:"code"`
	AccountID string          `gorm:"column:account_id;type:varchar(32);not null;index" json:"account_id"`
	PrizeID   string          `gorm:"column:prize_id;type:varchar(32);not null" json:"prize_id"`
	Label     string          `gorm:"column:label;type:varchar(128);not null" json:"label"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(20,4);not null" json:"amount"`
	EntryID   string          `gorm:"column:entry_id;type:varchar(32)" json:"entry_id,omitempty"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Spin) TableName() string {
	return "wheel_spins"
}

type SpinResult struct {
	Spin     *Spin           `json:"spin"`
	Balance  decimal.Decimal `json:"balance"`
	Replayed bool            `json:"replayed"`
}
