package setting

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	KeyAutoApproveAll = "approval.auto_approve_all"
	KeyPriceThreshold = "approval.price_threshold"

	FlagAutoApproveAll       = "auto_approve_all"
	FlagAutoApproveThreshold = "auto_approve_threshold"
)

type Setting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;type:varchar(128)" json:"key"`
	Value     string    `gorm:"column:value;type:text" json:"value"`
	UpdatedBy string    `gorm:"column:updated_by;type:varchar(64)" json:"updated_by,omitempty"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// ApprovalConfig is read fresh on every policy evaluation. An invalid
// PriceThreshold means no threshold is configured.
type ApprovalConfig struct {
	AutoApproveAll bool
	PriceThreshold decimal.NullDecimal
}
