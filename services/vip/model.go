package vip

import (
	"time"

	"github.com/shopspring/decimal"
)

type Tier struct {
	ID               string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Name             string          `gorm:"column:name;type:varchar(64);not null;uniqueIndex" json:"name"`
	MinBalance       decimal.Decimal `gorm:"column:min_balance;type:decimal(20,4);not null" json:"min_balance"`
	CommissionRate   decimal.Decimal `gorm:"column:commission_rate;type:decimal(10,6);not null" json:"commission_rate"`
	AutoApproveLimit int64           `gorm:"column:auto_approve_limit;not null;default:0" json:"auto_approve_limit"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Tier) TableName() string {
	return "vip_tiers"
}

// Select returns the tier with the highest MinBalance not above balance.
func Select(tiers []*Tier, balance decimal.Decimal) (*Tier, bool) {
	var best *Tier
	for _, t := range tiers {
		if t == nil || t.MinBalance.GreaterThan(balance) {
			continue
		}
		if best == nil || t.MinBalance.GreaterThan(best.MinBalance) {
			best = t
		}
	}
	return best, best != nil
}
