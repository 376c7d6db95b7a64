package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Name      string          `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Slug      string          `gorm:"column:slug;type:varchar(255);not null;index" json:"slug"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(20,4);not null" json:"price"`
	Stock     int64           `gorm:"column:stock;not null;default:0" json:"stock"`
	Active    bool            `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

type Task struct {
	ID        string `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	ProductID string `gorm:"column:product_id;type:varchar(32);not null;index" json:"product_id"`
	Title     string `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Active    bool   `gorm:"column:active;not null;default:true" json:"active"`

	// CommissionRate overrides the rate of the account's vip tier when set.
	CommissionRate decimal.NullDecimal `gorm:"column:commission_rate;type:decimal(10,6)" json:"commission_rate"`

	// Eligibility is an optional CEL expression over balance, completed_orders,
	// tier and price. The task is only offered when it evaluates to true.
	Eligibility string `gorm:"column:eligibility;type:text" json:"eligibility,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}

type TaskInput struct {
	ProductID      string              `json:"product_id" binding:"required"`
	Title          string              `json:"title" binding:"required"`
	CommissionRate decimal.NullDecimal `json:"commission_rate"`
	Eligibility    string              `json:"eligibility"`
}

// Quote holds the values an order is assigned with.
type Quote struct {
	TaskID         string          `json:"task_id"`
	ProductID      string          `json:"product_id"`
	Price          decimal.Decimal `json:"price"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}
