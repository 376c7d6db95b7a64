package order

import (
	"time"

	"github.com/shopspring/decimal"

	"rewardtask-controlplane/services/approval"
)

type State string

const (
	StateAssigned  State = "ASSIGNED"
	StateSubmitted State = "SUBMITTED"
	StateCompleted State = "COMPLETED"
	StateRejected  State = "REJECTED"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected
}

// Outcome is an admin's resolution of a submitted order.
type Outcome string

const (
	OutcomeComplete Outcome = "COMPLETE"
	OutcomeReject   Outcome = "REJECT"
)

func (o Outcome) Valid() bool {
	return o == OutcomeComplete || o == OutcomeReject
}

// TaskOrder is one assignment of a task to an account. AssignedPrice and
// CommissionRate are frozen at assignment; RewardAmount is fixed on completion.
type TaskOrder struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Code           string          `gorm:"column:code;type:varchar(32);uniqueIndex;not null" json:"code"`
	AccountID      string          `gorm:"column:account_id;type:varchar(32);not null;index:idx_task_orders_account" json:"account_id"`
	TaskID         string          `gorm:"column:task_id;type:varchar(32);not null" json:"task_id"`
	ProductID      string          `gorm:"column:product_id;type:varchar(32);not null" json:"product_id"`
	AssignedPrice  decimal.Decimal `gorm:"column:assigned_price;type:decimal(20,4);not null" json:"assigned_price"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:decimal(10,6);not null" json:"commission_rate"`
	RewardAmount   decimal.Decimal `gorm:"column:reward_amount;type:decimal(20,4);not null;default:0" json:"reward_amount"`
	State          State           `gorm:"column:state;type:varchar(20);not null;index" json:"state"`

	// Approval records how a submission was routed, empty until submitted.
	Approval   approval.Reason `gorm:"column:approval;type:varchar(32)" json:"approval,omitempty"`
	ResolvedBy string          `gorm:"column:resolved_by;type:varchar(64)" json:"resolved_by,omitempty"`
	Version    int64           `gorm:"column:version;not null;default:0" json:"-"`

	AssignedAt  time.Time  `gorm:"column:assigned_at;not null" json:"assigned_at"`
	SubmittedAt *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	RejectedAt  *time.Time `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (TaskOrder) TableName() string {
	return "task_orders"
}

// Reward is the commission earned on completion, at ledger precision.
func (o *TaskOrder) Reward() decimal.Decimal {
	return o.AssignedPrice.Mul(o.CommissionRate).Round(4)
}

// SubmitResult carries the order after submission and how it was routed.
type SubmitResult struct {
	Order    *TaskOrder         `json:"order"`
	Decision *approval.Decision `json:"decision"`
}
