package audit

import (
	"time"

	"gorm.io/datatypes"
)

type Action string

const (
	ActionLedgerEntry   Action = "ledger.entry"
	ActionOrderAssign   Action = "order.assign"
	ActionOrderSubmit   Action = "order.submit"
	ActionOrderComplete Action = "order.complete"
	ActionOrderReject   Action = "order.reject"
	ActionSettingUpdate Action = "setting.update"
	ActionTierUpdate    Action = "vip.update"
	ActionWheelSpin     Action = "wheel.spin"
)

// Entry is the human readable summary handed to a Sink.
type Entry struct {
	ActorID   string         `json:"actor_id,omitempty"`
	AccountID string         `json:"account_id,omitempty"`
	Action    Action         `json:"action"`
	Summary   string         `json:"summary"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}

type AuditLog struct {
	ID        string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	ActorID   string         `gorm:"column:actor_id;index"`
	AccountID string         `gorm:"column:account_id;index"`
	Action    Action         `gorm:"column:action;type:varchar(40);not null"`
	Summary   string         `gorm:"column:summary;type:text"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
