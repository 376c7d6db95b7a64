package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	GenesisHash = "GENESIS"
	// Scale is the number of decimal places amounts are stored with.
	Scale = 4
)

type EntryType string

const (
	TypeCredit          EntryType = "CREDIT"
	TypeDebit           EntryType = "DEBIT"
	TypeReward          EntryType = "REWARD"
	TypeCommission      EntryType = "COMMISSION"
	TypeAdminAdjustment EntryType = "ADMIN_ADJUSTMENT"
	TypeDeposit         EntryType = "DEPOSIT"
	TypeWithdrawal      EntryType = "WITHDRAWAL"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Direction returns the fixed direction of t. ADMIN_ADJUSTMENT has none and
// reports false, as does an unknown type.
func (t EntryType) Direction() (Direction, bool) {
	switch t {
	case TypeCredit, TypeReward, TypeCommission, TypeDeposit:
		return DirectionCredit, true
	case TypeDebit, TypeWithdrawal:
		return DirectionDebit, true
	default:
		return "", false
	}
}

func (t EntryType) Valid() bool {
	if t == TypeAdminAdjustment {
		return true
	}
	_, ok := t.Direction()
	return ok
}

func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// Signed returns amount with the sign implied by d.
func (d Direction) Signed(amount decimal.Decimal) decimal.Decimal {
	if d == DirectionDebit {
		return amount.Neg()
	}
	return amount
}

type LedgerEntry struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	AccountID      string          `gorm:"column:account_id;type:varchar(32);not null;index:idx_ledger_account_created,priority:1" json:"account_id"`
	Type           EntryType       `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Direction      Direction       `gorm:"column:direction;type:varchar(8);not null" json:"direction"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(20,4);not null" json:"amount"`
	BalanceBefore  decimal.Decimal `gorm:"column:balance_before;type:decimal(20,4);not null" json:"balance_before"`
	BalanceAfter   decimal.Decimal `gorm:"column:balance_after;type:decimal(20,4);not null" json:"balance_after"`
	Description    string          `gorm:"column:description;type:text" json:"description"`
	IdempotencyKey string          `gorm:"column:idempotency_key;type:varchar(128);not null;uniqueIndex" json:"idempotency_key"`
	ReferenceID    string          `gorm:"column:reference_id;type:varchar(64);index" json:"reference_id,omitempty"`
	ActorID        string          `gorm:"column:actor_id;type:varchar(64)" json:"actor_id,omitempty"`
	PreviousHash   string          `gorm:"column:previous_hash;type:varchar(64)" json:"previous_hash"`
	Hash           string          `gorm:"column:hash;type:varchar(64)" json:"hash"`
	Metadata       datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;index:idx_ledger_account_created,priority:2" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":              m.ID,
		"account_id":      m.AccountID,
		"type":            string(m.Type),
		"direction":       string(m.Direction),
		"amount":          m.Amount.StringFixed(4),
		"balance_before":  m.BalanceBefore.StringFixed(4),
		"balance_after":   m.BalanceAfter.StringFixed(4),
		"idempotency_key": m.IdempotencyKey,
		"reference_id":    m.ReferenceID,
		"actor_id":        m.ActorID,
		"description":     m.Description,
		"created_at":      m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":   m.PreviousHash,
	}
}

func (m *LedgerEntry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Params describes one balance change. Amount is always positive, the type
// (or Direction for ADMIN_ADJUSTMENT) decides whether it is added or subtracted.
type Params struct {
	AccountID      string
	Type           EntryType
	Direction      Direction
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
	ReferenceID    string
	ActorID        string
	Metadata       map[string]any
}

type Result struct {
	Entry   *LedgerEntry    `json:"entry"`
	Balance decimal.Decimal `json:"balance"`
	// Replayed is set when the idempotency key was already applied and Entry is
	// the original record.
	Replayed bool `json:"replayed"`
}

type ChainReport struct {
	AccountID string `json:"account_id"`
	Valid     bool   `json:"valid"`
	Entries   int    `json:"entries"`
	BrokenAt  string `json:"broken_at,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Movement is the input of the Deposit, Withdraw and Adjust helpers.
type Movement struct {
	AccountID      string
	Amount         decimal.Decimal
	Direction      Direction
	Description    string
	IdempotencyKey string
	ActorID        string
}
