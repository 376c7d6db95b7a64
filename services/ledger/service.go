package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rewardtask-controlplane/pkg/db/option"
	"rewardtask-controlplane/pkg/db/pagination"
	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/pkg/repository"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/audit"
)

var (
	ErrInsufficientFunds     = errutil.UnprocessableEntity("insufficient funds", nil)
	ErrDuplicateOperation    = errutil.Conflict("operation already applied", nil)
	ErrIdempotencyConflict   = errutil.Conflict("idempotency key already used for a different operation", nil)
	ErrInvalidAmount         = errutil.BadRequest("amount must be positive with at most 4 decimal places", nil)
	ErrInvalidEntryType      = errutil.BadRequest("invalid entry type or direction", nil)
	ErrMissingIdempotencyKey = errutil.BadRequest("idempotency key is required", nil)
	ErrActorRequired         = errutil.Forbidden("admin adjustment requires an actor", nil)
	ErrEntryNotFound         = errutil.NotFound("ledger entry not found", nil)
)

// AccountStore is the balance storage the ledger writes through.
type AccountStore interface {
	Get(ctx context.Context, id string) (*account.Account, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, id string) (*account.Account, error)
	UpdateBalance(ctx context.Context, tx *gorm.DB, acc *account.Account, balance decimal.Decimal) error
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	accounts AccountStore
	audit    audit.Sink

	ledger repository.Repository[LedgerEntry]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Accounts AccountStore
	Audit    audit.Sink `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		accounts: p.Accounts,
		audit:    p.Audit,

		ledger: repository.ProvideStore[LedgerEntry](p.DB),
	}
}

// ApplyEntry applies p in its own transaction. A repeated idempotency key returns
// the original result together with ErrDuplicateOperation, which callers treat
// as success.
func (s *Service) ApplyEntry(ctx context.Context, p Params) (*Result, error) {
	opts := append(logger.TraceFields(ctx),
		zap.String("account_id", p.AccountID),
		zap.String("idempotency_key", p.IdempotencyKey),
	)

	var res *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.ApplyEntryTx(ctx, tx, p)
		res = r
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateOperation) {
			if res == nil {
				// lost the insert race, the winner has committed by now
				prior, lookupErr := s.ledger.FindOne(ctx, &LedgerEntry{IdempotencyKey: p.IdempotencyKey})
				if lookupErr != nil {
					zap.L().With(opts...).Error("failed to load replayed entry", zap.Error(lookupErr))
					return nil, lookupErr
				}
				if prior == nil {
					return nil, err
				}
				if !prior.sameOperation(p) {
					zap.L().With(opts...).Warn("idempotency key reused for a different operation", zap.String("prior_account_id", prior.AccountID))
					return nil, ErrIdempotencyConflict
				}
				res = replayOf(prior)
			}
			zap.L().With(opts...).Info("idempotency key already applied", zap.String("entry_id", res.Entry.ID))
			return res, err
		}

		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, account.ErrAccountNotFound) {
			zap.L().With(opts...).Warn("ledger entry rejected", zap.Error(err))
		} else {
			zap.L().With(opts...).Error("failed to apply ledger entry", zap.Error(err))
		}
		return nil, err
	}

	s.Record(ctx, res.Entry)
	return res, nil
}

// ApplyEntryTx applies p inside tx. The account row stays locked until tx ends.
// Nothing is audited here, the owner of tx does that after commit.
func (s *Service) ApplyEntryTx(ctx context.Context, tx *gorm.DB, p Params) (*Result, error) {
	direction, err := p.validate()
	if err != nil {
		return nil, err
	}

	ledgerTx := s.ledger.WithTrx(tx)

	prior, err := ledgerTx.FindOne(ctx, &LedgerEntry{IdempotencyKey: p.IdempotencyKey})
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if !prior.sameOperation(p) {
			zap.L().Warn("idempotency key reused for a different operation",
				zap.String("idempotency_key", p.IdempotencyKey),
				zap.String("account_id", p.AccountID),
				zap.String("prior_account_id", prior.AccountID),
			)
			return nil, ErrIdempotencyConflict
		}
		return replayOf(prior), ErrDuplicateOperation
	}

	acc, err := s.accounts.GetForUpdate(ctx, tx, p.AccountID)
	if err != nil {
		return nil, err
	}

	before := acc.Balance
	after := before.Add(direction.Signed(p.Amount))
	if after.IsNegative() {
		return nil, ErrInsufficientFunds
	}

	last, err := ledgerTx.FindOne(ctx, &LedgerEntry{AccountID: acc.ID}, newestFirst)
	if err != nil {
		return nil, err
	}
	previousHash := GenesisHash
	if last != nil {
		previousHash = last.Hash
	}

	var metadata datatypes.JSON
	if len(p.Metadata) > 0 {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = datatypes.JSON(b)
	}

	entry := &LedgerEntry{
		ID:             s.node.Generate().String(),
		AccountID:      acc.ID,
		Type:           p.Type,
		Direction:      direction,
		Amount:         p.Amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Description:    p.Description,
		IdempotencyKey: p.IdempotencyKey,
		ReferenceID:    p.ReferenceID,
		ActorID:        p.ActorID,
		PreviousHash:   previousHash,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	entry.Hash = entry.GenerateHash()

	if err := ledgerTx.Create(ctx, entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Wrap(ErrDuplicateOperation, err)
		}
		return nil, err
	}

	if err := s.accounts.UpdateBalance(ctx, tx, acc, after); err != nil {
		return nil, err
	}

	return &Result{Entry: entry, Balance: after}, nil
}

// Record hands a summary of entry to the audit sink. Failures are logged only.
func (s *Service) Record(ctx context.Context, entry *LedgerEntry) {
	if entry == nil {
		return
	}
	audit.Record(ctx, s.audit, audit.Entry{
		ActorID:   entry.ActorID,
		AccountID: entry.AccountID,
		Action:    audit.ActionLedgerEntry,
		Summary: fmt.Sprintf("%s %s %s (%s -> %s)",
			entry.Type, entry.Direction, entry.Amount.StringFixed(2),
			entry.BalanceBefore.StringFixed(2), entry.BalanceAfter.StringFixed(2)),
		Payload: map[string]any{
			"entry_id":        entry.ID,
			"idempotency_key": entry.IdempotencyKey,
			"reference_id":    entry.ReferenceID,
			"description":     entry.Description,
		},
	})
}

func (s *Service) Deposit(ctx context.Context, m Movement) (*Result, error) {
	return s.ApplyEntry(ctx, m.params(TypeDeposit, ""))
}

func (s *Service) Withdraw(ctx context.Context, m Movement) (*Result, error) {
	return s.ApplyEntry(ctx, m.params(TypeWithdrawal, ""))
}

// Adjust applies an ADMIN_ADJUSTMENT in m.Direction on behalf of m.ActorID.
func (s *Service) Adjust(ctx context.Context, m Movement) (*Result, error) {
	if m.ActorID == "" {
		return nil, ErrActorRequired
	}
	return s.ApplyEntry(ctx, m.params(TypeAdminAdjustment, m.Direction))
}

func (s *Service) GetEntry(ctx context.Context, id string) (*LedgerEntry, error) {
	entry, err := s.ledger.FindOne(ctx, &LedgerEntry{ID: id})
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to FindOne entry", zap.Error(err))
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// ListEntries pages through the entries of an account, newest first.
func (s *Service) ListEntries(ctx context.Context, accountID string, page pagination.Pagination) ([]*LedgerEntry, *pagination.PageInfo, error) {
	page = page.Normalize()

	cursor, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
		option.WithLimit(page.Limit + 1),
	}
	if cursor.ID != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "id",
			Operator: option.LT,
			Value:    cursor.ID,
		}))
	}

	entries, err := s.ledger.Find(ctx, &LedgerEntry{AccountID: accountID}, opts...)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to query list entries", zap.Error(err))
		return nil, nil, err
	}

	return pagination.BuildCursorPage(entries, page.Limit, func(e *LedgerEntry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID}
	})
}

// VerifyChain walks the entries of an account oldest first and checks the hash
// links, the before/after arithmetic and that the last snapshot matches the
// stored balance. The account row is locked while the entries are read, so no
// entry can land between the two reads.
func (s *Service) VerifyChain(ctx context.Context, accountID string) (*ChainReport, error) {
	var report *ChainReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		entries, err := s.ledger.WithTrx(tx).Find(ctx, &LedgerEntry{AccountID: accountID}, oldestFirst)
		if err != nil {
			zap.L().With(logger.TraceFields(ctx)...).Error("failed to query Find entries", zap.Error(err))
			return err
		}

		report = walkChain(acc, entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func walkChain(acc *account.Account, entries []*LedgerEntry) *ChainReport {
	report := &ChainReport{AccountID: acc.ID, Entries: len(entries)}
	broken := func(entry *LedgerEntry, reason string) *ChainReport {
		report.BrokenAt = entry.ID
		report.Reason = reason
		return report
	}

	lastHash := GenesisHash
	balance := decimal.Zero
	for _, entry := range entries {
		if entry.PreviousHash != lastHash {
			return broken(entry, "previous hash mismatch")
		}
		if entry.Hash != entry.GenerateHash() {
			return broken(entry, "hash mismatch")
		}
		if !entry.BalanceBefore.Equal(balance) {
			return broken(entry, "balance before does not follow previous entry")
		}
		if !entry.BalanceAfter.Equal(entry.BalanceBefore.Add(entry.Direction.Signed(entry.Amount))) {
			return broken(entry, "balance after does not match amount")
		}
		lastHash = entry.Hash
		balance = entry.BalanceAfter
	}

	if !acc.Balance.Equal(balance) {
		report.Reason = "account balance does not match ledger"
		return report
	}

	report.Valid = true
	return report
}

func (p Params) validate() (Direction, error) {
	if p.IdempotencyKey == "" {
		return "", ErrMissingIdempotencyKey
	}
	if !p.Amount.IsPositive() || !p.Amount.Equal(p.Amount.Round(Scale)) {
		return "", ErrInvalidAmount
	}
	if p.AccountID == "" {
		return "", account.ErrAccountNotFound
	}

	if p.Type == TypeAdminAdjustment {
		if !p.Direction.Valid() {
			return "", ErrInvalidEntryType
		}
		return p.Direction, nil
	}

	direction, ok := p.Type.Direction()
	if !ok || (p.Direction != "" && p.Direction != direction) {
		return "", ErrInvalidEntryType
	}
	return direction, nil
}

func (m Movement) params(t EntryType, d Direction) Params {
	description := m.Description
	if description == "" {
		description = string(t)
	}
	return Params{
		AccountID:      m.AccountID,
		Type:           t,
		Direction:      d,
		Amount:         m.Amount,
		Description:    description,
		IdempotencyKey: m.IdempotencyKey,
		ActorID:        m.ActorID,
	}
}

// sameOperation reports whether p repeats the operation that produced e.
func (e *LedgerEntry) sameOperation(p Params) bool {
	if e.AccountID != p.AccountID || e.Type != p.Type || !e.Amount.Equal(p.Amount) {
		return false
	}
	return p.Direction == "" || e.Direction == p.Direction
}

func replayOf(entry *LedgerEntry) *Result {
	return &Result{Entry: entry, Balance: entry.BalanceAfter, Replayed: true}
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

func oldestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}
