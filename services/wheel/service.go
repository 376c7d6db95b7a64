package wheel

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/pkg/repository"
	"rewardtask-controlplane/pkg/sequence"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/audit"
	"rewardtask-controlplane/services/ledger"
)

var (
	ErrNoPrizes     = errutil.UnprocessableEntity("wheel has no active prizes", nil)
	ErrInvalidPrize = errutil.BadRequest("invalid prize", nil)
	ErrInvalidSpin  = errutil.BadRequest("spin id is required", nil)
	ErrSpinTaken    = errutil.Conflict("spin id belongs to another account", nil)
)

type Ledger interface {
	ApplyEntryTx(ctx context.Context, tx *gorm.DB, p ledger.Params) (*ledger.Result, error)
	Record(ctx context.Context, entry *ledger.LedgerEntry)
}

type AccountReader interface {
	Get(ctx context.Context, id string) (*account.Account, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	ledger   Ledger
	accounts AccountReader
	codeGen  sequence.Generator
	audit    audit.Sink
	random   func() float64

	prizes repository.Repository[Prize]
	spins  repository.Repository[Spin]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Ledger   Ledger
	Accounts AccountReader
	Codes    sequence.Generator `optional:"true"`
	Audit    audit.Sink         `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		ledger:   p.Ledger,
		accounts: p.Accounts,
		codeGen:  p.Codes,
		audit:    p.Audit,
		random:   rand.Float64,

		prizes: repository.ProvideStore[Prize](p.DB),
		spins:  repository.ProvideStore[Spin](p.DB),
	}
}

func (s *Service) CreatePrize(ctx context.Context, label string, amount decimal.Decimal, probability float64) (*Prize, error) {
	label = strings.TrimSpace(label)
	if label == "" || amount.IsNegative() || !amount.Equal(amount.Round(ledger.Scale)) || probability < 0 {
		return nil, ErrInvalidPrize
	}

	now := time.Now().UTC()
	p := &Prize{
		ID:          s.node.Generate().String(),
		Label:       label,
		Amount:      amount,
		Probability: probability,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.prizes.Create(ctx, p); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to create prize", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (s *Service) SetPrizeActive(ctx context.Context, id string, active bool) error {
	prize, err := s.prizes.FindOne(ctx, &Prize{ID: id})
	if err != nil {
		return err
	}
	if prize == nil {
		return errutil.NotFound("prize not found", nil)
	}
	return s.prizes.Update(ctx, id, map[string]any{
		"active":     active,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Service) ListPrizes(ctx context.Context) ([]*Prize, error) {
	return s.prizes.Find(ctx, &Prize{}, byID)
}

// Spin turns the wheel once for accountID and credits the prize as a REWARD.
// Repeating a spinID returns the first outcome with Replayed set.
func (s *Service) Spin(ctx context.Context, accountID, spinID string) (*SpinResult, error) {
	log := zap.L().With(logger.TraceFields(ctx)...).With(
		zap.String("account_id", accountID),
		zap.String("spin_id", spinID),
	)

	if spinID == "" {
		return nil, ErrInvalidSpin
	}
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if prior, err := s.replay(ctx, accountID, spinID); prior != nil || err != nil {
		return prior, err
	}

	prizes, err := s.prizes.Find(ctx, &Prize{Active: true}, byID)
	if err != nil {
		return nil, err
	}
	prize := Draw(prizes, s.random())
	if prize == nil {
		return nil, ErrNoPrizes
	}

	spin := &Spin{
		ID:        spinID,
		Code:      s.nextCode(ctx),
		AccountID: acc.ID,
		PrizeID:   prize.ID,
		Label:     prize.Label,
		Amount:    prize.Amount,
		CreatedAt: time.Now().UTC(),
	}
	balance := acc.Balance

	var entry *ledger.LedgerEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if spin.Amount.IsPositive() {
			res, err := s.ledger.ApplyEntryTx(ctx, tx, ledger.Params{
				AccountID:      acc.ID,
				Type:           ledger.TypeReward,
				Amount:         spin.Amount,
				Description:    "wheel prize " + prize.Label,
				IdempotencyKey: "spin:" + spinID,
				ReferenceID:    spinID,
				ActorID:        acc.ID,
			})
			if err != nil {
				return err
			}
			entry = res.Entry
			spin.EntryID = res.Entry.ID
			balance = res.Balance
		}
		return s.spins.WithTrx(tx).Create(ctx, spin)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ledger.ErrDuplicateOperation) {
			// a concurrent call with the same spin id committed first
			if prior, lookupErr := s.replay(ctx, accountID, spinID); prior != nil || lookupErr != nil {
				return prior, lookupErr
			}
		}
		log.Error("failed to spin wheel", zap.Error(err))
		return nil, err
	}

	s.ledger.Record(ctx, entry)
	audit.Record(ctx, s.audit, audit.Entry{
		ActorID:   acc.ID,
		AccountID: acc.ID,
		Action:    audit.ActionWheelSpin,
		Summary:   fmt.Sprintf("spin %s won %s (%s)", spin.Code, spin.Label, spin.Amount.StringFixed(2)),
		Payload:   map[string]any{"spin_id": spin.ID, "prize_id": spin.PrizeID},
	})

	return &SpinResult{Spin: spin, Balance: balance}, nil
}

func (s *Service) replay(ctx context.Context, accountID, spinID string) (*SpinResult, error) {
	prior, err := s.spins.FindOne(ctx, &Spin{ID: spinID})
	if err != nil || prior == nil {
		return nil, err
	}
	if prior.AccountID != accountID {
		return nil, ErrSpinTaken
	}

	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &SpinResult{Spin: prior, Balance: acc.Balance, Replayed: true}, nil
}

func (s *Service) nextCode(ctx context.Context) string {
	if s.codeGen != nil {
		code, err := s.codeGen.NextSpinCode(ctx)
		if err == nil {
			return code
		}
		zap.L().With(logger.TraceFields(ctx)...).Warn("spin code sequence unavailable, falling back to id", zap.Error(err))
	}
	return sequence.PrefixSpin + "-" + s.node.Generate().Base36()
}

func byID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}
