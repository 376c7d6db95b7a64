package vip

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/pkg/repository"
	"rewardtask-controlplane/services/audit"
)

var ErrInvalidTier = errutil.BadRequest("invalid vip tier", nil)

var decimalOne = decimal.NewFromInt(1)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	audit audit.Sink

	tiers repository.Repository[Tier]
	group singleflight.Group
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Audit audit.Sink `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		audit: p.Audit,
		tiers: repository.ProvideStore[Tier](p.DB),
	}
}

// List loads all tiers ordered by MinBalance. Concurrent callers share one query,
// nothing is cached between calls. The shared query outlives a cancelled caller,
// each caller still stops waiting on its own ctx.
func (s *Service) List(ctx context.Context) ([]*Tier, error) {
	ch := s.group.DoChan("tiers", func() (any, error) {
		tiers, err := s.tiers.Find(context.WithoutCancel(ctx), &Tier{})
		if err != nil {
			return nil, err
		}
		sort.SliceStable(tiers, func(i, j int) bool {
			return tiers[i].MinBalance.LessThan(tiers[j].MinBalance)
		})
		return tiers, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			zap.L().With(logger.TraceFields(ctx)...).Error("failed to list vip tiers", zap.Error(res.Err))
			return nil, res.Err
		}
		return res.Val.([]*Tier), nil
	}
}

// Upsert creates or updates tiers matched by name.
func (s *Service) Upsert(ctx context.Context, actorID string, tiers []*Tier) error {
	if len(tiers) == 0 {
		return errutil.Wrap(ErrInvalidTier, errutil.BadRequest("no tiers given", nil))
	}

	existing, err := s.tiers.Find(ctx, &Tier{})
	if err != nil {
		return err
	}
	ids := make(map[string]string, len(existing))
	for _, t := range existing {
		ids[t.Name] = t.ID
	}

	now := time.Now().UTC()
	for _, t := range tiers {
		if err := validate(t); err != nil {
			return err
		}
		t.Name = strings.TrimSpace(t.Name)
		if id, ok := ids[t.Name]; ok {
			t.ID = id
		} else if t.ID == "" {
			t.ID = s.node.Generate().String()
		}
		t.CreatedAt = now
		t.UpdatedAt = now
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"min_balance", "commission_rate", "auto_approve_limit", "updated_at"}),
	}).Create(&tiers).Error
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to upsert vip tiers", zap.Error(err))
		return err
	}

	names := make([]string, 0, len(tiers))
	for _, t := range tiers {
		names = append(names, t.Name)
	}
	audit.Record(ctx, s.audit, audit.Entry{
		ActorID: actorID,
		Action:  audit.ActionTierUpdate,
		Summary: "vip tiers updated: " + strings.Join(names, ", "),
	})
	return nil
}

func validate(t *Tier) error {
	switch {
	case t == nil, strings.TrimSpace(t.Name) == "":
		return errutil.Wrap(ErrInvalidTier, errutil.BadRequest("name is required", nil))
	case t.MinBalance.IsNegative():
		return errutil.Wrap(ErrInvalidTier, errutil.BadRequest("min_balance must not be negative", nil))
	case t.CommissionRate.IsNegative(), t.CommissionRate.GreaterThan(decimalOne):
		return errutil.Wrap(ErrInvalidTier, errutil.BadRequest("commission_rate must be within [0, 1]", nil))
	case t.AutoApproveLimit < 0:
		return errutil.Wrap(ErrInvalidTier, errutil.BadRequest("auto_approve_limit must not be negative", nil))
	}
	return nil
}
