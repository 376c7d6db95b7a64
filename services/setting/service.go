package setting

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/logger"
	"rewardtask-controlplane/pkg/repository"
	"rewardtask-controlplane/services/audit"
)

var ErrInvalidValue = errutil.BadRequest("invalid setting value", nil)

type ApprovalConfigProvider interface {
	ApprovalConfig(ctx context.Context) (ApprovalConfig, error)
}

type Service struct {
	db    *gorm.DB
	audit audit.Sink

	settings repository.Repository[Setting]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Audit audit.Sink `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		audit:    p.Audit,
		settings: repository.ProvideStore[Setting](p.DB),
	}
}

// Get returns the stored value and whether the key exists.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	row, err := s.settings.FindOne(ctx, &Setting{Key: key})
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to read setting", zap.String("key", key), zap.Error(err))
		return "", false, err
	}
	if row == nil {
		return "", false, nil
	}
	return row.Value, true, nil
}

// Set stores value under key. An empty value removes the key.
func (s *Service) Set(ctx context.Context, actorID, key, value string) error {
	value = strings.TrimSpace(value)
	if err := validate(key, value); err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	var err error
	if value == "" {
		err = db.Where(&Setting{Key: key}).Delete(&Setting{}).Error
	} else {
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
		}).Create(&Setting{
			Key:       key,
			Value:     value,
			UpdatedBy: actorID,
			UpdatedAt: time.Now().UTC(),
		}).Error
	}
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to write setting", zap.String("key", key), zap.Error(err))
		return err
	}

	audit.Record(ctx, s.audit, audit.Entry{
		ActorID: actorID,
		Action:  audit.ActionSettingUpdate,
		Summary: key + " = " + value,
		Payload: map[string]any{"key": key, "value": value},
	})
	return nil
}

// ApprovalConfig reads the approval keys from the settings table.
func (s *Service) ApprovalConfig(ctx context.Context) (ApprovalConfig, error) {
	var cfg ApprovalConfig

	rows, err := s.settings.Find(ctx, &Setting{}, func(db *gorm.DB) *gorm.DB {
		return db.Where(map[string]any{"setting_key": []string{KeyAutoApproveAll, KeyPriceThreshold}})
	})
	if err != nil {
		return cfg, err
	}

	for _, row := range rows {
		switch row.Key {
		case KeyAutoApproveAll:
			cfg.AutoApproveAll, _ = strconv.ParseBool(row.Value)
		case KeyPriceThreshold:
			d, err := decimal.NewFromString(row.Value)
			if err != nil {
				zap.L().Warn("ignoring malformed price threshold", zap.String("value", row.Value))
				continue
			}
			cfg.PriceThreshold = decimal.NewNullDecimal(d)
		}
	}

	return cfg, nil
}

func validate(key, value string) error {
	if key == "" {
		return errutil.Wrap(ErrInvalidValue, errutil.BadRequest("key is required", nil))
	}
	if value == "" {
		return nil
	}

	switch key {
	case KeyAutoApproveAll:
		if _, err := strconv.ParseBool(value); err != nil {
			return errutil.Wrap(ErrInvalidValue, err)
		}
	case KeyPriceThreshold:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return errutil.Wrap(ErrInvalidValue, err)
		}
		if d.IsNegative() {
			return errutil.Wrap(ErrInvalidValue, errutil.BadRequest("threshold must not be negative", nil))
		}
	}
	return nil
}
