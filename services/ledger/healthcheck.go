package ledger

import (
	"context"

	"rewardtask-controlplane/pkg/errutil"
)

// Check reports whether the ledger database answers. Used by the readiness probe.
func (s *Service) Check(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errutil.Internal("db not ready", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errutil.New(errutil.StatusServiceUnavailable, "db not serving", errutil.WithErr(err))
	}
	return nil
}
