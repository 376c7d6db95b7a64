package ledger

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewardtask-controlplane/services/account"
)

const sweepBatch = 500

type AccountLister interface {
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

type ChainVerifier interface {
	VerifyChain(ctx context.Context, accountID string) (*ChainReport, error)
}

// SweepReport summarises one pass over every account chain.
type SweepReport struct {
	Checked int            `json:"checked"`
	Broken  []*ChainReport `json:"broken,omitempty"`
	Failed  []string       `json:"failed,omitempty"`
}

type Sweeper struct {
	accounts AccountLister
	verifier ChainVerifier
	batch    int
}

type SweeperParams struct {
	fx.In
	Accounts *account.Service
	Ledger   *Service
}

func NewSweeper(p SweeperParams) *Sweeper {
	return &Sweeper{accounts: p.Accounts, verifier: p.Ledger, batch: sweepBatch}
}

// Sweep verifies the hash chain of every account. A broken chain is logged and
// collected; it does not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	after := ""
	for {
		ids, err := s.accounts.ListIDs(ctx, after, s.batch)
		if err != nil {
			return report, err
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			chain, err := s.verifier.VerifyChain(ctx, id)
			report.Checked++
			if err != nil {
				zap.L().Error("failed to verify ledger chain", zap.String("account_id", id), zap.Error(err))
				report.Failed = append(report.Failed, id)
				continue
			}
			if !chain.Valid {
				zap.L().Error("ledger chain broken",
					zap.String("account_id", id),
					zap.String("broken_at", chain.BrokenAt),
					zap.String("reason", chain.Reason),
				)
				report.Broken = append(report.Broken, chain)
			}
		}

		if len(ids) < s.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	zap.L().Info("ledger sweep finished",
		zap.Int("checked", report.Checked),
		zap.Int("broken", len(report.Broken)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}
