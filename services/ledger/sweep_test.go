package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type listerMock struct {
	ids   []string
	calls int
}

func (m *listerMock) ListIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	m.calls++
	var out []string
	for _, id := range m.ids {
		if id > afterID && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

type verifierFunc func(ctx context.Context, accountID string) (*ChainReport, error)

func (f verifierFunc) VerifyChain(ctx context.Context, accountID string) (*ChainReport, error) {
	return f(ctx, accountID)
}

func TestSweepPagesThroughAccounts(t *testing.T) {
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, fmt.Sprintf("acc-%d", i))
	}
	lister := &listerMock{ids: ids}

	s := &Sweeper{
		accounts: lister,
		batch:    2,
		verifier: verifierFunc(func(_ context.Context, id string) (*ChainReport, error) {
			switch id {
			case "acc-1":
				return &ChainReport{AccountID: id, Valid: false, BrokenAt: "e-9", Reason: "hash mismatch"}, nil
			case "acc-3":
				return nil, errors.New("db down")
			}
			return &ChainReport{AccountID: id, Valid: true}, nil
		}),
	}

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, report.Checked)
	require.Len(t, report.Broken, 1)
	require.Equal(t, "acc-1", report.Broken[0].AccountID)
	require.Equal(t, []string{"acc-3"}, report.Failed)
	require.Equal(t, 3, lister.calls)
}

func TestSweepRealChains(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100)
	f.register(t, 40)

	s := NewSweeper(SweeperParams{Accounts: f.accounts, Ledger: f.svc})
	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Checked)
	require.Empty(t, report.Broken)
	require.Empty(t, report.Failed)
}

func TestSweepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Sweeper{
		accounts: &listerMock{ids: []string{"a", "b"}},
		batch:    10,
		verifier: verifierFunc(func(context.Context, string) (*ChainReport, error) {
			return &ChainReport{Valid: true}, nil
		}),
	}
	report, err := s.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, report.Checked)
}
