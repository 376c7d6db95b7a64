package wheel

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/db/pagination"
	"rewardtask-controlplane/pkg/sequence/mock"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/ledger"
	"rewardtask-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc      *Service
	ledger   *ledger.Service
	accounts *account.Service
}

func newFixture(t *testing.T, r float64) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &account.Account{}, &ledger.LedgerEntry{}, &Prize{}, &Spin{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	codes := mock.NewMockGenerator(ctrl)
	codes.EXPECT().NextSpinCode(gomock.Any()).Return("SPN-261017-1000QQ", nil).AnyTimes()

	accounts := account.NewService(account.ServiceParams{DB: db, Node: node})
	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Accounts: accounts})
	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Ledger:   ledgerSvc,
		Accounts: accounts,
		Codes:    codes,
	})
	svc.random = func() float64 { return r }

	return &fixture{svc: svc, ledger: ledgerSvc, accounts: accounts}
}

func TestSpinCreditsPrize(t *testing.T) {
	f := newFixture(t, 0.9)
	ctx := context.Background()

	_, err := f.svc.CreatePrize(ctx, "Nothing", decimal.Zero, 1)
	require.NoError(t, err)
	big, err := f.svc.CreatePrize(ctx, "Jackpot", decimal.NewFromInt(50), 1)
	require.NoError(t, err)

	acc, err := f.accounts.Register(ctx)
	require.NoError(t, err)

	res, err := f.svc.Spin(ctx, acc.ID, "spin-1")
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Equal(t, big.ID, res.Spin.PrizeID)
	require.Equal(t, "SPN-261017-1000QQ", res.Spin.Code)
	require.True(t, res.Balance.Equal(decimal.NewFromInt(50)))

	entries, _, err := f.ledger.ListEntries(ctx, acc.ID, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.TypeReward, entries[0].Type)
	require.Equal(t, "spin:spin-1", entries[0].IdempotencyKey)
	require.Equal(t, entries[0].ID, res.Spin.EntryID)
}

func TestSpinReplay(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.CreatePrize(ctx, "Ten", decimal.NewFromInt(10), 1)
	require.NoError(t, err)
	acc, err := f.accounts.Register(ctx)
	require.NoError(t, err)

	first, err := f.svc.Spin(ctx, acc.ID, "spin-1")
	require.NoError(t, err)

	again, err := f.svc.Spin(ctx, acc.ID, "spin-1")
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, first.Spin.PrizeID, again.Spin.PrizeID)
	require.True(t, again.Balance.Equal(decimal.NewFromInt(10)))

	other, err := f.accounts.Register(ctx)
	require.NoError(t, err)
	_, err = f.svc.Spin(ctx, other.ID, "spin-1")
	require.ErrorIs(t, err, ErrSpinTaken)
}

func TestSpinZeroPrizeMovesNoFunds(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.CreatePrize(ctx, "Try again", decimal.Zero, 1)
	require.NoError(t, err)
	acc, err := f.accounts.Register(ctx)
	require.NoError(t, err)

	res, err := f.svc.Spin(ctx, acc.ID, "spin-1")
	require.NoError(t, err)
	require.Empty(t, res.Spin.EntryID)
	require.True(t, res.Balance.IsZero())
}

func TestSpinErrors(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	acc, err := f.accounts.Register(ctx)
	require.NoError(t, err)

	_, err = f.svc.Spin(ctx, acc.ID, "")
	require.ErrorIs(t, err, ErrInvalidSpin)

	_, err = f.svc.Spin(ctx, "missing", "spin-1")
	require.ErrorIs(t, err, account.ErrAccountNotFound)

	_, err = f.svc.Spin(ctx, acc.ID, "spin-1")
	require.ErrorIs(t, err, ErrNoPrizes)

	prize, err := f.svc.CreatePrize(ctx, "Ten", decimal.NewFromInt(10), 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPrizeActive(ctx, prize.ID, false))

	_, err = f.svc.Spin(ctx, acc.ID, "spin-1")
	require.ErrorIs(t, err, ErrNoPrizes)
}

func TestCreatePrizeValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.CreatePrize(ctx, " ", decimal.NewFromInt(1), 1)
	require.ErrorIs(t, err, ErrInvalidPrize)
	_, err = f.svc.CreatePrize(ctx, "Neg", decimal.NewFromInt(-1), 1)
	require.ErrorIs(t, err, ErrInvalidPrize)
	_, err = f.svc.CreatePrize(ctx, "Fine", decimal.RequireFromString("0.00001"), 1)
	require.ErrorIs(t, err, ErrInvalidPrize)
	_, err = f.svc.CreatePrize(ctx, "Weight", decimal.NewFromInt(1), -1)
	require.ErrorIs(t, err, ErrInvalidPrize)

	prizes, err := f.svc.ListPrizes(ctx)
	require.NoError(t, err)
	require.Empty(t, prizes)
}
