package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/setting"
	"rewardtask-controlplane/services/vip"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type configMock struct {
	cfg setting.ApprovalConfig
	err error
}

func (m *configMock) ApprovalConfig(context.Context) (setting.ApprovalConfig, error) {
	return m.cfg, m.err
}

type tiersMock struct {
	tiers []*vip.Tier
}

func (m *tiersMock) List(context.Context) ([]*vip.Tier, error) {
	return m.tiers, nil
}

type accountsMock struct {
	accounts map[string]*account.Account
}

func (m *accountsMock) Get(_ context.Context, id string) (*account.Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return acc, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func threshold(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

var defaultTiers = []*vip.Tier{
	{Name: "bronze", MinBalance: d("0"), AutoApproveLimit: 3},
	{Name: "silver", MinBalance: d("100"), AutoApproveLimit: 10},
	{Name: "gold", MinBalance: d("1000"), AutoApproveLimit: 0},
}

func newService(cfg setting.ApprovalConfig, tiers []*vip.Tier, acc *account.Account) *Service {
	return NewService(ServiceParams{
		Config:   &configMock{cfg: cfg},
		Tiers:    &tiersMock{tiers: tiers},
		Accounts: &accountsMock{accounts: map[string]*account.Account{acc.ID: acc}},
	})
}

func TestDecideAutoApproveAllOverridesEverything(t *testing.T) {
	cfg := setting.ApprovalConfig{AutoApproveAll: true, PriceThreshold: threshold("1")}

	for _, acc := range []*account.Account{
		{ID: "a", Balance: d("5000"), CompletedOrders: 500},
		{ID: "a", Balance: d("0"), CompletedOrders: 0},
	} {
		for _, price := range []string{"0.01", "10", "999999"} {
			got, err := newService(cfg, nil, acc).Decide(context.Background(), "a", d(price))
			require.NoError(t, err)
			require.Equal(t, AutoApprove, got.Outcome)
			require.Equal(t, ReasonAutoApproveAll, got.Reason)
		}
	}
}

func TestDecidePriceThreshold(t *testing.T) {
	cfg := setting.ApprovalConfig{PriceThreshold: threshold("20")}
	acc := &account.Account{ID: "a", Balance: d("150"), CompletedOrders: 10}

	got, err := newService(cfg, defaultTiers, acc).Decide(context.Background(), "a", d("15"))
	require.NoError(t, err)
	require.Equal(t, AutoApprove, got.Outcome)
	require.Equal(t, ReasonPriceThreshold, got.Reason)

	got, err = newService(cfg, defaultTiers, acc).Decide(context.Background(), "a", d("20"))
	require.NoError(t, err)
	require.Equal(t, AutoApprove, got.Outcome)

	got, err = newService(cfg, defaultTiers, acc).Decide(context.Background(), "a", d("25"))
	require.NoError(t, err)
	require.Equal(t, ManualReview, got.Outcome)
	require.Equal(t, "silver", got.Tier)
}

func TestDecideTierLimit(t *testing.T) {
	tests := []struct {
		name      string
		balance   string
		completed int64
		want      Outcome
		wantTier  string
	}{
		{name: "bronze under limit", balance: "50", completed: 2, want: AutoApprove, wantTier: "bronze"},
		{name: "bronze at limit", balance: "50", completed: 3, want: ManualReview, wantTier: "bronze"},
		{name: "silver wins over bronze", balance: "100", completed: 5, want: AutoApprove, wantTier: "silver"},
		{name: "gold has no auto approvals", balance: "1000", completed: 0, want: ManualReview, wantTier: "gold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &account.Account{ID: "a", Balance: d(tt.balance), CompletedOrders: tt.completed}
			got, err := newService(setting.ApprovalConfig{}, defaultTiers, acc).Decide(context.Background(), "a", d("30"))
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Outcome)
			require.Equal(t, tt.wantTier, got.Tier)
		})
	}
}

func TestDecideNoTierIsConfigurationMissing(t *testing.T) {
	acc := &account.Account{ID: "a", Balance: d("10")}
	tiers := []*vip.Tier{{Name: "silver", MinBalance: d("100"), AutoApproveLimit: 5}}

	got, err := newService(setting.ApprovalConfig{}, tiers, acc).Decide(context.Background(), "a", d("30"))
	require.ErrorIs(t, err, ErrConfigurationMissing)
	require.Nil(t, got)

	// the threshold step still runs before tiers are needed
	got, err = newService(setting.ApprovalConfig{PriceThreshold: threshold("50")}, tiers, acc).Decide(context.Background(), "a", d("30"))
	require.NoError(t, err)
	require.Equal(t, AutoApprove, got.Outcome)
}

func TestDecidePropagatesErrors(t *testing.T) {
	boom := errors.New("settings unavailable")
	svc := NewService(ServiceParams{
		Config:   &configMock{err: boom},
		Tiers:    &tiersMock{},
		Accounts: &accountsMock{},
	})
	_, err := svc.Decide(context.Background(), "a", d("1"))
	require.ErrorIs(t, err, boom)

	svc = NewService(ServiceParams{
		Config:   &configMock{},
		Tiers:    &tiersMock{tiers: defaultTiers},
		Accounts: &accountsMock{},
	})
	_, err = svc.Decide(context.Background(), "missing", d("1"))
	require.ErrorIs(t, err, account.ErrAccountNotFound)
}
