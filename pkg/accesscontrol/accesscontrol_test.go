package accesscontrol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestDefaultEnforcer(t *testing.T) {
	e, err := NewDefaultEnforcer()
	require.NoError(t, err)

	tests := []struct {
		sub, obj, act string
		want          bool
	}{
		{RoleAdmin, "/v1/admin/accounts/42/adjust", "POST", true},
		{RoleAdmin, "/v1/admin/settings/approval.price_threshold", "PUT", true},
		{RoleReviewer, "/v1/admin/orders/pending", "GET", true},
		{RoleReviewer, "/v1/admin/orders/123/resolve", "POST", true},
		{RoleReviewer, "/v1/admin/accounts/42/adjust", "POST", false},
		{RoleReviewer, "/v1/admin/orders/pending", "POST", false},
		{"", "/v1/admin/orders/pending", "GET", false},
		{"user", "/v1/admin/orders/123/resolve", "POST", false},
	}

	for _, tt := range tests {
		got, err := e.Enforce(tt.sub, tt.obj, tt.act)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "%s %s %s", tt.sub, tt.act, tt.obj)
	}
}

func TestNewEnforcerFromFiles(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "rbac_model.conf")
	policyPath := filepath.Join(dir, "rbac_policy.csv")
	require.NoError(t, os.WriteFile(modelPath, []byte(DefaultModel), 0o600))
	require.NoError(t, os.WriteFile(policyPath, []byte("p, auditor, /v1/admin/accounts/:id/verify, GET\n"), 0o600))

	cfg := &config.Config{}
	cfg.AccessControl.Model = modelPath
	cfg.AccessControl.Policy = policyPath

	e, err := NewEnforcer(cfg)
	require.NoError(t, err)

	ok, err := e.Enforce("auditor", "/v1/admin/accounts/7/verify", "GET")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Enforce(RoleAdmin, "/v1/admin/accounts/7/verify", "GET")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewEnforcerFallsBackToDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.AccessControl.Model = filepath.Join(t.TempDir(), "missing.conf")

	e, err := NewEnforcer(cfg)
	require.NoError(t, err)

	ok, err := e.Enforce(RoleAdmin, "/v1/admin/vip-tiers", "PUT")
	require.NoError(t, err)
	require.True(t, ok)
}
