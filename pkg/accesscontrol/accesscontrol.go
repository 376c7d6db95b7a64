package accesscontrol

import (
	"os"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/config"
)

var Module = fx.Module("accesscontrol", fx.Provide(NewEnforcer))

const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
)

// DefaultModel is role based, with keyMatch2 paths so policies can use
// `/v1/admin/orders/:id/resolve` or `/v1/admin/*`.
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// DefaultPolicies are loaded when no policy file is configured.
var DefaultPolicies = [][]string{
	{RoleAdmin, "/v1/admin/*", "*"},
	{RoleReviewer, "/v1/admin/orders/pending", "GET"},
	{RoleReviewer, "/v1/admin/orders/:id/resolve", "POST"},
	{RoleReviewer, "/v1/admin/accounts/:id/verify", "GET"},
}

type Enforcer interface {
	Enforce(rvals ...interface{}) (bool, error)
}

// NewEnforcer loads ACCESS_CONTROL.MODEL and ACCESS_CONTROL.POLICY when the files
// exist, falling back to DefaultModel and DefaultPolicies.
func NewEnforcer(cfg *config.Config) (Enforcer, error) {
	modelPath, policyPath := cfg.AccessControl.Model, cfg.AccessControl.Policy

	if exists(modelPath) && exists(policyPath) {
		zap.L().Info("loading access control policies",
			zap.String("model", modelPath),
			zap.String("policy", policyPath),
		)
		return casbin.NewEnforcer(modelPath, policyPath)
	}

	zap.L().Info("access control files not found, using built in policies")
	return NewDefaultEnforcer()
}

func NewDefaultEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(DefaultModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	for _, p := range DefaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
