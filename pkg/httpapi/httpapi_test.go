package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/accesscontrol"
	"rewardtask-controlplane/pkg/config"
	"rewardtask-controlplane/pkg/health"
	"rewardtask-controlplane/pkg/middleware"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/approval"
	"rewardtask-controlplane/services/catalog"
	"rewardtask-controlplane/services/ledger"
	"rewardtask-controlplane/services/order"
	"rewardtask-controlplane/services/setting"
	"rewardtask-controlplane/services/testutil"
	"rewardtask-controlplane/services/vip"
	"rewardtask-controlplane/services/wheel"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type actor struct {
	id, role string
}

var (
	admin    = actor{id: "admin-1", role: accesscontrol.RoleAdmin}
	reviewer = actor{id: "rev-1", role: accesscontrol.RoleReviewer}
)

type api struct {
	t      *testing.T
	engine *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()

	db := testutil.NewTestDB(t,
		&account.Account{}, &ledger.LedgerEntry{}, &vip.Tier{}, &setting.Setting{},
		&catalog.Product{}, &catalog.Task{}, &order.TaskOrder{}, &wheel.Prize{}, &wheel.Spin{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	enforcer, err := accesscontrol.NewDefaultEnforcer()
	require.NoError(t, err)

	accounts := account.NewService(account.ServiceParams{DB: db, Node: node})
	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Accounts: accounts})
	tiers := vip.NewService(vip.ServiceParams{DB: db, Node: node})
	settings := setting.NewService(setting.ServiceParams{DB: db})
	policy := approval.NewService(approval.ServiceParams{Config: settings, Tiers: tiers, Accounts: accounts})
	catalogSvc := catalog.NewService(catalog.ServiceParams{DB: db, Node: node, Accounts: accounts, Tiers: tiers})
	orders := order.NewService(order.ServiceParams{
		DB:       db,
		Node:     node,
		Ledger:   ledgerSvc,
		Accounts: accounts,
		Policy:   policy,
		Quoter:   catalogSvc,
	})
	wheelSvc := wheel.NewService(wheel.ServiceParams{DB: db, Node: node, Ledger: ledgerSvc, Accounts: accounts})

	engine := NewEngine(Params{
		Config:   &config.Config{},
		Health:   health.ProvideHealth(health.HealthParams{DB: db, Ledger: ledgerSvc}),
		Enforcer: enforcer,
		Accounts: accounts,
		Ledger:   ledgerSvc,
		Orders:   orders,
		Catalog:  catalogSvc,
		Settings: settings,
		Tiers:    tiers,
		Wheel:    wheelSvc,
	})
	return &api{t: t, engine: engine}
}

func (a *api) call(as *actor, method, path string, body any, out any) int {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(middleware.HeaderActorID, as.id)
		req.Header.Set(middleware.HeaderActorRole, as.role)
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func (a *api) balance(id string) decimal.Decimal {
	a.t.Helper()
	var acc account.Account
	require.Equal(a.t, http.StatusOK, a.call(&admin, http.MethodGet, "/v1/accounts/"+id, nil, &acc))
	return acc.Balance
}

func (a *api) setup() (user actor, taskID string) {
	a.t.Helper()

	var acc account.Account
	require.Equal(a.t, http.StatusCreated, a.call(nil, http.MethodPost, "/v1/accounts", nil, &acc))
	user = actor{id: acc.ID}

	require.Equal(a.t, http.StatusOK, a.call(&admin, http.MethodPost, "/v1/admin/accounts/"+acc.ID+"/deposit",
		map[string]any{"amount": "100", "idempotency_key": "dep-1"}, nil))

	require.Equal(a.t, http.StatusOK, a.call(&admin, http.MethodPut, "/v1/admin/vip-tiers", []map[string]any{
		{"name": "bronze", "min_balance": "0", "commission_rate": "0.1", "auto_approve_limit": 0},
	}, nil))

	var product catalog.Product
	require.Equal(a.t, http.StatusCreated, a.call(&admin, http.MethodPost, "/v1/admin/products",
		map[string]any{"name": "Desk Lamp", "price": "40", "stock": 10}, &product))
	require.Equal(a.t, "desk-lamp", product.Slug)

	var task catalog.Task
	require.Equal(a.t, http.StatusCreated, a.call(&admin, http.MethodPost, "/v1/admin/tasks",
		map[string]any{"product_id": product.ID, "title": "Review the lamp"}, &task))

	return user, task.ID
}

func TestManualReviewFlow(t *testing.T) {
	a := newAPI(t)
	user, taskID := a.setup()

	var o order.TaskOrder
	require.Equal(t, http.StatusCreated, a.call(&user, http.MethodPost, "/v1/orders", map[string]any{"task_id": taskID}, &o))
	require.Equal(t, order.StateAssigned, o.State)

	var submitted order.SubmitResult
	require.Equal(t, http.StatusOK, a.call(&user, http.MethodPost, "/v1/orders/"+o.ID+"/submit", nil, &submitted))
	require.Equal(t, order.StateSubmitted, submitted.Order.State)
	require.True(t, a.balance(user.id).Equal(decimal.NewFromInt(60)))

	var pending struct {
		Data []*order.TaskOrder `json:"data"`
	}
	require.Equal(t, http.StatusOK, a.call(&reviewer, http.MethodGet, "/v1/admin/orders/pending", nil, &pending))
	require.Len(t, pending.Data, 1)

	// users cannot resolve their own orders
	require.Equal(t, http.StatusForbidden, a.call(&user, http.MethodPost, "/v1/admin/orders/"+o.ID+"/resolve",
		map[string]any{"outcome": "COMPLETE"}, nil))

	var resolved order.TaskOrder
	require.Equal(t, http.StatusOK, a.call(&reviewer, http.MethodPost, "/v1/admin/orders/"+o.ID+"/resolve",
		map[string]any{"outcome": "COMPLETE"}, &resolved))
	require.Equal(t, order.StateCompleted, resolved.State)
	require.True(t, resolved.RewardAmount.Equal(decimal.NewFromInt(4)))
	require.True(t, a.balance(user.id).Equal(decimal.NewFromInt(64)))

	require.Equal(t, http.StatusUnprocessableEntity, a.call(&reviewer, http.MethodPost, "/v1/admin/orders/"+o.ID+"/resolve",
		map[string]any{"outcome": "REJECT"}, nil))

	var report ledger.ChainReport
	require.Equal(t, http.StatusOK, a.call(&reviewer, http.MethodGet, "/v1/admin/accounts/"+user.id+"/verify", nil, &report))
	require.True(t, report.Valid, report.Reason)
}

func TestAutoApproveFlow(t *testing.T) {
	a := newAPI(t)
	user, taskID := a.setup()

	require.Equal(t, http.StatusOK, a.call(&admin, http.MethodPut, "/v1/admin/settings/"+setting.KeyPriceThreshold,
		map[string]any{"value": "50"}, nil))

	var o order.TaskOrder
	require.Equal(t, http.StatusCreated, a.call(&user, http.MethodPost, "/v1/orders", map[string]any{"task_id": taskID}, &o))

	var submitted order.SubmitResult
	require.Equal(t, http.StatusOK, a.call(&user, http.MethodPost, "/v1/orders/"+o.ID+"/submit", nil, &submitted))
	require.Equal(t, order.StateCompleted, submitted.Order.State)
	require.Equal(t, approval.ReasonPriceThreshold, submitted.Decision.Reason)
	require.True(t, a.balance(user.id).Equal(decimal.NewFromInt(64)))

	require.Equal(t, http.StatusUnprocessableEntity, a.call(&user, http.MethodPost, "/v1/orders/"+o.ID+"/submit", nil, nil))
}

func TestInsufficientFunds(t *testing.T) {
	a := newAPI(t)
	user, taskID := a.setup()

	require.Equal(t, http.StatusOK, a.call(&admin, http.MethodPost, "/v1/admin/accounts/"+user.id+"/withdraw",
		map[string]any{"amount": "90", "idempotency_key": "wd-1"}, nil))

	var o order.TaskOrder
	require.Equal(t, http.StatusCreated, a.call(&user, http.MethodPost, "/v1/orders", map[string]any{"task_id": taskID}, &o))
	require.Equal(t, http.StatusUnprocessableEntity, a.call(&user, http.MethodPost, "/v1/orders/"+o.ID+"/submit", nil, nil))

	var got order.TaskOrder
	require.Equal(t, http.StatusOK, a.call(&user, http.MethodGet, "/v1/orders/"+o.ID, nil, &got))
	require.Equal(t, order.StateAssigned, got.State)
}

func TestAccountAccess(t *testing.T) {
	a := newAPI(t)
	user, _ := a.setup()
	stranger := actor{id: "someone-else"}

	require.Equal(t, http.StatusUnauthorized, a.call(nil, http.MethodGet, "/v1/accounts/"+user.id, nil, nil))
	require.Equal(t, http.StatusForbidden, a.call(&stranger, http.MethodGet, "/v1/accounts/"+user.id, nil, nil))
	require.Equal(t, http.StatusOK, a.call(&user, http.MethodGet, "/v1/accounts/"+user.id, nil, nil))
	require.Equal(t, http.StatusForbidden, a.call(&user, http.MethodPost, "/v1/admin/accounts/"+user.id+"/deposit",
		map[string]any{"amount": "1000", "idempotency_key": "steal"}, nil))
}

func TestDepositReplay(t *testing.T) {
	a := newAPI(t)
	user, _ := a.setup()

	var res ledger.Result
	require.Equal(t, http.StatusOK, a.call(&admin, http.MethodPost, "/v1/admin/accounts/"+user.id+"/deposit",
		map[string]any{"amount": "100", "idempotency_key": "dep-1"}, &res))
	require.True(t, res.Replayed)
	require.True(t, a.balance(user.id).Equal(decimal.NewFromInt(100)))

	require.Equal(t, http.StatusConflict, a.call(&admin, http.MethodPost, "/v1/admin/accounts/"+user.id+"/deposit",
		map[string]any{"amount": "40", "idempotency_key": "dep-1"}, nil))
	require.True(t, a.balance(user.id).Equal(decimal.NewFromInt(100)))
}

func TestWheelSpin(t *testing.T) {
	a := newAPI(t)
	user, _ := a.setup()

	require.Equal(t, http.StatusCreated, a.call(&admin, http.MethodPost, "/v1/admin/prizes",
		map[string]any{"label": "Five", "amount": "5", "probability": 1}, nil))

	var res wheel.SpinResult
	require.Equal(t, http.StatusCreated, a.call(&user, http.MethodPost, "/v1/wheel/spins", map[string]any{"spin_id": "s-1"}, &res))
	require.True(t, res.Balance.Equal(decimal.NewFromInt(105)))

	require.Equal(t, http.StatusOK, a.call(&user, http.MethodPost, "/v1/wheel/spins", map[string]any{"spin_id": "s-1"}, &res))
	require.True(t, res.Replayed)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusOK, a.call(nil, http.MethodGet, "/healthz", nil, nil))
	require.Equal(t, http.StatusOK, a.call(nil, http.MethodGet, "/readyz", nil, nil))
}

func TestDeactivatedTaskCannotBeAssigned(t *testing.T) {
	a := newAPI(t)
	user, taskID := a.setup()

	require.Equal(t, http.StatusBadRequest, a.call(&admin, http.MethodPut, "/v1/admin/tasks/"+taskID+"/active",
		map[string]any{}, nil))
	require.Equal(t, http.StatusOK, a.call(&admin, http.MethodPut, "/v1/admin/tasks/"+taskID+"/active",
		map[string]any{"active": false}, nil))

	require.Equal(t, http.StatusUnprocessableEntity, a.call(&user, http.MethodPost, "/v1/orders", map[string]any{"task_id": taskID}, nil))
}
