package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"rewardtask-controlplane/pkg/accesscontrol"
	"rewardtask-controlplane/pkg/config"
	"rewardtask-controlplane/pkg/health"
	"rewardtask-controlplane/pkg/middleware"
	"rewardtask-controlplane/services/account"
	"rewardtask-controlplane/services/catalog"
	"rewardtask-controlplane/services/ledger"
	"rewardtask-controlplane/services/order"
	"rewardtask-controlplane/services/setting"
	"rewardtask-controlplane/services/vip"
	"rewardtask-controlplane/services/wheel"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		func(s *ledger.Service) health.Checker { return s },
	),
)

type Params struct {
	fx.In
	Config   *config.Config
	Health   health.HealthService
	Enforcer accesscontrol.Enforcer
	Accounts *account.Service
	Ledger   *ledger.Service
	Orders   *order.Service
	Catalog  *catalog.Service
	Settings *setting.Service
	Tiers    *vip.Service
	Wheel    *wheel.Service
}

type handlers struct {
	accounts *account.Service
	ledger   *ledger.Service
	orders   *order.Service
	catalog  *catalog.Service
	settings *setting.Service
	tiers    *vip.Service
	wheel    *wheel.Service
}

func NewEngine(p Params) *gin.Engine {
	if strings.EqualFold(p.Config.AppEnv, "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logging(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	h := &handlers{
		accounts: p.Accounts,
		ledger:   p.Ledger,
		orders:   p.Orders,
		catalog:  p.Catalog,
		settings: p.Settings,
		tiers:    p.Tiers,
		wheel:    p.Wheel,
	}

	v1 := r.Group("/v1")
	v1.POST("/accounts", h.registerAccount)

	user := v1.Group("", middleware.RequireActor())
	{
		user.GET("/accounts/:id", h.getAccount)
		user.GET("/accounts/:id/entries", h.listEntries)
		user.GET("/tasks", h.listTasks)
		user.POST("/orders", h.assignOrder)
		user.GET("/orders", h.listOrders)
		user.GET("/orders/:id", h.getOrder)
		user.POST("/orders/:id/submit", h.submitOrder)
		user.POST("/wheel/spins", h.spin)
	}

	admin := v1.Group("/admin", middleware.RequireActor(), middleware.Authorize(p.Enforcer))
	{
		admin.GET("/orders/pending", h.listPendingOrders)
		admin.POST("/orders/:id/resolve", h.resolveOrder)
		admin.POST("/accounts/:id/deposit", h.deposit)
		admin.POST("/accounts/:id/withdraw", h.withdraw)
		admin.POST("/accounts/:id/adjust", h.adjust)
		admin.GET("/accounts/:id/verify", h.verifyChain)
		admin.GET("/settings/:key", h.getSetting)
		admin.PUT("/settings/:key", h.putSetting)
		admin.GET("/vip-tiers", h.listTiers)
		admin.PUT("/vip-tiers", h.putTiers)
		admin.POST("/products", h.createProduct)
		admin.POST("/tasks", h.createTask)
		admin.PUT("/tasks/:id/active", h.setTaskActive)
		admin.POST("/prizes", h.createPrize)
		admin.GET("/prizes", h.listPrizes)
		admin.PUT("/prizes/:id/active", h.setPrizeActive)
	}

	return r
}

// ownerOrStaff lets the account owner through, as well as any admin role.
func ownerOrStaff(c *gin.Context, accountID string) bool {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return false
	}
	if actor.ID == accountID {
		return true
	}
	return actor.Role == accesscontrol.RoleAdmin || actor.Role == accesscontrol.RoleReviewer
}

func actorID(c *gin.Context) string {
	actor, _ := middleware.GetActor(c)
	return actor.ID
}
