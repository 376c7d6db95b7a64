package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

// Checker is a service that can report its own readiness.
type Checker interface {
	Check(ctx context.Context) error
}

type health struct {
	db     *gorm.DB
	redis  redis.Cmdable
	ledger Checker
}

type HealthParams struct {
	fx.In
	DB     *gorm.DB      `optional:"true"`
	Redis  *redis.Client `optional:"true"`
	Ledger Checker       `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	h := &health{db: p.DB, ledger: p.Ledger}
	if p.Redis != nil {
		h.redis = p.Redis
	}
	return h
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

// Readiness pings every configured dependency and answers 503 when one fails.
func (h *health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	this := &Health{Status: StatusHealthy, Message: "OK"}

	check := func(name string, ping func() error) {
		dep := Dependency{Name: name, Status: StatusHealthy, Message: "OK"}
		if err := ping(); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
			this.Status = StatusUnhealthy
			this.Message = name + " unavailable"
		}
		this.Deps = append(this.Deps, dep)
	}

	if h.db != nil {
		check(h.db.Dialector.Name(), func() error {
			sqlDB, err := h.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	if h.ledger != nil {
		check("ledger", func() error {
			return h.ledger.Check(ctx)
		})
	}
	if h.redis != nil {
		check("redis", func() error {
			return h.redis.Ping(ctx).Err()
		})
	}

	status := http.StatusOK
	if this.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, this)
}
