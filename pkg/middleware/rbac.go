package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/accesscontrol"
	"rewardtask-controlplane/pkg/errutil"
	"rewardtask-controlplane/pkg/logger"
)

var ErrForbidden = errutil.Forbidden("actor is not allowed to perform this action", nil)

// Authorize checks the actor's role against the request path and method. It
// must run after RequireActor.
func Authorize(e accesscontrol.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			_ = c.Error(ErrMissingActor)
			c.Abort()
			return
		}

		allowed, err := e.Enforce(actor.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			zap.L().With(logger.TraceFields(c.Request.Context())...).Error("failed to enforce policy", zap.Error(err))
			_ = c.Error(errutil.Internal("failed to evaluate access policy", err))
			c.Abort()
			return
		}
		if !allowed {
			zap.L().With(logger.TraceFields(c.Request.Context())...).Warn("access denied",
				zap.String("actor_id", actor.ID),
				zap.String("role", actor.Role),
				zap.String("path", c.Request.URL.Path),
			)
			_ = c.Error(ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
