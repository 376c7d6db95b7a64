package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"rewardtask-controlplane/pkg/errutil"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const actorKey = "middleware.actor"

// Actor is the caller identity forwarded by the gateway.
type Actor struct {
	ID   string
	Role string
}

var ErrMissingActor = errutil.Unauthorized("missing actor identity", nil)

// RequireActor reads the actor headers and aborts with 401 when no id is set.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if id == "" {
			_ = c.Error(ErrMissingActor)
			c.Abort()
			return
		}

		c.Set(actorKey, Actor{
			ID:   id,
			Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
		})
		c.Next()
	}
}

// GetActor returns the actor stored by RequireActor.
func GetActor(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return Actor{}, false
	}
	a, ok := v.(Actor)
	return a, ok
}
