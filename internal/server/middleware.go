package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"go.uber.org/zap"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	contextActorKey = "actor"
)

// ActorRequired resolves the acting identity from headers set by the API
// gateway after authentication. Missing or malformed headers reject the
// request before the handler runs.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := snowflake.ParseString(strings.TrimSpace(c.GetHeader(HeaderActorID)))
		if err != nil || id == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role := bookingdomain.ActorRole(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))))
		switch role {
		case bookingdomain.RoleCustomer, bookingdomain.RoleProfessional, bookingdomain.RoleAdmin:
		default:
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextActorKey, bookingdomain.Actor{ID: id, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) bookingdomain.Actor {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return bookingdomain.Actor{}
	}
	actor, _ := value.(bookingdomain.Actor)
	return actor
}

// WebhookRateLimit throttles per provider. Limiter failures admit the
// request: a redis outage must not block gateway callbacks.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.webhookLimiter == nil || !s.webhookLimiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.webhookLimiter.Allow(c.Request.Context(), c.Param("provider"))
		if err != nil {
			s.log.Warn("webhook rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}
