package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/pkg/metrics"
	"github.com/signalgate/signalgate/internal/ratelimit"
	"github.com/signalgate/signalgate/internal/service"
)

// KeyFunc derives the rate-limit bucket and the instance to charge the
// rejection event to. An empty key skips limiting for the request.
type KeyFunc func(c *gin.Context) (key, instanceID string)

// WebhookKey buckets per bot instance.
func WebhookKey(c *gin.Context) (string, string) {
	id := c.Param("id")
	return "webhook:" + id, id
}

// BrokerKey buckets per workspace, charging the instance from the token.
func BrokerKey(c *gin.Context) (string, string) {
	ws := c.GetString(ContextWorkspaceKey)
	if ws == "" {
		return "", ""
	}
	return "broker:" + ws, c.GetString(ContextInstanceKey)
}

// RateLimit enforces the sliding-window limit. A store failure fails open:
// dropping live signals costs more than briefly over-admitting. The
// rejection event write is best effort and never blocks the 429.
func RateLimit(l *ratelimit.Limiter, events service.EventStore, keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, instanceID := keyFn(c)
		if key == "" {
			c.Next()
			return
		}

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limit store unavailable, admitting", "key", key, "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimited.WithLabelValues(c.FullPath()).Inc()
			appendSourceEvent(c, events, instanceID, model.EventRateLimit, key)
			abortWith(c, apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			return
		}
		c.Next()
	}
}
