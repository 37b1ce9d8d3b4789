package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
)

const (
	ContextWorkspaceKey = "workspace_id"
	ContextInstanceKey  = "bot_instance_id"
)

// BrokerClaims is the scoped bearer token payload: a token is minted for
// one bot instance inside one workspace, never wider.
type BrokerClaims struct {
	BotInstanceID string `json:"bot_instance_id"`
	WorkspaceID   string `json:"workspace_id"`
	jwt.RegisteredClaims
}

func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			abortWith(c, apperrors.NewAuthFailed("missing bearer token"))
			return
		}

		claims := &BrokerClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, prefix), claims,
			func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(cfg.Auth.JWTSecret), nil
			})
		if err != nil || !token.Valid {
			abortWith(c, apperrors.NewAuthFailed("invalid bearer token"))
			return
		}
		if claims.WorkspaceID == "" || claims.BotInstanceID == "" {
			abortWith(c, apperrors.NewAuthFailed("token lacks workspace or instance scope"))
			return
		}

		c.Set(ContextWorkspaceKey, claims.WorkspaceID)
		c.Set(ContextInstanceKey, claims.BotInstanceID)
		c.Next()
	}
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.Abort()
}
