package middleware

import (
	"bytes"
	"crypto/hmac"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/ipallow"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/service"
	"github.com/signalgate/signalgate/internal/signer"
)

const HeaderSignature = "X-Signature"

// Upstreams do not agree on the header name; the first non-empty one wins.
var signatureHeaders = []string{HeaderSignature, "X-Webhook-Signature", "Stripe-Signature"}

func signatureHeader(c *gin.Context) string {
	for _, name := range signatureHeaders {
		if v := c.GetHeader(name); v != "" {
			return v
		}
	}
	return ""
}

// SourceVerification gates the webhook ingress. A request passes when one
// of these holds, checked in order:
//
//  1. a valid HMAC signature header; a present but invalid one rejects
//     outright, regardless of IP,
//  2. an allowlisted source IP,
//  3. a matching shared-secret field inside the JSON body.
//
// Signature verdicts are recorded as guardrail events for the instance.
func SourceVerification(cfg *config.Config, resolver *ipallow.Resolver, events service.EventStore) gin.HandlerFunc {
	maxSkew := time.Duration(cfg.Auth.MaxSkewMs) * time.Millisecond

	return func(c *gin.Context) {
		instanceID := c.Param("id")

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		}

		if header := signatureHeader(c); header != "" {
			res := signer.Verify(header, body, cfg.Auth.WebhookSecret, maxSkew, time.Now())
			if res.Valid {
				appendSourceEvent(c, events, instanceID, model.EventSignatureOK, res.Reason)
				c.Next()
				return
			}
			appendSourceEvent(c, events, instanceID, model.EventSignatureFail, res.Reason)
			abortWith(c, apperrors.NewAuthFailed("webhook signature rejected: "+res.Reason))
			return
		}

		if resolver != nil && resolver.IsAllowed(c.ClientIP()) {
			c.Next()
			return
		}

		if cfg.Auth.SharedSecretField != "" && sharedSecretMatches(body, cfg.Auth.SharedSecretField, cfg.Auth.WebhookSecret) {
			c.Next()
			return
		}

		abortWith(c, apperrors.NewAuthFailed("source not allowed: no signature, allowlisted IP or shared secret"))
	}
}

func sharedSecretMatches(body []byte, field, expected string) bool {
	if expected == "" {
		return false
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	provided, _ := payload[field].(string)
	if provided == "" {
		return false
	}
	return hmac.Equal([]byte(provided), []byte(expected))
}

func appendSourceEvent(c *gin.Context, events service.EventStore, instanceID, eventType, detail string) {
	if events == nil || instanceID == "" {
		return
	}
	if err := events.Insert(c.Request.Context(), &model.GuardrailEvent{
		BotInstanceID: instanceID,
		Type:          eventType,
		Detail:        detail,
	}); err != nil {
		logger.Error("source event persist failed", "instance", instanceID, "error", err.Error())
	}
}
