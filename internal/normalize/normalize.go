// Package normalize canonicalizes the heterogeneous alert payloads seen in
// the wild (TradingView templates, bot SDKs, hand-rolled curl scripts) into
// one OrderIntent shape and derives the deterministic idempotency key that
// collapses re-deliveries of the same logical alert.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/signalgate/signalgate/internal/model"
)

// Historically-varying field aliases, in precedence order.
var (
	symbolKeys   = []string{"symbol", "ticker", "pair", "market", "instrument"}
	sideKeys     = []string{"side", "action", "direction"}
	typeKeys     = []string{"type", "order_type", "orderType"}
	amountKeys   = []string{"qty", "quantity", "size", "amount", "contracts"}
	priceKeys    = []string{"price", "limit_price", "limitPrice"}
	clientIDKeys = []string{"client_order_id", "clientOrderId", "order_id", "orderId"}
	exchangeKeys = []string{"exchange", "venue", "broker"}
	tsKeys       = []string{"timestamp", "time", "alert_time", "bar_time"}
	externalKeys = []string{"external_id", "externalId", "alert_id", "alertId"}
)

// Secret-bearing keys are redacted before anything touches persistence.
var secretKeySubstrings = []string{
	"secret", "token", "password", "passphrase", "api_key", "apikey",
	"private", "signature", "authorization", "credential",
}

// Normalize coalesces raw into the canonical intent. Unrecognised fields
// survive under Raw; a side other than buy/sell stays empty rather than
// being guessed.
func Normalize(raw map[string]any) model.OrderIntent {
	intent := model.OrderIntent{Raw: map[string]any{}}
	consumed := map[string]bool{}

	if v, key := firstString(raw, symbolKeys); key != "" {
		intent.Symbol = strings.ToUpper(strings.TrimSpace(v))
		consumed[key] = true
	}
	if v, key := firstString(raw, sideKeys); key != "" {
		intent.Side = CoerceSide(v)
		consumed[key] = true
	}
	if v, key := firstString(raw, typeKeys); key != "" {
		intent.Type = strings.ToLower(strings.TrimSpace(v))
		consumed[key] = true
	}
	if d, key, ok := firstDecimal(raw, amountKeys); ok {
		intent.Amount = d
		intent.HasAmount = true
		consumed[key] = true
	}
	if d, key, ok := firstDecimal(raw, priceKeys); ok {
		intent.Price = d
		intent.HasPrice = true
		consumed[key] = true
	}
	if v, key := firstString(raw, clientIDKeys); key != "" {
		intent.ClientOrderID = strings.TrimSpace(v)
		consumed[key] = true
	}
	if v, key := firstString(raw, exchangeKeys); key != "" {
		intent.Exchange = strings.ToLower(strings.TrimSpace(v))
		consumed[key] = true
	}
	if v, key := firstString(raw, tsKeys); key != "" {
		intent.UpstreamTimestamp = strings.TrimSpace(v)
		consumed[key] = true
	}

	for k, v := range raw {
		if !consumed[k] {
			intent.Raw[k] = v
		}
	}
	return intent
}

// CoerceSide maps a raw side strictly onto buy/sell. Anything else,
// including long/short and close hints, returns empty.
func CoerceSide(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy":
		return "buy"
	case "sell":
		return "sell"
	default:
		return ""
	}
}

// ExternalID extracts the upstream dedup key, if the payload carries one.
func ExternalID(raw map[string]any) string {
	v, _ := firstString(raw, externalKeys)
	return strings.TrimSpace(v)
}

// keyFields is the exact set hashed into the idempotency key. Receipt-time
// fields are deliberately absent so repeated deliveries of the same logical
// alert collide.
type keyFields struct {
	Tenant            string `json:"tenant"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	Type              string `json:"type"`
	Amount            string `json:"amount"`
	Price             string `json:"price"`
	ClientOrderID     string `json:"clientOrderId"`
	UpstreamTimestamp string `json:"upstreamTimestamp"`
}

// IdempotencyKey hashes the canonical JSON of the normalized fields.
func IdempotencyKey(tenantID string, intent model.OrderIntent) string {
	fields := keyFields{
		Tenant:            tenantID,
		Symbol:            intent.Symbol,
		Side:              intent.Side,
		Type:              intent.Type,
		ClientOrderID:     intent.ClientOrderID,
		UpstreamTimestamp: intent.UpstreamTimestamp,
	}
	if intent.HasAmount {
		fields.Amount = intent.Amount.String()
	}
	if intent.HasPrice {
		fields.Price = intent.Price.String()
	}
	canonical, _ := json.Marshal(fields)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Sanitize deep-copies payload with every secret-bearing field redacted.
func Sanitize(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if isSecretKey(k) {
			out[k] = "[redacted]"
			continue
		}
		switch typed := v.(type) {
		case map[string]any:
			out[k] = Sanitize(typed)
		case []any:
			items := make([]any, len(typed))
			for i, item := range typed {
				if m, ok := item.(map[string]any); ok {
					items[i] = Sanitize(m)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range secretKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func firstString(raw map[string]any, keys []string) (string, string) {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			switch typed := v.(type) {
			case string:
				if typed != "" {
					return typed, key
				}
			case float64:
				return decimal.NewFromFloat(typed).String(), key
			case json.Number:
				return typed.String(), key
			}
		}
	}
	return "", ""
}

func firstDecimal(raw map[string]any, keys []string) (decimal.Decimal, string, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch typed := v.(type) {
		case float64:
			return decimal.NewFromFloat(typed), key, true
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(typed)); err == nil {
				return d, key, true
			}
		case json.Number:
			if d, err := decimal.NewFromString(typed.String()); err == nil {
				return d, key, true
			}
		case int:
			return decimal.NewFromInt(int64(typed)), key, true
		case int64:
			return decimal.NewFromInt(typed), key, true
		}
	}
	return decimal.Decimal{}, "", false
}

// SanitizedJSON is a convenience for persisting the redacted payload.
func SanitizedJSON(payload map[string]any) string {
	out, err := json.Marshal(Sanitize(payload))
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(out)
}
