package normalize

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestNormalizeFieldAliases(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"canonical", `{"symbol":"BTCUSDT","side":"buy","qty":0.01,"price":50000}`},
		{"tradingview", `{"ticker":"btcusdt","action":"BUY","quantity":"0.01","price":"50000"}`},
		{"legacy", `{"pair":"BTCUSDT","direction":"Buy","size":0.01,"limit_price":50000}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := Normalize(payload(t, tc.raw))
			assert.Equal(t, "BTCUSDT", intent.Symbol)
			assert.Equal(t, "buy", intent.Side)
			require.True(t, intent.HasAmount)
			assert.True(t, intent.Amount.Equal(mustDec("0.01")))
			require.True(t, intent.HasPrice)
			assert.True(t, intent.Price.Equal(mustDec("50000")))
		})
	}
}

func TestNormalizeSideNeverGuessed(t *testing.T) {
	for _, side := range []string{"long", "short", "close", "flat", "hold", ""} {
		intent := Normalize(map[string]any{"symbol": "X", "side": side})
		assert.Empty(t, intent.Side, "side %q must stay undefined", side)
	}
	assert.Equal(t, "sell", Normalize(map[string]any{"side": "SELL"}).Side)
}

func TestNormalizeKeepsUnknownFieldsInRaw(t *testing.T) {
	intent := Normalize(payload(t, `{"symbol":"ETHUSDT","strategy":"sma_cross","comment":"tv alert"}`))
	assert.Equal(t, "sma_cross", intent.Raw["strategy"])
	assert.Equal(t, "tv alert", intent.Raw["comment"])
	assert.NotContains(t, intent.Raw, "symbol")
}

func TestIdempotencyKeyIgnoresReceiptTime(t *testing.T) {
	a := Normalize(payload(t, `{"symbol":"BTCUSDT","side":"buy","qty":0.01,"price":50000,"received_at":"2026-01-01T00:00:00Z"}`))
	b := Normalize(payload(t, `{"symbol":"BTCUSDT","side":"buy","qty":0.01,"price":50000,"received_at":"2026-01-01T00:05:07Z"}`))
	assert.Equal(t, IdempotencyKey("ws-1", a), IdempotencyKey("ws-1", b))
}

func TestIdempotencyKeyVariesOnTenantAndFields(t *testing.T) {
	intent := Normalize(payload(t, `{"symbol":"BTCUSDT","side":"buy","qty":0.01,"price":50000}`))
	base := IdempotencyKey("ws-1", intent)

	assert.NotEqual(t, base, IdempotencyKey("ws-2", intent))

	other := intent
	other.Side = "sell"
	assert.NotEqual(t, base, IdempotencyKey("ws-1", other))

	other = intent
	other.Price = mustDec("50001")
	assert.NotEqual(t, base, IdempotencyKey("ws-1", other))
}

func TestIdempotencyKeyRespectsUpstreamTimestamp(t *testing.T) {
	a := Normalize(payload(t, `{"symbol":"BTCUSDT","side":"buy","qty":1,"timestamp":"1700000000"}`))
	b := Normalize(payload(t, `{"symbol":"BTCUSDT","side":"buy","qty":1,"timestamp":"1700000060"}`))
	assert.NotEqual(t, IdempotencyKey("ws-1", a), IdempotencyKey("ws-1", b))
}

func TestSanitizeRedactsSecrets(t *testing.T) {
	raw := payload(t, `{
		"symbol":"BTCUSDT",
		"secret":"hunter2",
		"api_key":"key",
		"nested":{"refresh_token":"tok","ok":"keep"},
		"list":[{"password":"x"},"plain"]
	}`)
	clean := Sanitize(raw)
	assert.Equal(t, "[redacted]", clean["secret"])
	assert.Equal(t, "[redacted]", clean["api_key"])
	assert.Equal(t, "BTCUSDT", clean["symbol"])
	nested := clean["nested"].(map[string]any)
	assert.Equal(t, "[redacted]", nested["refresh_token"])
	assert.Equal(t, "keep", nested["ok"])
	list := clean["list"].([]any)
	assert.Equal(t, "[redacted]", list[0].(map[string]any)["password"])
	assert.Equal(t, "plain", list[1])

	// Original payload untouched.
	assert.Equal(t, "hunter2", raw["secret"])
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "abc-1", ExternalID(payload(t, `{"alert_id":"abc-1"}`)))
	assert.Equal(t, "", ExternalID(payload(t, `{"symbol":"X"}`)))
}

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
