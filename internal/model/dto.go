package model

import "github.com/shopspring/decimal"

// OrderIntent is the canonical shape every inbound payload normalizes to.
// Fields the payload did not provide stay at their zero value; Side is only
// ever "buy", "sell" or empty, never guessed.
type OrderIntent struct {
	Symbol            string          `json:"symbol,omitempty"`
	Side              string          `json:"side,omitempty"`
	Type              string          `json:"type,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	HasAmount         bool            `json:"has_amount,omitempty"`
	Price             decimal.Decimal `json:"price"`
	HasPrice          bool            `json:"has_price,omitempty"`
	ClientOrderID     string          `json:"client_order_id,omitempty"`
	Exchange          string          `json:"exchange,omitempty"`
	UpstreamTimestamp string          `json:"upstream_timestamp,omitempty"`

	// Raw keeps every field the mapper did not recognise.
	Raw map[string]any `json:"raw,omitempty"`
}

// BrokerOrderRequest is the synchronous broker endpoint body.
type BrokerOrderRequest struct {
	Symbol         string  `json:"symbol" binding:"required"`
	Side           string  `json:"side" binding:"required,oneof=BUY SELL"`
	Type           string  `json:"type" binding:"required,oneof=MARKET LIMIT STOP"`
	Price          float64 `json:"price,omitempty"`
	Qty            float64 `json:"qty" binding:"required"`
	IdempotencyKey string  `json:"idempotencyKey" binding:"required"`
}

// VenueMeta carries the per-instrument filters a guardrail check needs.
// All context is passed in by the caller so the checks stay pure.
type VenueMeta struct {
	TickSize decimal.Decimal
	StepSize decimal.Decimal
	MaxQty   decimal.Decimal
}

// Credentials is the decrypted form of an ExchangeAccount blob.
type Credentials struct {
	APIKey       string `json:"api_key,omitempty"`
	APISecret    string `json:"api_secret,omitempty"`
	Passphrase   string `json:"passphrase,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	RequestToken string `json:"request_token,omitempty"`
}

// PlacementResult is what an exchange adapter returns on success.
type PlacementResult struct {
	VenueOrderID string          `json:"venue_order_id"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Type         string          `json:"type"`
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
}
