package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderNew      = "NEW"
	OrderRejected = "REJECTED"
)

// Order is the append-only execution ledger. A retried delivery creates a
// new row; an existing row is never mutated.
type Order struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	BotInstanceID string          `json:"bot_instance_id" gorm:"index"`
	Venue         string          `json:"venue"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Price         decimal.Decimal `json:"price" gorm:"type:numeric"`
	Qty           decimal.Decimal `json:"qty" gorm:"type:numeric"`
	Status        string          `json:"status"`
	VenueOrderID  string          `json:"venue_order_id,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

const (
	ForwardSucceeded = "succeeded"
	ForwardFailed    = "failed"
)

// ForwardedSignal records delivery outcome per idempotency key. At most one
// row per (key, instance); re-delivery updates this row in place.
type ForwardedSignal struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	IdempotencyKey string    `json:"idempotency_key" gorm:"uniqueIndex:idx_fwd_key_instance"`
	BotInstanceID  string    `json:"bot_instance_id" gorm:"uniqueIndex:idx_fwd_key_instance"`
	Status         string    `json:"status"`
	OrderID        string    `json:"order_id,omitempty"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GuardrailEvent types.
const (
	EventRateLimit          = "rate_limit"
	EventSignatureOK        = "signature_ok"
	EventSignatureFail      = "signature_fail"
	EventGuardrailViolation = "guardrail_violation"
	EventLossCap            = "loss_cap"
)

// GuardrailEvent is an append-only audit record of a guardrail outcome.
type GuardrailEvent struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	BotInstanceID string    `json:"bot_instance_id" gorm:"index:idx_guardrail_instance_type"`
	Type          string    `json:"type" gorm:"index:idx_guardrail_instance_type"`
	Detail        string    `json:"detail" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}
