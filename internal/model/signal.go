package model

import "time"

const (
	SignalReceived   = "received"
	SignalDispatched = "dispatched"
	SignalExecuted   = "executed"
	SignalFailed     = "failed"
)

// Signal is the raw inbound alert. Status tracks dispatch separately from
// execution outcome: "dispatched" means handed to a worker, nothing more.
// The actual result lives on Order / ForwardedSignal.
type Signal struct {
	ID            string `json:"id" gorm:"primaryKey"`
	BotInstanceID string `json:"bot_instance_id" gorm:"index;index:idx_signal_external,unique"`
	Source        string `json:"source"`
	RawPayload    string `json:"raw_payload" gorm:"type:text"`

	// ExternalID is the upstream-provided dedup key, scoped per instance:
	// two instances may legitimately receive the same upstream ID.
	ExternalID string `json:"external_id,omitempty" gorm:"index:idx_signal_external,unique,where:external_id <> ''"`

	Status    string    `json:"status" gorm:"default:'received'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
