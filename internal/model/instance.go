package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InstanceRunning = "running"
	InstanceStopped = "stopped"
)

// BotInstance is a workspace-owned trading bot configuration. The scoped
// token embedded in broker bearer tokens must always resolve back to the
// owning workspace; cross-workspace use is a hard failure.
type BotInstance struct {
	ID          string `json:"id" gorm:"primaryKey"`
	WorkspaceID string `json:"workspace_id" gorm:"index"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Direction   string `json:"direction"` // long, short, both
	Leverage    int    `json:"leverage"`

	// Guardrail thresholds
	MinNotional     decimal.Decimal `json:"min_notional" gorm:"type:numeric"`
	MaxDailyLossPct float64         `json:"max_daily_loss_pct"`

	State             string `json:"state" gorm:"default:'stopped'"`
	ExchangeAccountID string `json:"exchange_account_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExchangeAccount holds encrypted venue credentials for one workspace.
type ExchangeAccount struct {
	ID          string `json:"id" gorm:"primaryKey"`
	WorkspaceID string `json:"workspace_id" gorm:"index"`
	Venue       string `json:"venue"`
	Sandbox     bool   `json:"sandbox"`

	// Vault blob: ciphertext + IV produced by the credential vault.
	CredCiphertext string `json:"-" gorm:"type:text"`
	CredIV         string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
