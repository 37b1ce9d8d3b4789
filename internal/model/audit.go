package model

import "time"

// AuditLog is a full request/response audit record, written append-only.
type AuditLog struct {
	ID          string `json:"id" gorm:"primaryKey"`
	WorkspaceID string `json:"workspace_id" gorm:"index"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	IP          string `json:"ip"`
	UserAgent   string `json:"user_agent"`

	// Bodies are stored after secret redaction.
	RequestBody  string `json:"request_body" gorm:"type:text"`
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body" gorm:"type:text"`
	LatencyMs    int64  `json:"latency_ms"`

	Context map[string]any `json:"context" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
