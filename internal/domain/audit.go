package domain

import "time"

// AuditEventType classifies distribution audit records.
type AuditEventType string

// Audit event types.
const (
	AuditDistributionStarted    AuditEventType = "distribution_started"
	AuditDistributionsCancelled AuditEventType = "distributions_cancelled"
	AuditUnitFailed             AuditEventType = "unit_failed"
	AuditUnitQueued             AuditEventType = "unit_queued"
	AuditDeliveryConfirmed      AuditEventType = "delivery_confirmed"
	AuditStaleUnitsRecovered    AuditEventType = "stale_units_recovered"
)

// AuditEvent is an append-only record of something that happened to an alert's distribution.
type AuditEvent struct {
	ID        string         `json:"id"`
	AlertID   string         `json:"alert_id"`
	UnitID    *string        `json:"unit_id"`
	Type      AuditEventType `json:"type"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
}

// WebhookDelivery records the outcome of one webhook POST.
type WebhookDelivery struct {
	ID           string        `json:"id"`
	UnitID       string        `json:"unit_id"`
	AlertID      string        `json:"alert_id"`
	PartnerID    string        `json:"partner_id"`
	URL          string        `json:"url"`
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
