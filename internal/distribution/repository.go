// Package distribution fans alerts out to delivery channels and tracks per-target outcomes.
package distribution

import (
	"context"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
)

// Repository defines the interface for distribution data access.
type Repository interface {
	// Units
	CreateUnits(ctx context.Context, units []*domain.DistributionUnit) error
	GetUnit(ctx context.Context, id string) (*domain.DistributionUnit, error)
	ListUnitsByAlert(ctx context.Context, alertID string) ([]*domain.DistributionUnit, error)
	CountUnits(ctx context.Context, alertID string) ([]UnitCount, error)

	// ClaimDue atomically moves up to limit due units from pending/failed to sending
	// and returns them oldest first. A unit is returned to at most one caller.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.DistributionUnit, error)
	// ListStale returns units left in sending since before olderThan.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*domain.DistributionUnit, error)

	// Outcome updates apply only to units still in sending.
	MarkSent(ctx context.Context, id string, sentAt time.Time, message string) error
	MarkQueued(ctx context.Context, id string, message string) error
	MarkFailed(ctx context.Context, id string, update FailureUpdate) error

	MarkDelivered(ctx context.Context, id string) error
	CancelByAlert(ctx context.Context, alertID, reason string) (int, error)

	// Audit
	AppendEvent(ctx context.Context, event *domain.AuditEvent) error
	ListEvents(ctx context.Context, alertID string) ([]*domain.AuditEvent, error)
	RecordWebhookDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error

	GetQueueStats(ctx context.Context) (map[domain.DistributionStatus]int, error)
}

// UnitCount is the number of units of an alert with a given channel and status.
type UnitCount struct {
	Channel domain.Channel
	Status  domain.DistributionStatus
	Count   int
}

// FailureUpdate describes a failed send attempt.
// A nil NextRetryAt makes the failure terminal.
type FailureUpdate struct {
	RetryCount  int
	NextRetryAt *time.Time
	FailedAt    time.Time
	Message     string
}
