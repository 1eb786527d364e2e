package distribution

import (
	"context"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// AuditSink receives a copy of every recorded audit event.
type AuditSink interface {
	Publish(ctx context.Context, event *domain.AuditEvent) error
}

// Auditor appends distribution audit events. Logging is best-effort:
// failures are reported and never propagated to the caller.
type Auditor struct {
	repo  Repository
	sinks []AuditSink
	now   func() time.Time
}

// NewAuditor creates a new auditor.
func NewAuditor(repo Repository, sinks ...AuditSink) *Auditor {
	return &Auditor{
		repo:  repo,
		sinks: sinks,
		now:   time.Now,
	}
}

// LogEvent records an audit event for an alert, optionally tied to a unit.
func (a *Auditor) LogEvent(ctx context.Context, alertID string, eventType domain.AuditEventType, message string, unitID *string) {
	event := &domain.AuditEvent{
		ID:        uuid.NewString(),
		AlertID:   alertID,
		UnitID:    unitID,
		Type:      eventType,
		Message:   message,
		CreatedAt: a.now().UTC(),
	}

	logger := ctxlog.FromContext(ctx)

	if err := a.repo.AppendEvent(ctx, event); err != nil {
		recordAuditFailure("store")
		logger.Warn("failed to record audit event",
			"alert_id", alertID,
			"type", eventType,
			"error", err,
		)
	}

	for _, sink := range a.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			recordAuditFailure("sink")
			logger.Warn("failed to publish audit event",
				"alert_id", alertID,
				"type", eventType,
				"error", err,
			)
		}
	}
}
