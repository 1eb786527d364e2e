// Package postgres provides PostgreSQL implementation of the distribution repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const unitColumns = `
	id, alert_id, channel, target_id, target_name, target_contact, config,
	status, retry_count, max_retries, next_retry_at, status_message,
	sent_at, failed_at, created_at, updated_at
`

// Repository implements the distribution.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateUnits inserts units in a single transaction.
func (r *Repository) CreateUnits(ctx context.Context, units []*domain.DistributionUnit) error {
	if len(units) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO distribution_units (id, alert_id, channel, target_id, target_name, target_contact,
		                                config, status, retry_count, max_retries, next_retry_at,
		                                status_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`
	batch := &pgx.Batch{}
	for _, u := range units {
		cfg, err := json.Marshal(u.Config)
		if err != nil {
			return fmt.Errorf("encode channel config: %w", err)
		}
		batch.Queue(query,
			u.ID, u.AlertID, u.Channel, u.TargetID, u.TargetName, u.TargetContact,
			cfg, u.Status, u.RetryCount, u.MaxRetries, u.NextRetryAt,
			u.StatusMessage, u.CreatedAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert units: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetUnit retrieves a unit by ID.
func (r *Repository) GetUnit(ctx context.Context, id string) (*domain.DistributionUnit, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, distribution.ErrUnitNotFound
	}

	query := `SELECT ` + unitColumns + ` FROM distribution_units WHERE id = $1`
	u, err := scanUnit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, distribution.ErrUnitNotFound
		}
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

// ListUnitsByAlert returns the units of an alert, oldest first.
func (r *Repository) ListUnitsByAlert(ctx context.Context, alertID string) ([]*domain.DistributionUnit, error) {
	if _, err := uuid.Parse(alertID); err != nil {
		return make([]*domain.DistributionUnit, 0), nil
	}

	query := `
		SELECT ` + unitColumns + `
		FROM distribution_units
		WHERE alert_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return collectUnits(rows)
}

// CountUnits groups an alert's units by channel and status.
func (r *Repository) CountUnits(ctx context.Context, alertID string) ([]distribution.UnitCount, error) {
	counts := make([]distribution.UnitCount, 0)
	if _, err := uuid.Parse(alertID); err != nil {
		return counts, nil
	}

	query := `
		SELECT channel, status, COUNT(*)
		FROM distribution_units
		WHERE alert_id = $1
		GROUP BY channel, status
	`
	rows, err := r.db.Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("count units: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c distribution.UnitCount
		if err := rows.Scan(&c.Channel, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan unit count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit counts: %w", err)
	}

	return counts, nil
}

// ClaimDue moves due units to sending. Rows locked by a concurrent claim are skipped.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.DistributionUnit, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM distribution_units
			WHERE status IN ('pending', 'failed')
			  AND retry_count < max_retries
			  AND (next_retry_at IS NULL OR next_retry_at <= $1)
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE distribution_units u
		SET status = 'sending', sent_at = $1, updated_at = $1
		FROM due
		WHERE u.id = due.id
		RETURNING u.id, u.alert_id, u.channel, u.target_id, u.target_name, u.target_contact, u.config,
		          u.status, u.retry_count, u.max_retries, u.next_retry_at, u.status_message,
		          u.sent_at, u.failed_at, u.created_at, u.updated_at
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim units: %w", err)
	}
	units, err := collectUnits(rows)
	if err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the CTE order.
	sort.Slice(units, func(i, j int) bool {
		if units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].ID < units[j].ID
		}
		return units[i].CreatedAt.Before(units[j].CreatedAt)
	})
	return units, nil
}

// ListStale returns units left in sending since before olderThan.
func (r *Repository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*domain.DistributionUnit, error) {
	query := `
		SELECT ` + unitColumns + `
		FROM distribution_units
		WHERE status = 'sending' AND updated_at < $1
		ORDER BY created_at, id
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale units: %w", err)
	}
	return collectUnits(rows)
}

// MarkSent records a successful send.
func (r *Repository) MarkSent(ctx context.Context, id string, sentAt time.Time, message string) error {
	query := `
		UPDATE distribution_units
		SET status = 'sent', sent_at = $2, next_retry_at = NULL, status_message = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`
	return r.updateSending(ctx, id, query, sentAt, message)
}

// MarkQueued parks a unit for manual approval.
func (r *Repository) MarkQueued(ctx context.Context, id string, message string) error {
	query := `
		UPDATE distribution_units
		SET status = 'queued', next_retry_at = NULL, status_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`
	return r.updateSending(ctx, id, query, message)
}

// MarkFailed records a failed attempt.
func (r *Repository) MarkFailed(ctx context.Context, id string, update distribution.FailureUpdate) error {
	query := `
		UPDATE distribution_units
		SET status = 'failed', retry_count = $2, next_retry_at = $3, failed_at = $4,
		    sent_at = NULL, status_message = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`
	return r.updateSending(ctx, id, query, update.RetryCount, update.NextRetryAt, update.FailedAt, update.Message)
}

// MarkDelivered confirms delivery of a sent unit.
func (r *Repository) MarkDelivered(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return distribution.ErrUnitNotFound
	}

	query := `
		UPDATE distribution_units
		SET status = 'delivered', updated_at = NOW()
		WHERE id = $1 AND status = 'sent'
	`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetUnit(ctx, id); err != nil {
		return err
	}
	return distribution.ErrInvalidTransition
}

// CancelByAlert cancels every cancellable unit of an alert.
func (r *Repository) CancelByAlert(ctx context.Context, alertID, reason string) (int, error) {
	if _, err := uuid.Parse(alertID); err != nil {
		return 0, nil
	}

	query := `
		UPDATE distribution_units
		SET status = 'cancelled', status_message = $2, next_retry_at = NULL, updated_at = NOW()
		WHERE alert_id = $1
		  AND (status IN ('pending', 'queued')
		       OR (status = 'failed' AND next_retry_at IS NOT NULL AND retry_count < max_retries))
	`
	result, err := r.db.Exec(ctx, query, alertID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel units: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// AppendEvent stores an audit event.
func (r *Repository) AppendEvent(ctx context.Context, event *domain.AuditEvent) error {
	query := `
		INSERT INTO distribution_events (id, alert_id, unit_id, type, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, event.ID, event.AlertID, event.UnitID, event.Type, event.Message, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns an alert's audit events in insertion order.
func (r *Repository) ListEvents(ctx context.Context, alertID string) ([]*domain.AuditEvent, error) {
	events := make([]*domain.AuditEvent, 0)
	if _, err := uuid.Parse(alertID); err != nil {
		return events, nil
	}

	query := `
		SELECT id, alert_id, unit_id, type, message, created_at
		FROM distribution_events
		WHERE alert_id = $1
		ORDER BY created_at, seq
	`
	rows, err := r.db.Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.AlertID, &e.UnitID, &e.Type, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// RecordWebhookDelivery stores a webhook delivery outcome.
func (r *Repository) RecordWebhookDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (id, unit_id, alert_id, partner_id, url, success,
		                                status_code, duration_ms, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		d.ID, d.UnitID, d.AlertID, d.PartnerID, d.URL, d.Success,
		d.StatusCode, d.Duration.Milliseconds(), d.ErrorMessage, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record webhook delivery: %w", err)
	}
	return nil
}

// GetQueueStats counts units by status.
func (r *Repository) GetQueueStats(ctx context.Context) (map[domain.DistributionStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM distribution_units GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.DistributionStatus]int)
	for rows.Next() {
		var (
			status domain.DistributionStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue stats: %w", err)
	}

	return stats, nil
}

// updateSending runs a conditional update and explains a miss.
func (r *Repository) updateSending(ctx context.Context, id, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update unit: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetUnit(ctx, id); err != nil {
		return err
	}
	return distribution.ErrUnitStateChanged
}

func collectUnits(rows pgx.Rows) ([]*domain.DistributionUnit, error) {
	defer rows.Close()

	units := make([]*domain.DistributionUnit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}

	return units, nil
}

func scanUnit(row pgx.Row) (*domain.DistributionUnit, error) {
	var (
		u   domain.DistributionUnit
		cfg []byte
	)
	err := row.Scan(
		&u.ID,
		&u.AlertID,
		&u.Channel,
		&u.TargetID,
		&u.TargetName,
		&u.TargetContact,
		&cfg,
		&u.Status,
		&u.RetryCount,
		&u.MaxRetries,
		&u.NextRetryAt,
		&u.StatusMessage,
		&u.SentAt,
		&u.FailedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &u.Config); err != nil {
			return nil, fmt.Errorf("decode channel config: %w", err)
		}
	}

	return &u, nil
}
