// Package memory provides an in-process implementation of the distribution repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
)

// Store implements distribution.Repository in memory.
// Units are copied on the way in and out so callers never share state with the store.
type Store struct {
	mu         sync.Mutex
	units      map[string]*domain.DistributionUnit
	events     []*domain.AuditEvent
	deliveries []*domain.WebhookDelivery
	now        func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		units: make(map[string]*domain.DistributionUnit),
		now:   time.Now,
	}
}

// CreateUnits stores new units.
func (s *Store) CreateUnits(_ context.Context, units []*domain.DistributionUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range units {
		s.units[u.ID] = cloneUnit(u)
	}
	return nil
}

// GetUnit returns a unit by ID.
func (s *Store) GetUnit(_ context.Context, id string) (*domain.DistributionUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[id]
	if !ok {
		return nil, distribution.ErrUnitNotFound
	}
	return cloneUnit(u), nil
}

// ListUnitsByAlert returns the units of an alert, oldest first.
func (s *Store) ListUnitsByAlert(_ context.Context, alertID string) ([]*domain.DistributionUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	units := make([]*domain.DistributionUnit, 0)
	for _, u := range s.sortedUnits() {
		if u.AlertID == alertID {
			units = append(units, cloneUnit(u))
		}
	}
	return units, nil
}

// CountUnits groups an alert's units by channel and status.
func (s *Store) CountUnits(_ context.Context, alertID string) ([]distribution.UnitCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		channel domain.Channel
		status  domain.DistributionStatus
	}
	counts := make(map[key]int)
	for _, u := range s.units {
		if u.AlertID == alertID {
			counts[key{u.Channel, u.Status}]++
		}
	}

	out := make([]distribution.UnitCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, distribution.UnitCount{Channel: k.channel, Status: k.status, Count: n})
	}
	return out, nil
}

// ClaimDue moves due units to sending.
func (s *Store) ClaimDue(_ context.Context, now time.Time, limit int) ([]*domain.DistributionUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := make([]*domain.DistributionUnit, 0)
	for _, u := range s.sortedUnits() {
		if len(claimed) >= limit {
			break
		}
		if !u.IsDue(now) {
			continue
		}
		sentAt := now
		u.Status = domain.DistributionStatusSending
		u.SentAt = &sentAt
		u.UpdatedAt = now
		claimed = append(claimed, cloneUnit(u))
	}
	return claimed, nil
}

// ListStale returns units in sending that were last touched before olderThan.
func (s *Store) ListStale(_ context.Context, olderThan time.Time, limit int) ([]*domain.DistributionUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := make([]*domain.DistributionUnit, 0)
	for _, u := range s.sortedUnits() {
		if len(stale) >= limit {
			break
		}
		if u.Status == domain.DistributionStatusSending && u.UpdatedAt.Before(olderThan) {
			stale = append(stale, cloneUnit(u))
		}
	}
	return stale, nil
}

// MarkSent records a successful send.
func (s *Store) MarkSent(_ context.Context, id string, sentAt time.Time, message string) error {
	return s.transition(id, domain.DistributionStatusSending, func(u *domain.DistributionUnit) {
		u.Status = domain.DistributionStatusSent
		u.SentAt = &sentAt
		u.NextRetryAt = nil
		u.StatusMessage = message
	})
}

// MarkQueued parks a unit for manual approval.
func (s *Store) MarkQueued(_ context.Context, id string, message string) error {
	return s.transition(id, domain.DistributionStatusSending, func(u *domain.DistributionUnit) {
		u.Status = domain.DistributionStatusQueued
		u.NextRetryAt = nil
		u.StatusMessage = message
	})
}

// MarkFailed records a failed attempt.
func (s *Store) MarkFailed(_ context.Context, id string, update distribution.FailureUpdate) error {
	return s.transition(id, domain.DistributionStatusSending, func(u *domain.DistributionUnit) {
		failedAt := update.FailedAt
		u.Status = domain.DistributionStatusFailed
		u.RetryCount = update.RetryCount
		u.NextRetryAt = update.NextRetryAt
		u.FailedAt = &failedAt
		u.SentAt = nil
		u.StatusMessage = update.Message
	})
}

// MarkDelivered confirms delivery of a sent unit.
func (s *Store) MarkDelivered(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[id]
	if !ok {
		return distribution.ErrUnitNotFound
	}
	if !domain.CanTransition(u.Status, domain.DistributionStatusDelivered) {
		return distribution.ErrInvalidTransition
	}
	u.Status = domain.DistributionStatusDelivered
	u.UpdatedAt = s.now().UTC()
	return nil
}

// CancelByAlert cancels every cancellable unit of an alert.
func (s *Store) CancelByAlert(_ context.Context, alertID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	n := 0
	for _, u := range s.units {
		if u.AlertID != alertID || !u.IsCancellable() {
			continue
		}
		u.Status = domain.DistributionStatusCancelled
		u.StatusMessage = reason
		u.NextRetryAt = nil
		u.UpdatedAt = now
		n++
	}
	return n, nil
}

// AppendEvent stores an audit event.
func (s *Store) AppendEvent(_ context.Context, event *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	s.events = append(s.events, &e)
	return nil
}

// ListEvents returns an alert's audit events in insertion order.
func (s *Store) ListEvents(_ context.Context, alertID string) ([]*domain.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*domain.AuditEvent, 0)
	for _, e := range s.events {
		if e.AlertID == alertID {
			c := *e
			events = append(events, &c)
		}
	}
	return events, nil
}

// RecordWebhookDelivery stores a webhook delivery outcome.
func (s *Store) RecordWebhookDelivery(_ context.Context, delivery *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := *delivery
	s.deliveries = append(s.deliveries, &d)
	return nil
}

// WebhookDeliveries returns every recorded webhook delivery.
func (s *Store) WebhookDeliveries() []domain.WebhookDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.WebhookDelivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		out = append(out, *d)
	}
	return out
}

// GetQueueStats counts units by status.
func (s *Store) GetQueueStats(_ context.Context) (map[domain.DistributionStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[domain.DistributionStatus]int)
	for _, u := range s.units {
		stats[u.Status]++
	}
	return stats, nil
}

// transition applies fn when the unit is in the expected status.
func (s *Store) transition(id string, from domain.DistributionStatus, fn func(u *domain.DistributionUnit)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[id]
	if !ok {
		return distribution.ErrUnitNotFound
	}
	if u.Status != from {
		return distribution.ErrUnitStateChanged
	}
	fn(u)
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) sortedUnits() []*domain.DistributionUnit {
	units := make([]*domain.DistributionUnit, 0, len(s.units))
	for _, u := range s.units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].ID < units[j].ID
		}
		return units[i].CreatedAt.Before(units[j].CreatedAt)
	})
	return units
}

func cloneUnit(u *domain.DistributionUnit) *domain.DistributionUnit {
	c := *u
	c.Config.Provinces = append([]string(nil), u.Config.Provinces...)
	if u.NextRetryAt != nil {
		t := *u.NextRetryAt
		c.NextRetryAt = &t
	}
	if u.SentAt != nil {
		t := *u.SentAt
		c.SentAt = &t
	}
	if u.FailedAt != nil {
		t := *u.FailedAt
		c.FailedAt = &t
	}
	return &c
}
