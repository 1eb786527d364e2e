package distribution

import (
	"context"
	"fmt"
	"strings"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/pkg/ctxlog"
)

// Trigger requests an out-of-band sweep.
type Trigger interface {
	Trigger()
}

// Request asks for an alert to be distributed.
// Empty Channels and TargetProvinces fall back to the alert's defaults.
type Request struct {
	AlertID          string
	Channels         []domain.Channel
	TargetProvinces  []string
	PartnerIDs       []string
	MediaIDs         []string
	RegulatedSystems []domain.RegulatedSystem
}

// RequestResult is the outcome of a distribution request.
type RequestResult struct {
	Success              bool     `json:"success"`
	DistributionsCreated int      `json:"distributions_created"`
	Summary              *Summary `json:"summary"`
}

// Service implements distribution business logic.
type Service struct {
	repo      Repository
	alerts    AlertReader
	resolver  *Resolver
	auditor   *Auditor
	processor *Processor
	trigger   Trigger
}

// NewService creates a new distribution service. trigger may be nil.
func NewService(repo Repository, alerts AlertReader, resolver *Resolver, auditor *Auditor, processor *Processor, trigger Trigger) *Service {
	return &Service{
		repo:      repo,
		alerts:    alerts,
		resolver:  resolver,
		auditor:   auditor,
		processor: processor,
		trigger:   trigger,
	}
}

// RequestDistribution resolves targets for an active alert and stores one
// pending unit per target, then kicks off an immediate sweep.
func (s *Service) RequestDistribution(ctx context.Context, req Request) (*RequestResult, error) {
	alert, err := s.alerts.GetAlert(ctx, req.AlertID)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if !alert.IsActive() {
		return nil, fmt.Errorf("%w: status %s", ErrAlertNotActive, alert.Status)
	}

	channels := req.Channels
	if len(channels) == 0 {
		channels = alert.DefaultChannels
	}
	provinces := req.TargetProvinces
	if len(provinces) == 0 {
		provinces = alert.TargetProvinces
	}

	units, err := s.resolver.Resolve(ctx, alert, ResolveInput{
		Channels:         channels,
		Provinces:        provinces,
		PartnerIDs:       req.PartnerIDs,
		MediaIDs:         req.MediaIDs,
		RegulatedSystems: req.RegulatedSystems,
	})
	if err != nil {
		return nil, err
	}

	if len(units) > 0 {
		if err := s.repo.CreateUnits(ctx, units); err != nil {
			return nil, fmt.Errorf("create units: %w", err)
		}
		recordUnitsCreated(units)
	}

	ctxlog.FromContext(ctx).Info("distribution requested",
		"alert_id", alert.ID,
		"channels", channels,
		"units", len(units),
	)

	s.auditor.LogEvent(ctx, alert.ID, domain.AuditDistributionStarted,
		fmt.Sprintf("Distribution requested on %s: %d targets", joinChannels(channels), len(units)), nil)

	if s.trigger != nil && len(units) > 0 {
		s.trigger.Trigger()
	}

	// Units already exist and may be sending; a failed count must not make the
	// caller retry the request and duplicate them.
	summary, err := s.Summarize(ctx, alert.ID)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("distribution created without summary", "alert_id", alert.ID, "error", err)
	}

	return &RequestResult{
		Success:              true,
		DistributionsCreated: len(units),
		Summary:              summary,
	}, nil
}

// Summarize returns unit counts for an alert.
func (s *Service) Summarize(ctx context.Context, alertID string) (*Summary, error) {
	counts, err := s.repo.CountUnits(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("count units: %w", err)
	}
	return BuildSummary(alertID, counts), nil
}

// ListUnits returns all units of an alert.
func (s *Service) ListUnits(ctx context.Context, alertID string) ([]*domain.DistributionUnit, error) {
	units, err := s.repo.ListUnitsByAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// ListEvents returns the audit log of an alert.
func (s *Service) ListEvents(ctx context.Context, alertID string) ([]*domain.AuditEvent, error) {
	events, err := s.repo.ListEvents(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Cancel stops every unit of the alert that has not been attempted for good
// and returns how many were cancelled. Units being sent are left alone.
func (s *Service) Cancel(ctx context.Context, alertID, reason string) (int, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Cancelled"
	}

	n, err := s.repo.CancelByAlert(ctx, alertID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel units: %w", err)
	}

	s.auditor.LogEvent(ctx, alertID, domain.AuditDistributionsCancelled,
		fmt.Sprintf("Cancelled %d distributions: %s", n, reason), nil)

	return n, nil
}

// ConfirmDelivery moves a sent unit to delivered.
func (s *Service) ConfirmDelivery(ctx context.Context, unitID string) (*domain.DistributionUnit, error) {
	if err := s.repo.MarkDelivered(ctx, unitID); err != nil {
		return nil, err
	}

	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	s.auditor.LogEvent(ctx, unit.AlertID, domain.AuditDeliveryConfirmed,
		fmt.Sprintf("%s confirmed delivery", unit.TargetName), &unit.ID)

	return unit, nil
}

// Sweep runs one dispatch pass immediately.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.processor.Sweep(ctx)
}

func joinChannels(channels []domain.Channel) string {
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
