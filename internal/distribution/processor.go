package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/pkg/ctxlog"
	"golang.org/x/sync/errgroup"
)

// AlertReader loads alerts by ID.
type AlertReader interface {
	GetAlert(ctx context.Context, id string) (*domain.Alert, error)
}

// ProcessorConfig contains sweep configuration.
type ProcessorConfig struct {
	BatchSize      int
	Concurrency    int
	RetryBaseDelay time.Duration
	StaleAfter     time.Duration
	DefaultTimeout time.Duration
	Timeouts       map[domain.Channel]time.Duration
}

// DefaultProcessorConfig returns default processor configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:      50,
		Concurrency:    10,
		RetryBaseDelay: time.Minute,
		StaleAfter:     15 * time.Minute,
		DefaultTimeout: time.Minute,
		Timeouts: map[domain.Channel]time.Duration{
			domain.ChannelWebhook: 30 * time.Second,
			domain.ChannelEmail:   5 * time.Minute,
			domain.ChannelSMS:     5 * time.Minute,
			domain.ChannelPush:    5 * time.Minute,
		},
	}
}

const recordTimeout = 10 * time.Second

// MinStaleAfter is the shortest stale threshold that cannot catch a unit
// whose send is still in flight: the longest send timeout plus the time
// allowed to record its outcome.
func MinStaleAfter(defaultTimeout time.Duration, timeouts map[domain.Channel]time.Duration) time.Duration {
	longest := defaultTimeout
	for _, d := range timeouts {
		longest = max(longest, d)
	}
	return longest + recordTimeout
}

// Processor claims due units and sends them.
type Processor struct {
	config     ProcessorConfig
	repo       Repository
	alerts     AlertReader
	dispatcher *Dispatcher
	auditor    *Auditor
	now        func() time.Time
}

// NewProcessor creates a new processor.
func NewProcessor(config ProcessorConfig, repo Repository, alerts AlertReader, dispatcher *Dispatcher, auditor *Auditor) *Processor {
	defaults := DefaultProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}
	if config.Timeouts == nil {
		config.Timeouts = defaults.Timeouts
	}
	// A unit may only be reclaimed once its send can no longer be running.
	if floor := MinStaleAfter(config.DefaultTimeout, config.Timeouts); config.StaleAfter < floor {
		slog.Warn("stale_after is shorter than the longest send, raising it",
			"stale_after", config.StaleAfter, "raised_to", floor)
		config.StaleAfter = floor
	}

	return &Processor{
		config:     config,
		repo:       repo,
		alerts:     alerts,
		dispatcher: dispatcher,
		auditor:    auditor,
		now:        time.Now,
	}
}

// Sweep claims up to BatchSize due units, sends them with bounded
// concurrency and records each outcome. It returns the number of units claimed.
func (p *Processor) Sweep(ctx context.Context) (int, error) {
	units, err := p.repo.ClaimDue(ctx, p.now().UTC(), p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due units: %w", err)
	}
	if len(units) == 0 {
		return 0, nil
	}

	slog.Debug("processing distribution units", "count", len(units))
	recordClaimed(len(units))

	alerts := p.loadAlerts(ctx, units)

	var g errgroup.Group
	g.SetLimit(p.config.Concurrency)
	for _, unit := range units {
		g.Go(func() error {
			p.processUnit(ctx, unit, alerts[unit.AlertID])
			return nil
		})
	}
	_ = g.Wait()

	return len(units), nil
}

// RecoverStale treats units stuck in sending as failed attempts.
func (p *Processor) RecoverStale(ctx context.Context) (int, error) {
	olderThan := p.now().UTC().Add(-p.config.StaleAfter)
	units, err := p.repo.ListStale(ctx, olderThan, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale units: %w", err)
	}

	recovered := 0
	perAlert := make(map[string]int)
	for _, unit := range units {
		if p.recordFailure(unitContext(ctx, unit), unit, errors.New("delivery interrupted before an outcome was recorded")) {
			recovered++
			perAlert[unit.AlertID]++
		}
	}

	for alertID, n := range perAlert {
		p.auditor.LogEvent(ctx, alertID, domain.AuditStaleUnitsRecovered,
			fmt.Sprintf("Recovered %d units stuck in sending", n), nil)
	}

	if recovered > 0 {
		slog.Warn("recovered stale distribution units", "count", recovered)
	}
	return recovered, nil
}

func (p *Processor) loadAlerts(ctx context.Context, units []*domain.DistributionUnit) map[string]*domain.Alert {
	alerts := make(map[string]*domain.Alert)
	for _, u := range units {
		if _, ok := alerts[u.AlertID]; ok {
			continue
		}
		alert, err := p.alerts.GetAlert(ctx, u.AlertID)
		if err != nil {
			slog.Error("failed to load alert for distribution", "alert_id", u.AlertID, "error", err)
			alerts[u.AlertID] = nil
			continue
		}
		alerts[u.AlertID] = alert
	}
	return alerts
}

func (p *Processor) processUnit(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) {
	ctx = unitContext(ctx, unit)
	start := time.Now()

	var (
		res Result
		err error
	)
	// Regulated units wait for approval whatever the alert lookup returned.
	if alert == nil && unit.Channel != domain.ChannelRegulatedBroadcast {
		err = fmt.Errorf("load alert %s: %w", unit.AlertID, ErrAlertNotFound)
	} else {
		sendCtx, cancel := context.WithTimeout(ctx, p.timeoutFor(unit.Channel))
		res, err = p.dispatcher.Send(sendCtx, unit, alert)
		cancel()
	}
	recordSendDuration(unit.Channel, time.Since(start))

	// Outcomes are recorded even when the sweep context is being cancelled.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	switch {
	case err == nil:
		p.recordSuccess(recordCtx, unit, res)
	case errors.Is(err, ErrApprovalRequired):
		p.recordQueued(recordCtx, unit)
	default:
		p.recordFailure(recordCtx, unit, err)
	}
}

func (p *Processor) recordSuccess(ctx context.Context, unit *domain.DistributionUnit, res Result) {
	message := res.Note
	if message == "" {
		message = "Sent"
	}

	logger := ctxlog.FromContext(ctx)
	if err := p.repo.MarkSent(ctx, unit.ID, p.now().UTC(), message); err != nil {
		logger.Error("failed to mark unit as sent", "error", err)
		return
	}

	recordUnitProcessed(unit.Channel, "sent")
	logger.Debug("distribution unit sent",
		"recipients", res.Sent,
		"recipients_failed", res.Failed,
	)
}

func (p *Processor) recordQueued(ctx context.Context, unit *domain.DistributionUnit) {
	if err := p.repo.MarkQueued(ctx, unit.ID, domain.ApprovalPendingMessage); err != nil {
		ctxlog.FromContext(ctx).Error("failed to mark unit as queued", "error", err)
		return
	}

	recordUnitProcessed(unit.Channel, "queued")
	p.auditor.LogEvent(ctx, unit.AlertID, domain.AuditUnitQueued,
		fmt.Sprintf("%s queued for manual approval", unit.TargetName), &unit.ID)
}

// recordFailure applies the retry policy and reports whether the update was stored.
func (p *Processor) recordFailure(ctx context.Context, unit *domain.DistributionUnit, sendErr error) bool {
	now := p.now().UTC()
	update := FailureUpdate{
		RetryCount: unit.RetryCount + 1,
		FailedAt:   now,
		Message:    sendErr.Error(),
	}

	terminal := update.RetryCount >= unit.MaxRetries
	if !terminal {
		next := now.Add(p.backoff(update.RetryCount))
		update.NextRetryAt = &next
	}

	logger := ctxlog.FromContext(ctx)
	if err := p.repo.MarkFailed(ctx, unit.ID, update); err != nil {
		logger.Error("failed to mark unit as failed", "error", err)
		return false
	}

	if terminal {
		recordUnitProcessed(unit.Channel, "failed")
		logger.Warn("distribution unit failed permanently",
			"attempts", update.RetryCount,
			"error", sendErr,
		)
		p.auditor.LogEvent(ctx, unit.AlertID, domain.AuditUnitFailed,
			fmt.Sprintf("%s failed after %d attempts: %s", unit.TargetName, update.RetryCount, sendErr), &unit.ID)
		return true
	}

	recordUnitProcessed(unit.Channel, "retry")
	logger.Info("distribution unit scheduled for retry",
		"attempt", update.RetryCount,
		"next_retry_at", update.NextRetryAt,
		"error", sendErr,
	)
	return true
}

func unitContext(ctx context.Context, unit *domain.DistributionUnit) context.Context {
	return ctxlog.With(ctx, "unit_id", unit.ID, "alert_id", unit.AlertID, "channel", unit.Channel)
}

// backoff returns base * 2^retryCount.
func (p *Processor) backoff(retryCount int) time.Duration {
	if retryCount > 20 {
		retryCount = 20
	}
	return p.config.RetryBaseDelay * time.Duration(1<<retryCount)
}

func (p *Processor) timeoutFor(channel domain.Channel) time.Duration {
	if d, ok := p.config.Timeouts[channel]; ok && d > 0 {
		return d
	}
	return p.config.DefaultTimeout
}
