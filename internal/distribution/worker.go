package distribution

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	PollInterval time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: time.Minute,
	}
}

// Sweeper runs one dispatch pass.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	RecoverStale(ctx context.Context) (int, error)
}

// Worker runs sweeps on a ticker and on demand.
type Worker struct {
	config  WorkerConfig
	sweeper Sweeper

	trigger chan struct{}
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewWorker creates a new distribution worker.
func NewWorker(config WorkerConfig, sweeper Sweeper) *Worker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerConfig().PollInterval
	}
	return &Worker{
		config:  config,
		sweeper: sweeper,
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting distribution worker", "poll_interval", w.config.PollInterval)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker and waits for the running sweep.
func (w *Worker) Stop() {
	w.stopped.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	slog.Info("distribution worker stopped")
}

// Trigger requests an immediate sweep. Requests made while one is already
// pending are coalesced; Trigger never blocks.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.recover(ctx)
			w.sweep(ctx)
		case <-w.trigger:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	n, err := w.sweeper.Sweep(ctx)
	if err != nil {
		slog.Error("distribution sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("distribution sweep completed", "processed", n)
	}
}

func (w *Worker) recover(ctx context.Context) {
	if _, err := w.sweeper.RecoverStale(ctx); err != nil {
		slog.Error("stale unit recovery failed", "error", err)
	}
}
