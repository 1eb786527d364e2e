package distribution

import "time"

// SetClock replaces the processor clock.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// Backoff exposes the retry delay for a given attempt number.
func (p *Processor) Backoff(retryCount int) time.Duration {
	return p.backoff(retryCount)
}

// StaleAfter exposes the effective stale threshold.
func (p *Processor) StaleAfter() time.Duration {
	return p.config.StaleAfter
}
