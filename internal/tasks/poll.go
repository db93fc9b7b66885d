package tasks

import (
	"context"
	"time"

	"github.com/desertthunder/vgen/internal/shared"
)

// PollPolicy bounds how a [Session] waits for a job.
//
// The n-th wait is Initial * Multiplier^n, capped at Max. Polling gives up after MaxAttempts queries.
type PollPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultPollPolicy waits 2s, growing by 1.5x up to 5s, for at most 360 queries (about half an hour).
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Initial:     2 * time.Second,
		Max:         5 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 360,
	}
}

// PollPolicyFromConfig reads the [gateway] poll settings; zero values keep the defaults.
func PollPolicyFromConfig(cfg shared.GatewayConfig) PollPolicy {
	p := DefaultPollPolicy()
	if cfg.PollInitialMS > 0 {
		p.Initial = time.Duration(cfg.PollInitialMS) * time.Millisecond
	}
	if cfg.PollMaxMS > 0 {
		p.Max = time.Duration(cfg.PollMaxMS) * time.Millisecond
	}
	if cfg.PollMultiplier >= 1 {
		p.Multiplier = cfg.PollMultiplier
	}
	if cfg.PollMaxAttempts > 0 {
		p.MaxAttempts = cfg.PollMaxAttempts
	}
	return p.normalized()
}

func (p PollPolicy) normalized() PollPolicy {
	def := DefaultPollPolicy()
	if p.Initial <= 0 {
		p.Initial = def.Initial
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// Delay returns the wait before the query following the n-th one (0-based).
func (p PollPolicy) Delay(n int) time.Duration {
	p = p.normalized()
	d := float64(p.Initial)
	for i := 0; i < n && d < float64(p.Max); i++ {
		d *= p.Multiplier
	}
	if d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
