package crawler

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out crawl steps the way a person browsing would: a normally
// distributed pause after every step, and optionally a hard cap on how
// many navigations start per second.
type Pacer struct {
	mean    time.Duration
	stddev  time.Duration
	limiter *rate.Limiter
	normal  func() float64
}

// NewPacer returns a Pacer pausing mean +/- stddev between steps.
// A perSecond of zero disables the navigation limiter.
func NewPacer(mean, stddev time.Duration, perSecond float64) *Pacer {
	p := &Pacer{
		mean:   mean,
		stddev: stddev,
		normal: rand.NormFloat64,
	}
	if perSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return p
}

// Jitter draws the next pause. It is never negative.
func (p *Pacer) Jitter() time.Duration {
	d := p.mean + time.Duration(p.normal()*float64(p.stddev))
	if d < 0 {
		return 0
	}
	return d
}

// Pause sleeps for the next jittered interval or until ctx ends.
func (p *Pacer) Pause(ctx context.Context) error {
	if p == nil || p.mean <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Jitter())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until the limiter allows another navigation.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}
