package collect

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainLimiter enforces the politeness delay per target domain. Each domain
// gets its own token bucket, so a burst of queries against different domains
// is never serialized behind one slow host.
type DomainLimiter struct {
	mu       sync.Mutex
	delay    time.Duration
	limiters map[string]*rate.Limiter
}

func NewDomainLimiter(delay time.Duration) *DomainLimiter {
	return &DomainLimiter{
		delay:    delay,
		limiters: map[string]*rate.Limiter{},
	}
}

// Wait blocks until a request to domain is allowed or ctx is done.
func (d *DomainLimiter) Wait(ctx context.Context, domain string) error {
	if d.delay <= 0 {
		return nil
	}

	d.mu.Lock()
	lim, ok := d.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(rate.Every(d.delay), 1)
		d.limiters[domain] = lim
	}
	d.mu.Unlock()

	return lim.Wait(ctx)
}
