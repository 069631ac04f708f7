package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/emblem-crawler/internal/metrics"
)

// HostLimiter enforces the per-host courtesy interval plus the long cooldown
// circuit breaker applied after a rate-limit signal. Shared by every call
// site that touches the network.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cooldown map[string]time.Time

	interval     time.Duration
	cooldownTime time.Duration
	now          func() time.Time
}

// NewHostLimiter builds a limiter with one token per interval per host.
func NewHostLimiter(interval, cooldown time.Duration) *HostLimiter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &HostLimiter{
		limiters:     make(map[string]*rate.Limiter),
		cooldown:     make(map[string]time.Time),
		interval:     interval,
		cooldownTime: cooldown,
		now:          time.Now,
	}
}

// Acquire blocks until the host may be contacted: first any active cooldown
// expires, then a rate token becomes available.
func (l *HostLimiter) Acquire(ctx context.Context, host string) error {
	host = strings.ToLower(host)
	if until, ok := l.cooldownUntil(host); ok {
		if err := sleepUntil(ctx, until, l.now); err != nil {
			return fmt.Errorf("cooldown wait for %s: %w", host, err)
		}
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := l.now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := l.now().Sub(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Block places the host in cooldown. This is the circuit breaker for 429s
// and interstitial pages, distinct from ordinary retry backoff.
func (l *HostLimiter) Block(host string) {
	host = strings.ToLower(host)
	l.mu.Lock()
	l.cooldown[host] = l.now().Add(l.cooldownTime)
	l.mu.Unlock()
	metrics.IncHostCooldown(host)
}

// Cooling reports whether the host is currently in cooldown.
func (l *HostLimiter) Cooling(host string) bool {
	_, ok := l.cooldownUntil(strings.ToLower(host))
	return ok
}

func (l *HostLimiter) cooldownUntil(host string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.cooldown[host]
	if !ok || !l.now().Before(until) {
		delete(l.cooldown, host)
		return time.Time{}, false
	}
	return until, true
}

func sleepUntil(ctx context.Context, until time.Time, now func() time.Time) error {
	delay := until.Sub(now())
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
