// Package ratelimit implements token bucket limiters keyed by client or by
// site host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/gallery-scraper/internal/metrics"
)

// maxKeys bounds the number of tracked keys; idle full buckets are pruned
// beyond it.
const maxKeys = 10000

// Limiter manages one token bucket per key.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	now          func() time.Time
}

// Config holds rate limiter configuration. A non-positive RPS disables
// limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		now:          time.Now,
	}
}

// IsAllowed consumes a token for clientKey if one is available.
func (l *Limiter) IsAllowed(clientKey string) bool {
	if l.bucket(clientKey).AllowN(l.now(), 1) {
		return true
	}
	metrics.ObserveRateLimited()
	return false
}

// RemainingWait reports how long clientKey must wait for its next token
// without consuming it.
func (l *Limiter) RemainingWait(clientKey string) time.Duration {
	now := l.now()
	r := l.bucket(clientKey).ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay
}

// Wait blocks until a token is available for the host of rawURL, respecting
// the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if ok {
		return limiter
	}
	if len(l.limiters) >= maxKeys {
		l.prune()
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[key] = limiter
	return limiter
}

// prune drops buckets that have refilled completely. Callers hold mu.
func (l *Limiter) prune() {
	now := l.now()
	for key, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.defaultBurst) {
			delete(l.limiters, key)
		}
	}
}
