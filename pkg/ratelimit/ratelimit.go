// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCleanupInterval = 10 * time.Minute
	defaultMaxIdle         = 30 * time.Minute
)

type contextKey struct{}

// WithClientID attaches the caller identity used as the bucket key.
// Socket servers set it from peer credentials when a connection is
// accepted.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ClientID returns the identity set by WithClientID, falling back to the
// remote address. Forwarding headers are ignored; every caller shares
// the local host.
func ClientID(r *http.Request) string {
	if id, ok := r.Context().Value(contextKey{}).(string); ok && id != "" {
		return id
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// Config holds rate limiter configuration.
type Config struct {
	Enabled bool

	// RequestsPerMinute is the sustained rate per peer.
	RequestsPerMinute int

	// Burst defaults to RequestsPerMinute.
	Burst int

	// CleanupInterval defaults to 10 minutes.
	CleanupInterval time.Duration

	// MaxIdle is how long a peer bucket survives without calls.
	// Defaults to 30 minutes.
	MaxIdle time.Duration
}

type peer struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per peer. A disabled limiter allows
// everything and starts no goroutine.
type Limiter struct {
	rate    rate.Limit
	burst   int
	enabled bool
	maxIdle time.Duration

	mu    sync.Mutex
	peers map[string]*peer

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter. A nil config disables limiting.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = &Config{}
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = cfg.RequestsPerMinute
	}
	interval := cfg.CleanupInterval
	if interval == 0 {
		interval = defaultCleanupInterval
	}
	maxIdle := cfg.MaxIdle
	if maxIdle == 0 {
		maxIdle = defaultMaxIdle
	}

	l := &Limiter{
		rate:    rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:   burst,
		enabled: cfg.Enabled,
		maxIdle: maxIdle,
		peers:   make(map[string]*peer),
		stop:    make(chan struct{}),
	}
	if l.enabled {
		go l.sweep(interval)
	}
	return l
}

// Allow reports whether a call from id is within its peer's rate.
func (l *Limiter) Allow(id string) bool {
	if !l.enabled {
		return true
	}
	l.mu.Lock()
	p, ok := l.peers[id]
	if !ok {
		p = &peer{bucket: rate.NewLimiter(l.rate, l.burst)}
		l.peers[id] = p
	}
	p.lastSeen = time.Now()
	l.mu.Unlock()
	return p.bucket.Allow()
}

// Stop ends the idle sweep. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, p := range l.peers {
		if now.Sub(p.lastSeen) > l.maxIdle {
			delete(l.peers, id)
		}
	}
}

// Middleware rejects calls over the peer's rate with 429.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientID(r)) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
