package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 3 * time.Minute
	limiterStaleAfter      = 5 * time.Minute
)

// clientLimiter holds a rate limiter and the last time it was seen.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	mu                sync.Mutex
	limiters          map[string]*clientLimiter
	rate              rate.Limit
	burst             int
	trustForwardedFor bool
	stop              chan struct{}
	stopOnce          sync.Once
}

type RateLimiterOption func(*RateLimiter)

// TrustForwardedFor keys clients by the first X-Forwarded-For address.
// Only safe behind a proxy that overwrites the header.
func TrustForwardedFor() RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.trustForwardedFor = true
	}
}

// NewRateLimiter creates a per client rate limiter and starts its cleanup loop.
// Clients are keyed by the connection's remote address.
func NewRateLimiter(r rate.Limit, burst int, options ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     r,
		burst:    burst,
		stop:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(rl)
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) getLimiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[client]; exists {
		l.lastSeen = time.Now()
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[client] = &clientLimiter{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for client, l := range rl.limiters {
				if time.Since(l.lastSeen) > limiterStaleAfter {
					delete(rl.limiters, client)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(rl.clientIP(r)).Allow() {
			retryAfter := 1
			if rl.rate > 0 {
				retryAfter = max(int(1.0/float64(rl.rate)), 1)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "too many login attempts", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.trustForwardedFor {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
