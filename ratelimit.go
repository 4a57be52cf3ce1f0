package main

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// idleLimiterTTL is how long an unused per-IP limiter is kept.
const idleLimiterTTL = 5 * time.Minute

// RateLimiter implements a token bucket rate limiter
// Allows bursts up to maxTokens, refilling at refillRate tokens per second
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests per second with
// bursts of the same size. A rate of 0 or less allows everything.
func NewRateLimiter(rate int, now time.Time) *RateLimiter {
	if rate <= 0 {
		return &RateLimiter{tokens: 1, maxTokens: 1, lastRefill: now}
	}
	return &RateLimiter{
		tokens:     float64(rate),
		maxTokens:  float64(rate),
		refillRate: float64(rate),
		lastRefill: now,
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.refillRate == 0 {
		return true
	}

	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

func (rl *RateLimiter) idleSince(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return now.Sub(rl.lastRefill)
}

// IPRateLimiter keeps one token bucket per client IP for the HTTP API.
type IPRateLimiter struct {
	limiters  map[string]*RateLimiter
	rate      int // requests per second per IP
	lastSweep time.Time
	clock     func() time.Time
	mu        sync.Mutex
}

// NewIPRateLimiter limits each IP to rate requests per second. A rate of 0
// or less disables limiting.
func NewIPRateLimiter(rate int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters:  make(map[string]*RateLimiter),
		rate:      rate,
		clock:     time.Now,
		lastSweep: time.Now(),
	}
}

// Allow checks a request from ip. Limiters idle for five minutes are
// dropped along the way.
func (l *IPRateLimiter) Allow(ip string) bool {
	if l.rate <= 0 {
		return true
	}
	now := l.clock()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > idleLimiterTTL {
		l.sweepLocked(now)
	}
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = NewRateLimiter(l.rate, now)
		l.limiters[ip] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow(now)
}

func (l *IPRateLimiter) sweepLocked(now time.Time) {
	for ip, limiter := range l.limiters {
		if limiter.idleSince(now) > idleLimiterTTL {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
}

// Len returns the number of tracked IPs.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware rejects requests over the limit with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	if l.rate <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !l.Allow(host) {
			if DebugMode {
				log.Printf("HTTP: rate limit exceeded for %s %s", host, r.URL.Path)
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
