package main

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window in-memory rate limiter keyed by client
// identifier (IP address or session id).
type RateLimiter struct {
	mu          sync.Mutex
	windowMs    int64
	maxRequests int
	requests    map[string][]int64
	now         func() time.Time
}

// RateLimitResult reports the outcome of one admission check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetTime int64
}

func NewRateLimiter(window time.Duration, maxRequests int) *RateLimiter {
	return &RateLimiter{
		windowMs:    window.Milliseconds(),
		maxRequests: maxRequests,
		requests:    make(map[string][]int64),
		now:         time.Now,
	}
}

// IsAllowed checks whether the identifier may proceed and records the
// request when it may. Stale entries across all identifiers are pruned on
// each call so the map never grows unbounded.
func (rl *RateLimiter) IsAllowed(identifier string) RateLimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UnixMilli()
	windowStart := now - rl.windowMs

	for key, timestamps := range rl.requests {
		valid := timestamps[:0]
		for _, t := range timestamps {
			if t > windowStart {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}

	valid := rl.requests[identifier]
	if len(valid) >= rl.maxRequests {
		oldest := valid[0]
		for _, t := range valid {
			if t < oldest {
				oldest = t
			}
		}
		return RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetTime: oldest + rl.windowMs,
		}
	}

	rl.requests[identifier] = append(valid, now)
	return RateLimitResult{
		Allowed:   true,
		Remaining: rl.maxRequests - len(valid) - 1,
		ResetTime: now + rl.windowMs,
	}
}
