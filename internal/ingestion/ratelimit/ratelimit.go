// Package ratelimit bounds how much work one sender can push through the
// inspector: a byte-rate limiter per session and a cap on the number of
// concurrent sessions.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter admits or rejects n bytes without blocking.
type RateLimiter interface {
	Allow(n int) bool
	// Rate returns the limit in bytes per second, 0 when unlimited.
	Rate() int64
}

// ByteLimiter is a token bucket over bytes backed by x/time/rate. The
// bucket holds one second of traffic so keyframe bursts pass.
type ByteLimiter struct {
	limiter *rate.Limiter
	rate    int64
}

// NewByteLimiter limits to bitsPerSecond. A non-positive rate admits
// everything.
func NewByteLimiter(bitsPerSecond int64) *ByteLimiter {
	if bitsPerSecond <= 0 {
		return &ByteLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}

	bytesPerSecond := bitsPerSecond / 8
	burst := int(bytesPerSecond)
	if burst < 1500 {
		burst = 1500
	}
	return &ByteLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		rate:    bytesPerSecond,
	}
}

func (b *ByteLimiter) Allow(n int) bool {
	return b.limiter.AllowN(time.Now(), n)
}

func (b *ByteLimiter) Rate() int64 {
	return b.rate
}

// SessionLimiter caps the number of live sessions.
type SessionLimiter struct {
	maxTotal int

	mu    sync.Mutex
	total int
}

// NewSessionLimiter allows up to maxTotal sessions; 0 means no cap.
func NewSessionLimiter(maxTotal int) *SessionLimiter {
	return &SessionLimiter{maxTotal: maxTotal}
}

// TryAcquire takes a session slot, reporting false when none is left.
func (sl *SessionLimiter) TryAcquire() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.maxTotal > 0 && sl.total >= sl.maxTotal {
		return false
	}
	sl.total++
	return true
}

func (sl *SessionLimiter) Release() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.total > 0 {
		sl.total--
	}
}
