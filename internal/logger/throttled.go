package logger

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttled rate-limits log lines per key, so a misbehaving sender cannot
// flood the log with one warning per packet. Suppressed lines are counted
// and reported with the next line that gets through.
type Throttled struct {
	base     Logger
	interval time.Duration

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	suppressed map[string]int
}

func NewThrottled(base Logger, interval time.Duration) *Throttled {
	return &Throttled{
		base:       base,
		interval:   interval,
		limiters:   make(map[string]*rate.Limiter),
		suppressed: make(map[string]int),
	}
}

// Entry returns a logger for key if a line may be written now, carrying
// the number of suppressed lines since the last one, or nil otherwise.
func (t *Throttled) Entry(key string) Logger {
	t.mu.Lock()
	defer t.mu.Unlock()

	lim, ok := t.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[key] = lim
	}
	if !lim.Allow() {
		t.suppressed[key]++
		return nil
	}

	l := t.base
	if n := t.suppressed[key]; n > 0 {
		l = l.WithField("suppressed", n)
		delete(t.suppressed, key)
	}
	return l
}

// Warn logs msg under key unless the key is currently throttled.
func (t *Throttled) Warn(key string, fields map[string]interface{}, msg string) {
	if l := t.Entry(key); l != nil {
		l.WithFields(fields).Warn(msg)
	}
}

// Debug logs msg under key unless the key is currently throttled.
func (t *Throttled) Debug(key string, fields map[string]interface{}, msg string) {
	if l := t.Entry(key); l != nil {
		l.WithFields(fields).Debug(msg)
	}
}
