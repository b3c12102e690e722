// Package health runs the service health checks and serves them over HTTP.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// ErrDegraded marks a check failure that leaves the service usable.
// Checkers wrap it to report StatusDegraded instead of StatusDown.
var ErrDegraded = errors.New("degraded")

// Check is the outcome of one checker run.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"-"`
	DurationMS  float64       `json:"duration_ms"`
}

type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Manager runs the registered checkers and keeps their last results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	results  map[string]*Check
	logger   *logrus.Logger
	timeout  time.Duration
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		results: make(map[string]*Check),
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
	m.logger.WithField("checker", checker.Name()).Debug("Registered health checker")
}

// RunChecks runs every checker concurrently, each bounded by the manager
// timeout, and stores the results.
func (m *Manager) RunChecks(ctx context.Context) map[string]*Check {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	checks := make([]*Check, len(checkers))
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			checks[i] = m.run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	results := make(map[string]*Check, len(checks))
	m.mu.Lock()
	for _, check := range checks {
		results[check.Name] = check
		m.results[check.Name] = check
	}
	m.mu.Unlock()
	return results
}

func (m *Manager) run(ctx context.Context, c Checker) *Check {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(checkCtx)
	duration := time.Since(start)

	check := &Check{
		Name:        c.Name(),
		Status:      StatusOK,
		LastChecked: time.Now(),
		Duration:    duration,
		DurationMS:  float64(duration.Microseconds()) / 1000,
	}

	switch {
	case err == nil:
		m.logger.WithField("checker", c.Name()).Debug("Health check passed")
		return check
	case errors.Is(err, context.DeadlineExceeded):
		check.Status = StatusDown
		check.Message = "health check timed out"
	case errors.Is(err, ErrDegraded):
		check.Status = StatusDegraded
		check.Message = err.Error()
	default:
		check.Status = StatusDown
		check.Message = err.Error()
	}

	m.logger.WithFields(logrus.Fields{
		"checker":  c.Name(),
		"status":   check.Status,
		"duration": duration,
	}).WithError(err).Warn("Health check failed")
	return check
}

// Results returns copies of the latest results.
func (m *Manager) Results() map[string]*Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]*Check, len(m.results))
	for k, v := range m.results {
		c := *v
		results[k] = &c
	}
	return results
}

// OverallStatus is the worst status among the latest results, or down
// before any check has run.
func (m *Manager) OverallStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.results) == 0 {
		return StatusDown
	}

	status := StatusOK
	for _, check := range m.results {
		switch check.Status {
		case StatusDown:
			return StatusDown
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// StartPeriodicChecks runs the checks now and then every interval until
// ctx is done.
func (m *Manager) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.RunChecks(ctx)
	for {
		select {
		case <-ticker.C:
			m.RunChecks(ctx)
		case <-ctx.Done():
			m.logger.Debug("Stopping periodic health checks")
			return
		}
	}
}
