package health

import (
	"context"
	"fmt"
	"os"
)

// Pinger is anything that can prove a remote dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisChecker pings the Redis registry backend.
type RedisChecker struct {
	pinger Pinger
}

func NewRedisChecker(p Pinger) *RedisChecker {
	return &RedisChecker{pinger: p}
}

func (r *RedisChecker) Name() string { return "redis" }

func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// ListenerState is the view of the RTP listener the checker needs.
type ListenerState interface {
	IsRunning() bool
	ActiveSessions() int
}

// ListenerChecker reports down while the RTP listener is not running.
type ListenerChecker struct {
	listener ListenerState
}

func NewListenerChecker(l ListenerState) *ListenerChecker {
	return &ListenerChecker{listener: l}
}

func (c *ListenerChecker) Name() string { return "rtp_listener" }

func (c *ListenerChecker) Check(ctx context.Context) error {
	if !c.listener.IsRunning() {
		return fmt.Errorf("rtp listener is not running")
	}
	return nil
}

// OutputDirChecker verifies the frame log directory is writable. A full
// or read-only disk only degrades the service: inspection still runs and
// results stay visible over the API.
type OutputDirChecker struct {
	path string
}

func NewOutputDirChecker(path string) *OutputDirChecker {
	return &OutputDirChecker{path: path}
}

func (c *OutputDirChecker) Name() string { return "output_dir" }

func (c *OutputDirChecker) Check(ctx context.Context) error {
	if c.path == "" {
		return nil
	}
	f, err := os.CreateTemp(c.path, ".health-*")
	if err != nil {
		return fmt.Errorf("%w: output path not writable: %v", ErrDegraded, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
