package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrStreamNotFound is returned for unknown stream IDs.
var ErrStreamNotFound = errors.New("stream not found")

// Registry stores the streams being inspected so the API and dashboards
// can list them.
type Registry interface {
	Register(ctx context.Context, stream *Stream) error
	Unregister(ctx context.Context, streamID string) error
	Get(ctx context.Context, streamID string) (*Stream, error)
	List(ctx context.Context) ([]*Stream, error)
	UpdateHeartbeat(ctx context.Context, streamID string) error
	UpdateStatus(ctx context.Context, streamID string, status StreamStatus) error
	UpdateStats(ctx context.Context, streamID string, stats *StreamStats) error
	Close() error
}

func notFound(streamID string) error {
	return fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
}

// MemoryRegistry keeps streams in process memory.
type MemoryRegistry struct {
	mu      sync.RWMutex
	streams map[string]Stream
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{streams: make(map[string]Stream)}
}

// Register adds stream or refreshes it, keeping the original CreatedAt.
func (m *MemoryRegistry) Register(ctx context.Context, stream *Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.streams[stream.ID]; ok {
		stream.CreatedAt = existing.CreatedAt
	} else {
		stream.CreatedAt = now
	}
	stream.LastHeartbeat = now
	m.streams[stream.ID] = *stream
	return nil
}

func (m *MemoryRegistry) Unregister(ctx context.Context, streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[streamID]; !ok {
		return notFound(streamID)
	}
	delete(m.streams, streamID)
	return nil
}

func (m *MemoryRegistry) Get(ctx context.Context, streamID string) (*Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[streamID]
	if !ok {
		return nil, notFound(streamID)
	}
	return &s, nil
}

// List returns copies of all streams ordered by creation time.
func (m *MemoryRegistry) List(ctx context.Context) ([]*Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		s := s
		streams = append(streams, &s)
	}
	sort.Slice(streams, func(i, j int) bool {
		if streams[i].CreatedAt.Equal(streams[j].CreatedAt) {
			return streams[i].ID < streams[j].ID
		}
		return streams[i].CreatedAt.Before(streams[j].CreatedAt)
	})
	return streams, nil
}

func (m *MemoryRegistry) update(streamID string, fn func(*Stream)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[streamID]
	if !ok {
		return notFound(streamID)
	}
	fn(&s)
	s.LastHeartbeat = time.Now()
	m.streams[streamID] = s
	return nil
}

func (m *MemoryRegistry) UpdateHeartbeat(ctx context.Context, streamID string) error {
	return m.update(streamID, func(*Stream) {})
}

func (m *MemoryRegistry) UpdateStatus(ctx context.Context, streamID string, status StreamStatus) error {
	return m.update(streamID, func(s *Stream) { s.Status = status })
}

func (m *MemoryRegistry) UpdateStats(ctx context.Context, streamID string, stats *StreamStats) error {
	return m.update(streamID, func(s *Stream) { s.StreamStats = *stats })
}

func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = make(map[string]Stream)
	return nil
}
