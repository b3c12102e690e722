package rtp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/zsiec/vp8inspector/internal/config"
	"github.com/zsiec/vp8inspector/internal/ingestion/codec"
	"github.com/zsiec/vp8inspector/internal/ingestion/ratelimit"
	"github.com/zsiec/vp8inspector/internal/ingestion/registry"
	"github.com/zsiec/vp8inspector/internal/ingestion/timestamp"
	"github.com/zsiec/vp8inspector/internal/inspector"
	"github.com/zsiec/vp8inspector/internal/logger"
	"github.com/zsiec/vp8inspector/internal/metrics"
)

const defaultSessionTimeout = 30 * time.Second

// SessionStats are the transport counters of one session.
type SessionStats struct {
	PacketsReceived uint64    `json:"packets_received"`
	BytesReceived   uint64    `json:"bytes_received"`
	PacketsLost     uint64    `json:"packets_lost"`
	PacketsDropped  uint64    `json:"packets_dropped"`
	Reordered       uint64    `json:"reordered"`
	SequenceResets  uint64    `json:"sequence_resets"`
	Bitrate         int64     `json:"bitrate"`
	StartTime       time.Time `json:"start_time"`
	LastPacketTime  time.Time `json:"last_packet_time"`
}

// Session is one inspected RTP stream, keyed by SSRC. Packets are handled
// serially so frames reach the inspector in arrival order.
type Session struct {
	streamID   string
	ssrc       uint32
	remoteAddr net.Addr

	registry     registry.Registry
	limiter      ratelimit.RateLimiter
	depacketizer codec.Depacketizer
	mapper       *timestamp.Mapper
	inspector    *inspector.StreamInspector
	loss         *LossTracker
	logger       logger.Logger
	throttled    *logger.Throttled

	mu            sync.Mutex
	stats         SessionStats
	timeout       time.Duration
	lastBytes     uint64
	lastStatsTime time.Time
	lastSR        time.Time
	status        registry.StreamStatus
	published     *registry.StreamStats
	closed        bool
}

// NewSession creates the session and registers its stream.
func NewSession(ctx context.Context, streamID string, ssrc uint32, remoteAddr net.Addr, streamType registry.StreamType,
	cfg *config.RTPConfig, inspCfg config.InspectorConfig, reg registry.Registry, log logger.Logger) (*Session, error) {

	if log == nil {
		log = logger.NewNullLogger()
	}
	log = logger.WithStream(log, streamID, ssrc)

	insp, err := inspector.NewStreamInspector(inspCfg, streamID, ssrc, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create inspector: %w", err)
	}

	now := time.Now()
	s := &Session{
		streamID:     streamID,
		ssrc:         ssrc,
		remoteAddr:   remoteAddr,
		registry:     reg,
		limiter:      ratelimit.NewByteLimiter(cfg.MaxBitrate),
		depacketizer: codec.NewVP8Depacketizer(),
		mapper:       timestamp.NewMapper(timestamp.VideoClockRate),
		inspector:    insp,
		loss:         NewLossTracker(),
		logger:       log,
		throttled:    logger.NewThrottled(log, 5*time.Second),
		timeout:      cfg.SessionTimeout,
		stats: SessionStats{
			StartTime:      now,
			LastPacketTime: now,
		},
		lastStatsTime: now,
		status:        registry.StatusActive,
	}
	if s.timeout <= 0 {
		s.timeout = defaultSessionTimeout
	}

	source := ""
	if remoteAddr != nil {
		source = remoteAddr.String()
	}
	stream := &registry.Stream{
		ID:          streamID,
		Type:        streamType,
		SSRC:        ssrc,
		PayloadType: cfg.PayloadType,
		SourceAddr:  source,
		Status:      registry.StatusActive,
		VideoCodec:  codec.TypeVP8.String(),
	}
	if err := reg.Register(ctx, stream); err != nil {
		insp.Close()
		return nil, fmt.Errorf("failed to register stream: %w", err)
	}

	return s, nil
}

func (s *Session) StreamID() string                      { return s.streamID }
func (s *Session) SSRC() uint32                          { return s.ssrc }
func (s *Session) RemoteAddr() net.Addr                  { return s.remoteAddr }
func (s *Session) Inspector() *inspector.StreamInspector { return s.inspector }

// ProcessPacket feeds one validated packet of size bytes through rate
// limiting, loss accounting, depacketization and inspection.
func (s *Session) ProcessPacket(packet *rtp.Packet, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.stats.LastPacketTime = time.Now()

	if !s.limiter.Allow(size) {
		s.stats.PacketsDropped++
		metrics.IncrementPacketDropped(metrics.DropRateLimit)
		s.throttled.Warn("rate_limit", map[string]interface{}{
			"dropped":   s.stats.PacketsDropped,
			"limit_bps": s.limiter.Rate() * 8,
		}, "RTP packet dropped by rate limit")
		return
	}

	s.stats.PacketsReceived++
	s.stats.BytesReceived += uint64(size)
	metrics.RecordRTPPacket(size)

	if gap := s.loss.Process(packet.SequenceNumber); gap > 0 {
		metrics.AddPacketsLost(gap)
		s.throttled.Debug("sequence_gap", map[string]interface{}{
			"sequence": packet.SequenceNumber,
			"gap":      gap,
		}, "RTP sequence gap")
	}

	frames, err := s.depacketizer.Depacketize(packet)
	if err != nil {
		metrics.IncrementPacketDropped(metrics.DropMalformed)
		s.throttled.Warn("descriptor", map[string]interface{}{
			"sequence": packet.SequenceNumber,
			"error":    err.Error(),
		}, "Dropping RTP packet with bad VP8 descriptor")
		return
	}

	for _, f := range frames {
		s.inspector.Inspect(f.Data, s.mapper.ToPTS(f.Timestamp))
	}
}

// OnSenderReport records an RTCP sender report for this SSRC.
func (s *Session) OnSenderReport(sr *rtcp.SenderReport) {
	s.mu.Lock()
	s.lastSR = time.Now()
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"ntp_time":     sr.NTPTime,
		"rtp_time":     sr.RTPTime,
		"packet_count": sr.PacketCount,
		"octet_count":  sr.OctetCount,
	}).Debug("RTCP sender report")
}

// IsActive reports whether a packet arrived within the session timeout.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && time.Since(s.stats.LastPacketTime) < s.timeout
}

// Status is the stream status last reported to the registry.
func (s *Session) Status() registry.StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RefreshStatus reports the stream idle once half the session timeout has
// passed without packets, and active again when packets resume. It
// returns the new status and whether it changed.
func (s *Session) RefreshStatus(ctx context.Context) (registry.StreamStatus, bool, error) {
	s.mu.Lock()
	if s.closed {
		status := s.status
		s.mu.Unlock()
		return status, false, nil
	}
	status := registry.StatusActive
	if time.Since(s.stats.LastPacketTime) >= s.timeout/2 {
		status = registry.StatusIdle
	}
	if status == s.status {
		s.mu.Unlock()
		return status, false, nil
	}
	s.status = status
	s.mu.Unlock()

	if err := s.registry.UpdateStatus(ctx, s.streamID, status); err != nil {
		return status, true, fmt.Errorf("failed to update status for %s: %w", s.streamID, err)
	}
	return status, true, nil
}

func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Session) statsLocked() SessionStats {
	st := s.stats
	st.PacketsLost = s.loss.Lost()
	st.Reordered = s.loss.Reordered()
	st.SequenceResets = s.loss.Resets()
	return st
}

// PublishStats refreshes the bitrate estimate and pushes the session and
// inspector counters to the registry. When nothing changed since the last
// publish only the heartbeat is refreshed.
func (s *Session) PublishStats(ctx context.Context) error {
	s.mu.Lock()
	now := time.Now()
	if elapsed := now.Sub(s.lastStatsTime).Seconds(); elapsed > 0 {
		s.stats.Bitrate = int64(float64(s.stats.BytesReceived-s.lastBytes) * 8 / elapsed)
	}
	s.lastBytes = s.stats.BytesReceived
	s.lastStatsTime = now
	st := s.statsLocked()
	s.mu.Unlock()

	is := s.inspector.Stats()
	ds := s.depacketizer.Stats()

	stats := &registry.StreamStats{
		BytesReceived:     int64(st.BytesReceived),
		PacketsReceived:   int64(st.PacketsReceived),
		PacketsLost:       int64(st.PacketsLost),
		PacketsDropped:    int64(st.PacketsDropped),
		Bitrate:           st.Bitrate,
		FramesInspected:   int64(is.Frames),
		FramesDropped:     int64(ds.FramesDropped),
		Keyframes:         int64(is.Keyframes),
		CorruptFrames:     int64(is.Corrupt),
		UnsupportedFrames: int64(is.Unsupported),
	}
	if !is.LastResolution.IsZero() {
		stats.Resolution = is.LastResolution.String()
	}

	s.mu.Lock()
	unchanged := s.published != nil && *s.published == *stats
	s.mu.Unlock()

	if unchanged {
		if err := s.registry.UpdateHeartbeat(ctx, s.streamID); err != nil {
			return fmt.Errorf("failed to refresh heartbeat for %s: %w", s.streamID, err)
		}
		return nil
	}

	if err := s.registry.UpdateStats(ctx, s.streamID, stats); err != nil {
		return fmt.Errorf("failed to publish stats for %s: %w", s.streamID, err)
	}
	s.mu.Lock()
	s.published = stats
	s.mu.Unlock()
	return nil
}

// Close publishes final stats, flushes the frame log and removes the
// stream from the registry. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// The last frame of a capture may have no marker to close it.
	if f, ok := s.depacketizer.Flush(); ok {
		s.inspector.Inspect(f.Data, s.mapper.ToPTS(f.Timestamp))
	}
	s.depacketizer.Reset()

	if err := s.PublishStats(ctx); err != nil {
		s.logger.WithError(err).Debug("Final stats not published")
	}

	st := s.Stats()
	is := s.inspector.Stats()
	s.logger.WithFields(map[string]interface{}{
		"packets_received": st.PacketsReceived,
		"packets_lost":     st.PacketsLost,
		"frames":           is.Frames,
		"keyframes":        is.Keyframes,
		"corrupt":          is.Corrupt,
		"unsupported":      is.Unsupported,
	}).Info("RTP session closed")

	closeErr := s.inspector.Close()
	if err := s.registry.Unregister(ctx, s.streamID); err != nil {
		s.logger.WithError(err).Debug("Stream already gone from registry")
	}
	return closeErr
}
