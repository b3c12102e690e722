package rtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/zsiec/vp8inspector/internal/config"
	"github.com/zsiec/vp8inspector/internal/ingestion/ratelimit"
	"github.com/zsiec/vp8inspector/internal/ingestion/registry"
	"github.com/zsiec/vp8inspector/internal/inspector"
	"github.com/zsiec/vp8inspector/internal/logger"
	"github.com/zsiec/vp8inspector/internal/metrics"
)

// ErrTooManySessions is returned when a new SSRC arrives while the session
// cap is reached.
var ErrTooManySessions = errors.New("session limit reached")

const maxDatagramSize = 1500

// Listener receives RTP (and optionally RTCP) over UDP and routes packets
// to one Session per SSRC. Packets may also be injected with HandlePacket,
// which is how pcap replay feeds it.
type Listener struct {
	config         *config.RTPConfig
	inspectorCfg   config.InspectorConfig
	registry       registry.Registry
	validator      *Validator
	sessionLimiter *ratelimit.SessionLimiter
	logger         logger.Logger
	throttled      *logger.Throttled
	streamType     registry.StreamType

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	sessions map[uint32]*Session
	mu       sync.RWMutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	cleanupInterval time.Duration
	statsInterval   time.Duration
}

func NewListener(cfg *config.RTPConfig, inspCfg config.InspectorConfig, reg registry.Registry, log logger.Logger) *Listener {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.NewNullLogger()
	}
	log = log.WithField("component", "rtp_listener")

	l := &Listener{
		config:          cfg,
		inspectorCfg:    inspCfg,
		registry:        reg,
		validator:       NewValidator(cfg.PayloadType),
		sessionLimiter:  ratelimit.NewSessionLimiter(cfg.MaxSessions),
		logger:          log,
		throttled:       logger.NewThrottled(log, 5*time.Second),
		streamType:      registry.StreamTypeRTP,
		sessions:        make(map[uint32]*Session),
		ctx:             ctx,
		cancel:          cancel,
		cleanupInterval: time.Second,
		statsInterval:   cfg.StatsInterval,
	}
	if l.statsInterval <= 0 {
		l.statsInterval = 10 * time.Second
	}
	return l
}

// SetStreamType sets the type new streams are registered with.
func (l *Listener) SetStreamType(t registry.StreamType) {
	l.streamType = t
}

// SetIntervals overrides how often sessions are swept and stats published.
func (l *Listener) SetIntervals(cleanup, stats time.Duration) {
	l.cleanupInterval = cleanup
	l.statsInterval = stats
}

// Start binds the RTP socket, and the RTCP socket when a port is
// configured, then starts the reader and housekeeping goroutines.
func (l *Listener) Start() error {
	rtpConn, err := listenUDP(l.config.ListenAddr, l.config.Port, l.config.BufferSize)
	if err != nil {
		return fmt.Errorf("failed to listen on RTP port: %w", err)
	}
	l.rtpConn = rtpConn

	if l.config.RTCPPort > 0 {
		rtcpConn, err := listenUDP(l.config.ListenAddr, l.config.RTCPPort, 0)
		if err != nil {
			rtpConn.Close()
			return fmt.Errorf("failed to listen on RTCP port: %w", err)
		}
		l.rtcpConn = rtcpConn
	}

	l.logger.WithFields(map[string]interface{}{
		"rtp_addr":     rtpConn.LocalAddr().String(),
		"rtcp_port":    l.config.RTCPPort,
		"payload_type": l.config.PayloadType,
	}).Info("RTP listener started")

	l.wg.Add(1)
	go l.readRTP()

	if l.rtcpConn != nil {
		l.wg.Add(1)
		go l.readRTCP()
	}

	l.startHousekeeping()
	return nil
}

// StartReplay starts housekeeping without binding sockets; packets arrive
// through HandlePacket.
func (l *Listener) StartReplay() {
	l.logger.Info("RTP listener started in replay mode")
	l.startHousekeeping()
}

func (l *Listener) startHousekeeping() {
	l.running.Store(true)
	l.wg.Add(1)
	go l.housekeeping()
}

func listenUDP(host string, port, bufferSize int) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	if bufferSize > 0 {
		// The kernel may clamp the size; a smaller buffer only costs drops
		// under burst.
		_ = conn.SetReadBuffer(bufferSize)
	}
	return conn, nil
}

// Stop closes the sockets, waits for the goroutines and closes every
// session, flushing frame logs.
func (l *Listener) Stop() error {
	l.logger.Info("Stopping RTP listener")
	l.cancel()

	if l.rtpConn != nil {
		l.rtpConn.Close()
	}
	if l.rtcpConn != nil {
		l.rtcpConn.Close()
	}
	l.wg.Wait()
	l.running.Store(false)

	l.mu.Lock()
	sessions := l.sessions
	l.sessions = make(map[uint32]*Session)
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		l.sessionLimiter.Release()
	}
	metrics.SetActiveRTPSessions(0)

	l.logger.Info("RTP listener stopped")
	return errors.Join(errs...)
}

// IsRunning reports whether the listener has started and not stopped.
func (l *Listener) IsRunning() bool {
	return l.running.Load()
}

// LocalAddr is the bound RTP address, nil before Start.
func (l *Listener) LocalAddr() net.Addr {
	if l.rtpConn == nil {
		return nil
	}
	return l.rtpConn.LocalAddr()
}

func (l *Listener) readRTP() {
	defer l.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := l.rtpConn.ReadFromUDP(buf)
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.WithError(err).Error("Failed to read RTP packet")
			continue
		}

		if err := l.HandlePacket(buf[:n], addr); err != nil {
			l.throttled.Debug("rtp_packet", map[string]interface{}{
				"remote_addr": addr.String(),
				"error":       err.Error(),
			}, "Dropped RTP packet")
		}
	}
}

// HandlePacket parses, validates and routes one RTP datagram. Frames
// completed by the packet are inspected before it returns.
func (l *Listener) HandlePacket(buf []byte, addr net.Addr) error {
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(buf); err != nil {
		metrics.IncrementPacketDropped(metrics.DropMalformed)
		return fmt.Errorf("failed to parse RTP packet: %w", err)
	}

	if err := l.validator.ValidatePacket(packet); err != nil {
		metrics.IncrementPacketDropped(metrics.DropInvalid)
		return err
	}

	session, err := l.sessionFor(packet.SSRC, addr)
	if err != nil {
		return err
	}

	session.ProcessPacket(packet, len(buf))
	return nil
}

func (l *Listener) sessionFor(ssrc uint32, addr net.Addr) (*Session, error) {
	l.mu.RLock()
	session, ok := l.sessions[ssrc]
	l.mu.RUnlock()
	if ok {
		return session, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if session, ok := l.sessions[ssrc]; ok {
		return session, nil
	}
	if l.ctx.Err() != nil {
		return nil, fmt.Errorf("listener stopped")
	}

	if !l.sessionLimiter.TryAcquire() {
		metrics.IncrementPacketDropped(metrics.DropSessions)
		return nil, fmt.Errorf("%w: ssrc %d", ErrTooManySessions, ssrc)
	}

	streamID := registry.GenerateStreamID(ssrc)
	session, err := NewSession(l.ctx, streamID, ssrc, addr, l.streamType,
		l.config, l.inspectorCfg, l.registry, l.logger)
	if err != nil {
		l.sessionLimiter.Release()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	l.sessions[ssrc] = session
	metrics.SetActiveRTPSessions(len(l.sessions))

	fields := map[string]interface{}{
		"stream_id": streamID,
		"ssrc":      ssrc,
	}
	if addr != nil {
		fields["remote_addr"] = addr.String()
	}
	l.logger.WithFields(fields).Info("New RTP session created")

	return session, nil
}

func (l *Listener) readRTCP() {
	defer l.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := l.rtcpConn.ReadFromUDP(buf)
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.WithError(err).Debug("Failed to read RTCP packet")
			continue
		}

		if err := l.HandleRTCP(buf[:n]); err != nil {
			l.throttled.Debug("rtcp_packet", map[string]interface{}{
				"remote_addr": addr.String(),
				"error":       err.Error(),
			}, "Dropped RTCP packet")
		}
	}
}

// HandleRTCP processes a compound RTCP packet. A Goodbye closes the
// sessions of the SSRCs it names; sender reports are handed to their
// session.
func (l *Listener) HandleRTCP(buf []byte) error {
	packets, err := rtcp.Unmarshal(buf)
	if err != nil {
		return fmt.Errorf("failed to parse RTCP packet: %w", err)
	}

	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *rtcp.Goodbye:
			metrics.IncrementRTCPPacket("bye")
			for _, ssrc := range p.Sources {
				l.closeSession(ssrc, "rtcp_bye")
			}
		case *rtcp.SenderReport:
			metrics.IncrementRTCPPacket("sr")
			if s := l.sessionBySSRC(p.SSRC); s != nil {
				s.OnSenderReport(p)
			}
		case *rtcp.ReceiverReport:
			metrics.IncrementRTCPPacket("rr")
		default:
			metrics.IncrementRTCPPacket("other")
		}
	}
	return nil
}

func (l *Listener) sessionBySSRC(ssrc uint32) *Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessions[ssrc]
}

func (l *Listener) closeSession(ssrc uint32, reason string) {
	l.mu.Lock()
	session, ok := l.sessions[ssrc]
	if ok {
		delete(l.sessions, ssrc)
		metrics.SetActiveRTPSessions(len(l.sessions))
	}
	l.mu.Unlock()

	if !ok {
		return
	}

	l.logger.WithFields(map[string]interface{}{
		"stream_id": session.StreamID(),
		"ssrc":      ssrc,
		"reason":    reason,
	}).Info("Closing RTP session")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Close(ctx); err != nil {
		l.logger.WithError(err).WithField("stream_id", session.StreamID()).Warn("Failed to close session cleanly")
	}
	l.sessionLimiter.Release()
}

func (l *Listener) housekeeping() {
	defer l.wg.Done()

	cleanup := time.NewTicker(l.cleanupInterval)
	defer cleanup.Stop()
	stats := time.NewTicker(l.statsInterval)
	defer stats.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-cleanup.C:
			l.expireSessions()
		case <-stats.C:
			l.publishStats()
		}
	}
}

func (l *Listener) expireSessions() {
	var expired []uint32
	for _, s := range l.Sessions() {
		if !s.IsActive() {
			expired = append(expired, s.SSRC())
			continue
		}

		status, changed, err := s.RefreshStatus(l.ctx)
		if err != nil {
			l.logger.WithError(err).WithField("stream_id", s.StreamID()).Warn("Failed to update stream status")
			continue
		}
		if changed {
			fields := map[string]interface{}{
				"stream_id": s.StreamID(),
				"ssrc":      s.SSRC(),
				"status":    status,
			}
			if addr := s.RemoteAddr(); addr != nil {
				fields["remote_addr"] = addr.String()
			}
			l.logger.WithFields(fields).Info("Stream status changed")
		}
	}

	for _, ssrc := range expired {
		l.closeSession(ssrc, "timeout")
	}
}

func (l *Listener) publishStats() {
	for _, s := range l.Sessions() {
		if err := s.PublishStats(l.ctx); err != nil {
			l.logger.WithError(err).WithField("stream_id", s.StreamID()).Warn("Failed to publish session stats")
		}
		if err := s.Inspector().Flush(); err != nil {
			l.logger.WithError(err).WithField("stream_id", s.StreamID()).Warn("Failed to flush frame log")
		}
	}
}

// Sessions returns the live sessions ordered by stream ID.
func (l *Listener) Sessions() []*Session {
	l.mu.RLock()
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StreamID() < sessions[j].StreamID()
	})
	return sessions
}

// SessionByStreamID finds a live session by its registry stream ID.
func (l *Listener) SessionByStreamID(streamID string) (*Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.sessions {
		if s.StreamID() == streamID {
			return s, true
		}
	}
	return nil, false
}

func (l *Listener) ActiveSessions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// RecentFrames returns up to n recent inspection records of a live
// stream, oldest first.
func (l *Listener) RecentFrames(streamID string, n int) ([]inspector.Record, bool) {
	s, ok := l.SessionByStreamID(streamID)
	if !ok {
		return nil, false
	}
	return s.Inspector().Recent(n), true
}
