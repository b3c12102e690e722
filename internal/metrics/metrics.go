package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-stream numbers live in the stream registry. Prometheus labels are
// kept to bounded sets so a flood of SSRCs cannot blow up cardinality.
var (
	// RTP ingestion
	rtpPacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vp8inspector_rtp_packets_total",
		Help: "RTP packets accepted for inspection",
	})

	rtpBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vp8inspector_rtp_bytes_total",
		Help: "RTP payload bytes accepted for inspection",
	})

	rtpPacketsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp8inspector_rtp_packets_dropped_total",
		Help: "RTP packets dropped before depacketization",
	}, []string{"reason"})

	rtpPacketsLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vp8inspector_rtp_packets_lost_total",
		Help: "RTP packets missing from sequence number gaps",
	})

	rtpSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vp8inspector_rtp_sessions_active",
		Help: "Number of active RTP sessions",
	})

	rtcpPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp8inspector_rtcp_packets_total",
		Help: "RTCP packets received by type",
	}, []string{"type"})

	// Depacketization
	framesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp8inspector_depacketizer_frames_dropped_total",
		Help: "Frames discarded by the depacketizer before parsing",
	}, []string{"reason"})

	// Frame inspection
	framesInspectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp8inspector_frames_inspected_total",
		Help: "VP8 frames whose headers parsed successfully",
	}, []string{"frame_type"})

	frameErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp8inspector_frame_errors_total",
		Help: "VP8 frames rejected by the header parser",
	}, []string{"kind"})

	frameSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vp8inspector_frame_size_bytes",
		Help:    "Size of depacketized VP8 frames",
		Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to 512KB
	})

	// HTTP API
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vp8inspector_http_requests_total",
		Help: "HTTP API requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vp8inspector_http_request_duration_seconds",
		Help:    "HTTP API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Packet drop reasons.
const (
	DropInvalid   = "invalid"
	DropRateLimit = "rate_limit"
	DropSessions  = "max_sessions"
	DropMalformed = "malformed"
)

// RecordRTPPacket counts one accepted RTP packet.
func RecordRTPPacket(payloadBytes int) {
	rtpPacketsTotal.Inc()
	rtpBytesTotal.Add(float64(payloadBytes))
}

func IncrementPacketDropped(reason string) {
	rtpPacketsDroppedTotal.WithLabelValues(reason).Inc()
}

func AddPacketsLost(n int) {
	if n > 0 {
		rtpPacketsLostTotal.Add(float64(n))
	}
}

func SetActiveRTPSessions(count int) {
	rtpSessionsActive.Set(float64(count))
}

func IncrementRTCPPacket(packetType string) {
	rtcpPacketsTotal.WithLabelValues(packetType).Inc()
}

func IncrementFrameDropped(reason string) {
	framesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordFrameInspected counts a parsed frame and observes its size.
func RecordFrameInspected(keyframe bool, size int) {
	frameType := "interframe"
	if keyframe {
		frameType = "keyframe"
	}
	framesInspectedTotal.WithLabelValues(frameType).Inc()
	frameSizeBytes.Observe(float64(size))
}

// RecordFrameError counts a frame rejected with the given error kind.
func RecordFrameError(kind string, size int) {
	frameErrorsTotal.WithLabelValues(kind).Inc()
	frameSizeBytes.Observe(float64(size))
}

func RecordHTTPRequest(method, route string, status int, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
