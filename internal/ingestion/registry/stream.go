package registry

import (
	"fmt"
	"sync/atomic"
	"time"
)

// StreamType is the transport a stream arrived on.
type StreamType string

const (
	StreamTypeRTP  StreamType = "rtp"
	StreamTypePCAP StreamType = "pcap"
)

// StreamStatus is the lifecycle state of a stream.
type StreamStatus string

const (
	StatusActive StreamStatus = "active"
	StatusIdle   StreamStatus = "idle"
	StatusClosed StreamStatus = "closed"
)

// Stream describes one inspected RTP stream, identified by its SSRC.
type Stream struct {
	ID            string       `json:"id"`
	Type          StreamType   `json:"type"`
	SSRC          uint32       `json:"ssrc"`
	PayloadType   uint8        `json:"payload_type"`
	SourceAddr    string       `json:"source_addr"`
	Status        StreamStatus `json:"status"`
	VideoCodec    string       `json:"video_codec"`
	CreatedAt     time.Time    `json:"created_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`

	StreamStats
}

// StreamStats are the counters published for a stream. The JSON names are
// shared with the Redis update script, which copies them field by field.
type StreamStats struct {
	BytesReceived     int64  `json:"bytes_received"`
	PacketsReceived   int64  `json:"packets_received"`
	PacketsLost       int64  `json:"packets_lost"`
	PacketsDropped    int64  `json:"packets_dropped"`
	Bitrate           int64  `json:"bitrate"` // bits per second
	FramesInspected   int64  `json:"frames_inspected"`
	FramesDropped     int64  `json:"frames_dropped"`
	Keyframes         int64  `json:"keyframes"`
	CorruptFrames     int64  `json:"corrupt_frames"`
	UnsupportedFrames int64  `json:"unsupported_frames"`
	Resolution        string `json:"resolution"`
}

var streamCounter atomic.Uint64

// GenerateStreamID returns a readable stream ID such as vp8_1a2b3c4d_007.
// The counter keeps IDs distinct when an SSRC is reused.
func GenerateStreamID(ssrc uint32) string {
	n := streamCounter.Add(1) % 1000
	return fmt.Sprintf("vp8_%08x_%03d", ssrc, n)
}
