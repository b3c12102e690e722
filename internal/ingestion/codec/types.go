package codec

import (
	"github.com/pion/rtp"
)

// Type names a video codec carried over RTP.
type Type string

const TypeVP8 Type = "VP8"

func (t Type) String() string {
	return string(t)
}

// Frame is one reassembled codec frame.
type Frame struct {
	Data      []byte
	Timestamp uint32 // RTP timestamp shared by all packets of the frame
	Packets   int
	// Keyframe is the hint carried by the first payload byte. The header
	// parser has the final say.
	Keyframe bool
}

// Depacketizer turns RTP packets of one stream into codec frames.
type Depacketizer interface {
	// Depacketize consumes one packet and returns the frames it completed.
	Depacketize(packet *rtp.Packet) ([]Frame, error)
	// Flush returns the pending frame when the stream ends, if it is
	// intact.
	Flush() (Frame, bool)
	// Reset discards any partially assembled frame.
	Reset()
	Stats() DepacketizerStats
}

// DepacketizerStats counts the frames a depacketizer produced or dropped.
// PacketsIgnored counts duplicate or late packets of the latest frame.
type DepacketizerStats struct {
	FramesEmitted  uint64            `json:"frames_emitted"`
	FramesDropped  uint64            `json:"frames_dropped"`
	PacketsIgnored uint64            `json:"packets_ignored"`
	DropReasons    map[string]uint64 `json:"drop_reasons,omitempty"`
}
