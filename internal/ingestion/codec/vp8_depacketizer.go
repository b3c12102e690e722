package codec

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/zsiec/vp8inspector/internal/metrics"
)

// MaxVP8FrameSize bounds the memory one partially received frame may hold.
const MaxVP8FrameSize = 4 * 1024 * 1024

// Frame drop reasons.
const (
	DropMissingStart = "missing_start"
	DropSequenceGap  = "sequence_gap"
	DropTooLarge     = "too_large"
	DropEmpty        = "empty"
)

// VP8Depacketizer reassembles VP8 frames from RTP packets (RFC 7741).
// A frame starts at a packet with S=1 and PID=0, spans packets sharing one
// RTP timestamp, and ends at the marker bit or when the timestamp moves
// on. A frame is only passed on when its packets have consecutive sequence
// numbers from the start packet to the packet that closes it.
type VP8Depacketizer struct {
	mu sync.Mutex

	buf       []byte
	timestamp uint32
	lastSeq   uint16
	haveSeq   bool
	packets   int
	keyframe  bool
	active    bool
	broken    string // drop reason once the frame is known to be incomplete

	stats DepacketizerStats
}

func NewVP8Depacketizer() *VP8Depacketizer {
	return &VP8Depacketizer{
		stats: DepacketizerStats{DropReasons: make(map[string]uint64)},
	}
}

// seqNewer reports whether a follows b in RTP sequence order.
func seqNewer(a, b uint16) bool {
	return int16(a-b) > 0
}

func (d *VP8Depacketizer) Depacketize(packet *rtp.Packet) ([]Frame, error) {
	var desc codecs.VP8Packet
	payload, err := desc.Unmarshal(packet.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid VP8 payload descriptor: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Duplicates and late arrivals of the latest frame add nothing.
	if d.haveSeq && packet.Timestamp == d.timestamp && !seqNewer(packet.SequenceNumber, d.lastSeq) {
		d.stats.PacketsIgnored++
		return nil, nil
	}

	var frames []Frame
	emit := func() {
		if f, ok := d.finish(); ok {
			frames = append(frames, f)
		}
	}

	start := desc.S == 1 && desc.PID == 0
	contiguous := d.haveSeq && packet.SequenceNumber == d.lastSeq+1

	switch {
	case d.active && (packet.Timestamp != d.timestamp || start):
		// The pending frame never saw its marker. It is whole only if
		// nothing is missing between its last packet and this one.
		if !contiguous {
			d.markBroken(DropSequenceGap)
		}
		emit()
		d.begin(packet.Timestamp, start, payload)
	case !d.active:
		d.begin(packet.Timestamp, start, payload)
	default:
		if !contiguous {
			d.markBroken(DropSequenceGap)
		}
	}

	d.lastSeq = packet.SequenceNumber
	d.haveSeq = true
	d.packets++

	if d.broken == "" {
		if len(d.buf)+len(payload) > MaxVP8FrameSize {
			d.broken = DropTooLarge
			d.buf = d.buf[:0]
		} else {
			d.buf = append(d.buf, payload...)
		}
	}

	if packet.Marker {
		emit()
	}

	return frames, nil
}

func (d *VP8Depacketizer) markBroken(reason string) {
	if d.broken == "" {
		d.broken = reason
	}
}

func (d *VP8Depacketizer) begin(ts uint32, start bool, payload []byte) {
	d.active = true
	d.timestamp = ts
	d.buf = d.buf[:0]
	d.packets = 0
	d.broken = ""
	d.keyframe = false
	if !start {
		d.broken = DropMissingStart
		return
	}

	// P bit of the VP8 payload header, 0 for keyframes.
	d.keyframe = len(payload) > 0 && payload[0]&0x01 == 0
}

func (d *VP8Depacketizer) finish() (Frame, bool) {
	if !d.active {
		return Frame{}, false
	}
	d.active = false

	reason := d.broken
	if reason == "" && len(d.buf) == 0 {
		reason = DropEmpty
	}
	if reason != "" {
		d.stats.FramesDropped++
		d.stats.DropReasons[reason]++
		metrics.IncrementFrameDropped(reason)
		return Frame{}, false
	}

	data := make([]byte, len(d.buf))
	copy(data, d.buf)
	d.stats.FramesEmitted++

	return Frame{
		Data:      data,
		Timestamp: d.timestamp,
		Packets:   d.packets,
		Keyframe:  d.keyframe,
	}, true
}

// Flush closes the pending frame at the end of a stream, where no marker
// or timestamp change will arrive. The frame is returned only if it is
// intact.
func (d *VP8Depacketizer) Flush() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finish()
}

func (d *VP8Depacketizer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	d.haveSeq = false
	d.buf = d.buf[:0]
	d.broken = ""
}

func (d *VP8Depacketizer) Stats() DepacketizerStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.DropReasons = make(map[string]uint64, len(d.stats.DropReasons))
	for k, v := range d.stats.DropReasons {
		s.DropReasons[k] = v
	}
	return s
}
