package timestamp

import (
	"sync"
	"time"
)

// VideoClockRate is the RTP clock of every video payload format, VP8
// included.
const VideoClockRate = 90000

// Mapper converts 32-bit RTP timestamps of one stream into a monotonic
// presentation clock that starts at zero and survives wraparound.
type Mapper struct {
	mu sync.Mutex

	clockRate   uint32
	initialized bool
	lastRTP     uint32
	extended    int64 // lastRTP relative to the first timestamp, unwrapped
}

func NewMapper(clockRate uint32) *Mapper {
	if clockRate == 0 {
		clockRate = VideoClockRate
	}
	return &Mapper{clockRate: clockRate}
}

// ToPTS returns the presentation time of rtpTimestamp relative to the
// first timestamp seen. Steps are taken as the shortest signed distance
// from the previous timestamp, so wraps move forward and reordered
// packets move slightly back.
func (m *Mapper) ToPTS(rtpTimestamp uint32) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		m.initialized = true
		m.lastRTP = rtpTimestamp
		m.extended = 0
		return 0
	}

	m.extended += int64(int32(rtpTimestamp - m.lastRTP))
	m.lastRTP = rtpTimestamp

	return m.toDuration(m.extended)
}

func (m *Mapper) toDuration(ticks int64) time.Duration {
	secs := ticks / int64(m.clockRate)
	rem := ticks % int64(m.clockRate)
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(m.clockRate)
}
