package rtp

// maxDropout is the forward sequence jump beyond which the sender is
// assumed to have restarted (RFC 3550 A.1).
const maxDropout = 3000

// LossTracker counts lost and reordered packets from RTP sequence numbers.
// It is not safe for concurrent use; sessions call it under their lock.
type LossTracker struct {
	initialized bool
	baseSeq     uint64
	extended    uint64 // highest extended sequence number seen
	received    uint64
	reordered   uint64
	resets      uint64
	lostBefore  uint64 // loss counted before the last restart
}

func NewLossTracker() *LossTracker {
	return &LossTracker{}
}

// Process records seq and returns the size of the gap it revealed, 0 for
// in-order, late or duplicate packets.
func (t *LossTracker) Process(seq uint16) int {
	if !t.initialized {
		t.initialized = true
		t.baseSeq = uint64(seq)
		t.extended = uint64(seq)
		t.received = 1
		return 0
	}

	highest := uint16(t.extended)
	delta := int16(seq - highest)

	switch {
	case delta > maxDropout:
		t.lostBefore += t.currentLoss()
		t.resets++
		t.baseSeq = uint64(seq)
		t.extended = uint64(seq)
		t.received = 1
		return 0
	case delta > 0:
		t.extended += uint64(delta)
		t.received++
		return int(delta) - 1
	default:
		t.reordered++
		t.received++
		return 0
	}
}

// Lost returns the packets lost over the whole stream, including those
// counted before sequence restarts. It never decreases across a restart.
func (t *LossTracker) Lost() uint64 {
	return t.lostBefore + t.currentLoss()
}

// currentLoss is expected minus received packets since the last restart,
// never negative.
func (t *LossTracker) currentLoss() uint64 {
	if !t.initialized {
		return 0
	}
	expected := t.extended - t.baseSeq + 1
	if t.received >= expected {
		return 0
	}
	return expected - t.received
}

func (t *LossTracker) Reordered() uint64 {
	return t.reordered
}

func (t *LossTracker) Resets() uint64 {
	return t.resets
}
