package codec

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vp8Packet(seq uint16, ts uint32, start, marker bool, data []byte) *rtp.Packet {
	desc := byte(0x00)
	if start {
		desc |= 0x10
	}
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			Marker:         marker,
			SSRC:           0x1234,
		},
		Payload: append([]byte{desc}, data...),
	}
}

func TestVP8Depacketizer_SinglePacketFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	frames, err := d.Depacketize(vp8Packet(1, 3000, true, true, []byte{0x10, 0x02, 0x00, 0x9d}))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	assert.Equal(t, []byte{0x10, 0x02, 0x00, 0x9d}, frames[0].Data)
	assert.Equal(t, uint32(3000), frames[0].Timestamp)
	assert.Equal(t, 1, frames[0].Packets)
	assert.True(t, frames[0].Keyframe)
}

func TestVP8Depacketizer_MultiPacketFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	part1 := bytes.Repeat([]byte{0x11}, 100)
	part2 := bytes.Repeat([]byte{0x22}, 100)
	part3 := bytes.Repeat([]byte{0x33}, 50)

	frames, err := d.Depacketize(vp8Packet(10, 9000, true, false, part1))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = d.Depacketize(vp8Packet(11, 9000, false, false, part2))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = d.Depacketize(vp8Packet(12, 9000, false, true, part3))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	want := append(append(append([]byte{}, part1...), part2...), part3...)
	assert.Equal(t, want, frames[0].Data)
	assert.Equal(t, 3, frames[0].Packets)
	assert.False(t, frames[0].Keyframe) // 0x11 has the P bit set
}

func TestVP8Depacketizer_TimestampChangeEndsFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	frames, err := d.Depacketize(vp8Packet(1, 1000, true, false, []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = d.Depacketize(vp8Packet(2, 4000, true, false, []byte{4, 5, 6}))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{1, 2, 3}, frames[0].Data)
	assert.Equal(t, uint32(1000), frames[0].Timestamp)
}

func TestVP8Depacketizer_SequenceGapDropsFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	_, err := d.Depacketize(vp8Packet(100, 1000, true, false, []byte{1, 2, 3}))
	require.NoError(t, err)
	frames, err := d.Depacketize(vp8Packet(102, 1000, false, true, []byte{4, 5, 6}))
	require.NoError(t, err)
	assert.Empty(t, frames)

	// The next frame is unaffected.
	frames, err = d.Depacketize(vp8Packet(103, 4000, true, true, []byte{7, 8, 9}))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.FramesEmitted)
	assert.Equal(t, uint64(1), stats.FramesDropped)
	assert.Equal(t, uint64(1), stats.DropReasons[DropSequenceGap])
}

func TestVP8Depacketizer_MissingStartDropsFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	frames, err := d.Depacketize(vp8Packet(5, 1000, false, false, []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Empty(t, frames)
	frames, err = d.Depacketize(vp8Packet(6, 1000, false, true, []byte{4, 5, 6}))
	require.NoError(t, err)
	assert.Empty(t, frames)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.FramesDropped)
	assert.Equal(t, uint64(1), stats.DropReasons[DropMissingStart])
}

func TestVP8Depacketizer_SequenceWraparound(t *testing.T) {
	d := NewVP8Depacketizer()

	_, err := d.Depacketize(vp8Packet(65535, 1000, true, false, []byte{1, 2, 3}))
	require.NoError(t, err)
	frames, err := d.Depacketize(vp8Packet(0, 1000, false, true, []byte{4, 5, 6}))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, frames[0].Data)
}

func TestVP8Depacketizer_ExtendedDescriptor(t *testing.T) {
	d := NewVP8Depacketizer()

	// X=1, S=1; I=1 with a 15-bit picture id, L=1, T=1.
	payload := []byte{0x90, 0xe0, 0x81, 0x23, 0x05, 0x40, 0x50, 0x01, 0x00, 0x9d}
	pkt := vp8Packet(1, 1000, true, true, nil)
	pkt.Payload = payload

	frames, err := d.Depacketize(pkt)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x50, 0x01, 0x00, 0x9d}, frames[0].Data)
	assert.True(t, frames[0].Keyframe)
}

func TestVP8Depacketizer_FrameDataIsCopied(t *testing.T) {
	d := NewVP8Depacketizer()

	pkt := vp8Packet(1, 1000, true, true, []byte{9, 9, 9})
	frames, err := d.Depacketize(pkt)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	pkt.Payload[1] = 0
	assert.Equal(t, []byte{9, 9, 9}, frames[0].Data)
}

func TestVP8Depacketizer_InvalidDescriptor(t *testing.T) {
	d := NewVP8Depacketizer()
	pkt := vp8Packet(1, 1000, true, true, nil)
	pkt.Payload = nil

	_, err := d.Depacketize(pkt)
	assert.Error(t, err)
}

func TestVP8Depacketizer_Reset(t *testing.T) {
	d := NewVP8Depacketizer()

	_, err := d.Depacketize(vp8Packet(1, 1000, true, false, []byte{1, 2, 3}))
	require.NoError(t, err)
	d.Reset()

	// A continuation after reset has no start.
	frames, err := d.Depacketize(vp8Packet(2, 1000, false, true, []byte{4, 5, 6}))
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Equal(t, uint64(1), d.Stats().DropReasons[DropMissingStart])
}

func TestVP8Depacketizer_LostTailPacketDropsFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	_, err := d.Depacketize(vp8Packet(1, 1000, true, false, []byte{1, 2, 3}))
	require.NoError(t, err)
	_, err = d.Depacketize(vp8Packet(2, 1000, false, false, []byte{4, 5, 6}))
	require.NoError(t, err)

	// Packet 3 carried the marker and was lost.
	frames, err := d.Depacketize(vp8Packet(4, 4000, true, true, []byte{7, 8, 9}))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{7, 8, 9}, frames[0].Data)
	assert.Equal(t, uint32(4000), frames[0].Timestamp)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.FramesEmitted)
	assert.Equal(t, uint64(1), stats.DropReasons[DropSequenceGap])
}

func TestVP8Depacketizer_LostStartOfNextFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	_, err := d.Depacketize(vp8Packet(1, 1000, true, false, []byte{1, 2, 3}))
	require.NoError(t, err)

	// A new start packet with the same timestamp after a gap also closes
	// the pending frame as incomplete.
	frames, err := d.Depacketize(vp8Packet(3, 1000, true, true, []byte{4, 5, 6}))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{4, 5, 6}, frames[0].Data)
	assert.Equal(t, uint64(1), d.Stats().DropReasons[DropSequenceGap])
}

func TestVP8Depacketizer_DuplicateStartPacketIgnored(t *testing.T) {
	d := NewVP8Depacketizer()

	var frames []Frame
	for _, p := range []*rtp.Packet{
		vp8Packet(1, 1000, true, false, []byte{1, 2, 3}),
		vp8Packet(1, 1000, true, false, []byte{1, 2, 3}),
		vp8Packet(2, 1000, false, false, []byte{4, 5, 6}),
		vp8Packet(3, 1000, false, true, []byte{7, 8, 9}),
	} {
		out, err := d.Depacketize(p)
		require.NoError(t, err)
		frames = append(frames, out...)
	}

	require.Len(t, frames, 1)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, frames[0].Data)
	assert.Equal(t, 3, frames[0].Packets)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.PacketsIgnored)
	assert.Equal(t, uint64(0), stats.FramesDropped)
}

func TestVP8Depacketizer_LatePacketsOfFinishedFrameIgnored(t *testing.T) {
	d := NewVP8Depacketizer()

	_, err := d.Depacketize(vp8Packet(10, 1000, true, false, []byte{1}))
	require.NoError(t, err)
	frames, err := d.Depacketize(vp8Packet(11, 1000, false, true, []byte{2}))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	frames, err = d.Depacketize(vp8Packet(11, 1000, false, true, []byte{2}))
	require.NoError(t, err)
	assert.Empty(t, frames)
	frames, err = d.Depacketize(vp8Packet(10, 1000, true, false, []byte{1}))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = d.Depacketize(vp8Packet(12, 4000, true, true, []byte{3}))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	stats := d.Stats()
	assert.Equal(t, uint64(2), stats.PacketsIgnored)
	assert.Equal(t, uint64(2), stats.FramesEmitted)
	assert.Equal(t, uint64(0), stats.FramesDropped)
}

func TestVP8Depacketizer_Flush(t *testing.T) {
	t.Run("intact pending frame", func(t *testing.T) {
		d := NewVP8Depacketizer()
		_, err := d.Depacketize(vp8Packet(1, 1000, true, false, []byte{1, 2}))
		require.NoError(t, err)
		_, err = d.Depacketize(vp8Packet(2, 1000, false, false, []byte{3}))
		require.NoError(t, err)

		f, ok := d.Flush()
		require.True(t, ok)
		assert.Equal(t, []byte{1, 2, 3}, f.Data)
		assert.Equal(t, 2, f.Packets)

		_, ok = d.Flush()
		assert.False(t, ok)
	})

	t.Run("broken pending frame", func(t *testing.T) {
		d := NewVP8Depacketizer()
		_, err := d.Depacketize(vp8Packet(1, 1000, true, false, []byte{1, 2}))
		require.NoError(t, err)
		_, err = d.Depacketize(vp8Packet(3, 1000, false, false, []byte{3}))
		require.NoError(t, err)

		_, ok := d.Flush()
		assert.False(t, ok)
		assert.Equal(t, uint64(1), d.Stats().DropReasons[DropSequenceGap])
	})

	t.Run("nothing pending", func(t *testing.T) {
		_, ok := NewVP8Depacketizer().Flush()
		assert.False(t, ok)
	})
}
