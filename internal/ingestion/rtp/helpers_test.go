package rtp

import (
	"encoding/binary"

	"github.com/pion/rtp"
)

// keyframe builds a VP8 keyframe whose first partition is all zero bytes.
func keyframe(width, height uint16, partSize int) []byte {
	tag := uint32(partSize)<<5 | 1<<4
	frame := []byte{byte(tag), byte(tag >> 8), byte(tag >> 16), 0x9d, 0x01, 0x2a}
	frame = binary.LittleEndian.AppendUint16(frame, width)
	frame = binary.LittleEndian.AppendUint16(frame, height)
	frame = append(frame, make([]byte, partSize+4)...)
	return frame
}

func interframe(partSize int) []byte {
	tag := uint32(partSize)<<5 | 1<<4 | 1
	frame := []byte{byte(tag), byte(tag >> 8), byte(tag >> 16)}
	return append(frame, make([]byte, partSize+8)...)
}

// vp8Packet wraps a whole frame in one RTP packet with a minimal VP8
// payload descriptor (S=1, PID=0).
func vp8Packet(ssrc uint32, seq uint16, ts uint32, frame []byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: append([]byte{0x10}, frame...),
	}
}

func marshal(p *rtp.Packet) []byte {
	buf, err := p.Marshal()
	if err != nil {
		panic(err)
	}
	return buf
}
