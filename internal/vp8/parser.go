package vp8

import (
	"encoding/binary"
	"errors"
	"time"
)

var (
	// ErrCorruptFrame is returned when the buffer is too short for its
	// frame tag or declared first partition.
	ErrCorruptFrame = errors.New("vp8: corrupt frame")
	// ErrUnsupportedBitstream is returned when a keyframe lacks the
	// 9d 01 2a start code.
	ErrUnsupportedBitstream = errors.New("vp8: unsupported bitstream")
)

// Parse decodes the frame tag and the first partition header of one VP8
// frame. On failure the returned FrameInfo keeps every field assigned
// before the failing step and OK is false.
func Parse(data []byte, frameNumber uint64, pts time.Duration) (FrameInfo, error) {
	info := FrameInfo{
		FrameNumber: frameNumber,
		PTS:         pts,
	}

	if len(data) < frameTagSize+keyframeHeaderSize {
		return info, ErrCorruptFrame
	}

	tag := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	info.Keyframe = tag&0x1 == 0
	info.Version = uint8((tag >> 1) & 0x7)
	info.Experimental = info.Version > maxKnownVersion
	info.ShowFrame = (tag>>4)&0x1 == 1
	info.PartitionSize = (tag >> 5) & 0x7ffff

	headerSize := frameTagSize
	if info.Keyframe {
		headerSize += keyframeHeaderSize
	}
	if uint64(len(data)) <= uint64(info.PartitionSize)+uint64(headerSize) {
		return info, ErrCorruptFrame
	}

	if info.Keyframe {
		if data[3] != startCode[0] || data[4] != startCode[1] || data[5] != startCode[2] {
			return info, ErrUnsupportedBitstream
		}

		w := binary.LittleEndian.Uint16(data[6:8])
		h := binary.LittleEndian.Uint16(data[8:10])
		info.Resolution = Resolution{
			Width:       w & 0x3fff,
			WidthScale:  uint8(w >> 14),
			Height:      h & 0x3fff,
			HeightScale: uint8(h >> 14),
		}
	}

	partition := data[headerSize : headerSize+int(info.PartitionSize)]
	bd := NewBoolDecoder(partition, len(partition))
	parseCompressedHeader(bd, &info)

	info.OK = true
	return info, nil
}

func parseCompressedHeader(bd *BoolDecoder, info *FrameInfo) {
	hdr := &info.Header

	if info.Keyframe {
		bits := bd.Uint(2)
		hdr.ColorSpace = uint8(bits >> 1)
		hdr.ClampingType = uint8(bits & 0x1)
	}

	parseSegmentation(bd, &hdr.Segmentation)
	parseLoopFilter(bd, &hdr.LoopFilter)

	// TODO: reject frames whose trailing bytes cannot hold DCTPartitions
	// partition size entries.
	hdr.DCTPartitions = 1 << bd.Uint(2)

	parseQuantizer(bd, &hdr.Quantizer)

	if info.Keyframe {
		info.RefreshGoldenFrame = true
		info.RefreshAltrefFrame = true
		return
	}
	info.RefreshGoldenFrame = bd.Flag()
	info.RefreshAltrefFrame = bd.Flag()
}

func parseSegmentation(bd *BoolDecoder, seg *Segmentation) {
	seg.Enabled = bd.Flag()
	if !seg.Enabled {
		return
	}

	seg.UpdateMap = bd.Flag()
	seg.UpdateData = bd.Flag()

	if seg.UpdateData {
		seg.AbsoluteDeltas = bd.Flag()
		for i := range seg.QuantizerLevels {
			seg.QuantizerLevels[i] = bd.OptionalSigned(7)
		}
		for i := range seg.LoopFilterLevels {
			seg.LoopFilterLevels[i] = bd.OptionalSigned(6)
		}
	}

	if seg.UpdateMap {
		for i := range seg.TreeProbs {
			seg.TreeProbs[i] = 255
			if bd.Flag() {
				seg.TreeProbs[i] = uint8(bd.Uint(8))
			}
		}
	}
}

func parseLoopFilter(bd *BoolDecoder, lf *LoopFilter) {
	lf.Simple = bd.Flag()
	lf.Level = uint8(bd.Uint(6))
	lf.Sharpness = uint8(bd.Uint(3))
	lf.DeltaEnabled = bd.Flag()
	if !lf.DeltaEnabled {
		return
	}

	lf.DeltaUpdate = bd.Flag()
	if !lf.DeltaUpdate {
		return
	}
	for i := range lf.RefFrameDeltas {
		lf.RefFrameDeltas[i] = bd.OptionalSigned(6)
	}
	for i := range lf.ModeDeltas {
		lf.ModeDeltas[i] = bd.OptionalSigned(6)
	}
}

func parseQuantizer(bd *BoolDecoder, q *Quantizer) {
	q.YACIndex = uint8(bd.Uint(7))
	q.Y1DCDelta = bd.OptionalSigned(4)
	q.Y2DCDelta = bd.OptionalSigned(4)
	q.Y2ACDelta = bd.OptionalSigned(4)
	q.UVDCDelta = bd.OptionalSigned(4)
	q.UVACDelta = bd.OptionalSigned(4)
}
