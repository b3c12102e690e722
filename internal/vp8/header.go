package vp8

import (
	"fmt"
	"time"
)

const (
	frameTagSize       = 3
	keyframeHeaderSize = 7 // start code + dimensions
	maxSegments        = 4
	segmentTreeProbs   = 3
	refDeltaCount      = 4
	modeDeltaCount     = 4

	// Largest version number defined by the bitstream guide. Higher values
	// mark experimental streams.
	maxKnownVersion = 3
)

var startCode = [3]byte{0x9d, 0x01, 0x2a}

// Resolution holds keyframe dimensions and their upscaling modes.
type Resolution struct {
	Width       uint16 `json:"width"`
	WidthScale  uint8  `json:"width_scale"`
	Height      uint16 `json:"height"`
	HeightScale uint8  `json:"height_scale"`
}

// IsZero reports whether no keyframe dimensions have been recorded.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Segmentation is the segment header of the first partition.
type Segmentation struct {
	Enabled          bool                    `json:"enabled"`
	UpdateMap        bool                    `json:"update_map"`
	UpdateData       bool                    `json:"update_data"`
	AbsoluteDeltas   bool                    `json:"absolute_deltas"`
	QuantizerLevels  [maxSegments]int        `json:"quantizer_levels"`
	LoopFilterLevels [maxSegments]int        `json:"loop_filter_levels"`
	TreeProbs        [segmentTreeProbs]uint8 `json:"tree_probs"`
}

// LoopFilter is the loop filter header of the first partition.
type LoopFilter struct {
	Simple         bool                `json:"simple"`
	Level          uint8               `json:"level"`
	Sharpness      uint8               `json:"sharpness"`
	DeltaEnabled   bool                `json:"delta_enabled"`
	DeltaUpdate    bool                `json:"delta_update"`
	RefFrameDeltas [refDeltaCount]int  `json:"ref_frame_deltas"`
	ModeDeltas     [modeDeltaCount]int `json:"mode_deltas"`
}

// Quantizer holds the base quantizer index and the per-plane deltas.
type Quantizer struct {
	YACIndex  uint8 `json:"y_ac_index"`
	Y1DCDelta int   `json:"y1_dc_delta"`
	Y2DCDelta int   `json:"y2_dc_delta"`
	Y2ACDelta int   `json:"y2_ac_delta"`
	UVDCDelta int   `json:"uv_dc_delta"`
	UVACDelta int   `json:"uv_ac_delta"`
}

// CompressedHeader is what the parser reads from the first partition before
// the refresh flags.
type CompressedHeader struct {
	ColorSpace    uint8        `json:"color_space"`
	ClampingType  uint8        `json:"clamping_type"`
	Segmentation  Segmentation `json:"segmentation"`
	LoopFilter    LoopFilter   `json:"loop_filter"`
	DCTPartitions int          `json:"dct_partitions"`
	Quantizer     Quantizer    `json:"quantizer"`
}

// FrameInfo is the result of parsing one frame. Resolution is only set for
// keyframes; callers carry the last keyframe resolution across interframes.
type FrameInfo struct {
	OK                 bool             `json:"ok"`
	Keyframe           bool             `json:"keyframe"`
	Version            uint8            `json:"version"`
	Experimental       bool             `json:"experimental"`
	ShowFrame          bool             `json:"show_frame"`
	PartitionSize      uint32           `json:"partition_size"`
	Resolution         Resolution       `json:"resolution"`
	RefreshGoldenFrame bool             `json:"refresh_golden_frame"`
	RefreshAltrefFrame bool             `json:"refresh_altref_frame"`
	PTS                time.Duration    `json:"pts"`
	FrameNumber        uint64           `json:"frame_number"`
	Header             CompressedHeader `json:"header"`
}
