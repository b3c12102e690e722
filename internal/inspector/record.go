package inspector

import (
	"fmt"
	"strings"
	"time"

	"github.com/zsiec/vp8inspector/internal/vp8"
)

// Record is the outcome of inspecting one depacketized frame.
type Record struct {
	StreamID   string         `json:"stream_id"`
	SSRC       uint32         `json:"ssrc"`
	Frame      vp8.FrameInfo  `json:"frame"`
	Resolution vp8.Resolution `json:"resolution"` // last keyframe resolution for interframes
	Size       int            `json:"size"`
	Error      string         `json:"error,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// String renders the record as one frame log line.
func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"frameNumber: %d, pts: %d, isKeyframe: %d, show: %d, width: %d, height: %d, refreshGoldenFrame: %d, refreshAltrefFrame: %d",
		r.Frame.FrameNumber, r.Frame.PTS.Milliseconds(), flag(r.Frame.Keyframe), flag(r.Frame.ShowFrame),
		r.Resolution.Width, r.Resolution.Height,
		flag(r.Frame.RefreshGoldenFrame), flag(r.Frame.RefreshAltrefFrame))
	if r.Error != "" {
		fmt.Fprintf(&b, ", error: %s", r.Error)
	}
	return b.String()
}

// Fields returns the record as structured log fields.
func (r Record) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"frame_number":         r.Frame.FrameNumber,
		"pts_ms":               r.Frame.PTS.Milliseconds(),
		"keyframe":             r.Frame.Keyframe,
		"show_frame":           r.Frame.ShowFrame,
		"version":              r.Frame.Version,
		"partition_size":       r.Frame.PartitionSize,
		"width":                r.Resolution.Width,
		"height":               r.Resolution.Height,
		"refresh_golden_frame": r.Frame.RefreshGoldenFrame,
		"refresh_altref_frame": r.Frame.RefreshAltrefFrame,
		"size":                 r.Size,
	}
	if r.Frame.Keyframe && r.Frame.OK {
		fields["width_scale"] = r.Resolution.WidthScale
		fields["height_scale"] = r.Resolution.HeightScale
	}
	return fields
}
