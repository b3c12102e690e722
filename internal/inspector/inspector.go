// Package inspector runs the VP8 header parser over the frames of one RTP
// stream and keeps what it learns: frame numbering, the last keyframe
// resolution, running statistics and a frame log.
package inspector

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zsiec/vp8inspector/internal/config"
	"github.com/zsiec/vp8inspector/internal/logger"
	"github.com/zsiec/vp8inspector/internal/metrics"
	"github.com/zsiec/vp8inspector/internal/vp8"
)

// Stats summarizes the frames inspected on one stream.
type Stats struct {
	Frames         uint64         `json:"frames"`
	Keyframes      uint64         `json:"keyframes"`
	Corrupt        uint64         `json:"corrupt"`
	Unsupported    uint64         `json:"unsupported"`
	LastResolution vp8.Resolution `json:"last_resolution"`
	LastFrameAt    time.Time      `json:"last_frame_at"`
}

// StreamInspector inspects the frames of a single stream in arrival order.
// It is safe for concurrent use, but callers must deliver frames serially
// so interframes follow the keyframe that defines their resolution.
type StreamInspector struct {
	streamID string
	ssrc     uint32
	logger   logger.Logger

	mu             sync.Mutex
	frameNumber    uint64
	ptsOffset      time.Duration
	havePTSOffset  bool
	lastResolution vp8.Resolution
	stats          Stats
	recent         *ring
	logFile        *os.File
	logWriter      *bufio.Writer
}

// NewStreamInspector creates an inspector. When cfg.OutputPath is set the
// frame log is written to <OutputPath>/<ssrc>.log.
func NewStreamInspector(cfg config.InspectorConfig, streamID string, ssrc uint32, log logger.Logger) (*StreamInspector, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}

	si := &StreamInspector{
		streamID: streamID,
		ssrc:     ssrc,
		logger:   log,
		recent:   newRing(cfg.RecentFrames),
	}

	if cfg.OutputPath != "" {
		if err := os.MkdirAll(cfg.OutputPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output path: %w", err)
		}
		path := filepath.Join(cfg.OutputPath, LogFileName(ssrc))
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create frame log: %w", err)
		}
		si.logFile = f
		si.logWriter = bufio.NewWriter(f)
	}

	return si, nil
}

// LogFileName is the frame log file name for ssrc.
func LogFileName(ssrc uint32) string {
	return fmt.Sprintf("%d.log", ssrc)
}

// Inspect parses one frame. pts is the stream clock of the frame; the
// first frame seen becomes time zero. The frame number advances whether or
// not the frame parses.
func (si *StreamInspector) Inspect(frame []byte, pts time.Duration) Record {
	si.mu.Lock()
	defer si.mu.Unlock()

	if !si.havePTSOffset {
		si.ptsOffset = pts
		si.havePTSOffset = true
	}

	number := si.frameNumber
	si.frameNumber++

	info, err := vp8.Parse(frame, number, pts-si.ptsOffset)

	rec := Record{
		StreamID:   si.streamID,
		SSRC:       si.ssrc,
		Frame:      info,
		Size:       len(frame),
		ReceivedAt: time.Now(),
	}

	si.stats.Frames++
	si.stats.LastFrameAt = rec.ReceivedAt

	switch {
	case err == nil:
		if info.Keyframe {
			si.lastResolution = info.Resolution
			si.stats.Keyframes++
			si.stats.LastResolution = info.Resolution
		}
		metrics.RecordFrameInspected(info.Keyframe, len(frame))
	case errors.Is(err, vp8.ErrUnsupportedBitstream):
		si.stats.Unsupported++
		metrics.RecordFrameError("unsupported", len(frame))
	default:
		si.stats.Corrupt++
		metrics.RecordFrameError("corrupt", len(frame))
	}

	rec.Resolution = si.lastResolution
	if err != nil {
		rec.Error = err.Error()
		si.logger.WithFields(rec.Fields()).WithError(err).Warn("Frame header rejected")
	} else {
		si.logger.WithFields(rec.Fields()).Debug("Frame inspected")
	}

	si.recent.push(rec)
	si.writeLine(rec)

	return rec
}

func (si *StreamInspector) writeLine(rec Record) {
	if si.logWriter == nil {
		return
	}
	if _, err := fmt.Fprintln(si.logWriter, rec.String()); err != nil {
		si.logger.WithError(err).Error("Failed to write frame log")
	}
}

// Recent returns up to n of the most recent records, oldest first. n <= 0
// returns everything retained.
func (si *StreamInspector) Recent(n int) []Record {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.recent.last(n)
}

func (si *StreamInspector) Stats() Stats {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.stats
}

// LastResolution is the resolution of the most recent keyframe.
func (si *StreamInspector) LastResolution() vp8.Resolution {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.lastResolution
}

// Flush writes buffered frame log lines to disk.
func (si *StreamInspector) Flush() error {
	si.mu.Lock()
	defer si.mu.Unlock()
	if si.logWriter == nil {
		return nil
	}
	return si.logWriter.Flush()
}

// Close flushes and closes the frame log.
func (si *StreamInspector) Close() error {
	si.mu.Lock()
	defer si.mu.Unlock()

	if si.logFile == nil {
		return nil
	}
	flushErr := si.logWriter.Flush()
	closeErr := si.logFile.Close()
	si.logFile = nil
	si.logWriter = nil
	return errors.Join(flushErr, closeErr)
}
