package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/zsiec/vp8inspector/internal/errors"
	"github.com/zsiec/vp8inspector/internal/ingestion/registry"
	"github.com/zsiec/vp8inspector/internal/inspector"
	"github.com/zsiec/vp8inspector/pkg/version"
)

const (
	defaultFrameLimit = 50
	maxFrameLimit     = 1000
)

// StreamListResponse is the body of GET /api/v1/streams.
type StreamListResponse struct {
	Streams []*registry.Stream `json:"streams"`
	Count   int                `json:"count"`
}

// FrameListResponse is the body of GET /api/v1/streams/{id}/frames.
type FrameListResponse struct {
	StreamID string             `json:"stream_id"`
	Frames   []inspector.Record `json:"frames"`
	Count    int                `json:"count"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, r, http.StatusOK, version.GetInfo())
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.registry.List(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, apperrors.WrapInternalError(err, "failed to list streams"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, StreamListResponse{Streams: streams, Count: len(streams)})
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	stream, err := s.registry.Get(r.Context(), id)
	if errors.Is(err, registry.ErrStreamNotFound) {
		s.errorHandler.HandleError(w, r, apperrors.NewNotFoundError("stream").WithDetail("stream_id", id))
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, apperrors.WrapInternalError(err, "failed to get stream"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, stream)
}

func (s *Server) handleStreamFrames(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit := defaultFrameLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxFrameLimit {
			s.errorHandler.HandleError(w, r, apperrors.NewValidationError("limit must be between 1 and 1000").
				WithDetail("limit", v))
			return
		}
		limit = n
	}

	var frames []inspector.Record
	ok := false
	if s.frames != nil {
		frames, ok = s.frames.RecentFrames(id, limit)
	}
	if !ok {
		s.errorHandler.HandleError(w, r, apperrors.NewNotFoundError("stream").WithDetail("stream_id", id))
		return
	}
	if frames == nil {
		frames = []inspector.Record{}
	}
	s.writeJSON(w, r, http.StatusOK, FrameListResponse{StreamID: id, Frames: frames, Count: len(frames)})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Failed to encode response")
	}
}
