package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	m := NewManager(logrus.New())
	m.Register(&mockChecker{name: "test"})
	h := NewHandler(m)

	rr := httptest.NewRecorder()
	h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, StatusOK, resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.NotEmpty(t, resp.Uptime)
	assert.Contains(t, resp.Checks, "test")
}

func TestHandleHealth_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "down", err: assert.AnError, wantCode: http.StatusServiceUnavailable},
		{name: "degraded", err: ErrDegraded, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(logrus.New())
			m.Register(&mockChecker{name: "c", err: tt.err})
			rr := httptest.NewRecorder()
			NewHandler(m).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestHandleReady(t *testing.T) {
	m := NewManager(logrus.New())
	m.Register(&mockChecker{name: "test"})
	h := NewHandler(m)

	// Nothing has run yet.
	rr := httptest.NewRecorder()
	h.HandleReady(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	m.RunChecks(context.Background())
	rr = httptest.NewRecorder()
	h.HandleReady(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleLive(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(NewManager(logrus.New())).HandleLive(rr, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
}
