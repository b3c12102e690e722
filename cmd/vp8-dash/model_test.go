package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/vp8inspector/internal/ingestion/registry"
)

func TestFetchStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/streams", r.URL.Path)
		_ = json.NewEncoder(w).Encode(streamList{
			Streams: []*registry.Stream{{ID: "vp8_0000abcd_001", SSRC: 0xabcd, Status: registry.StatusActive}},
			Count:   1,
		})
	}))
	defer srv.Close()

	msg := fetchStreams(srv.Client(), srv.URL)()
	streams, ok := msg.(streamsMsg)
	require.True(t, ok, "got %T", msg)
	require.Len(t, streams, 1)
	assert.Equal(t, uint32(0xabcd), streams[0].SSRC)
}

func TestFetchStreamsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	msg := fetchStreams(srv.Client(), srv.URL)()
	e, ok := msg.(errMsg)
	require.True(t, ok, "got %T", msg)
	assert.Contains(t, e.err.Error(), "503")
}

func TestModelUpdate(t *testing.T) {
	m := newModel("http://example.invalid/", http.DefaultClient)
	assert.Equal(t, "http://example.invalid", m.baseURL)

	_, cmd := m.Update(streamsMsg{{
		ID:          "vp8_0000abcd_001",
		SSRC:        0xabcd,
		Status:      registry.StatusActive,
		StreamStats: registry.StreamStats{FramesInspected: 1500, Keyframes: 3, Resolution: "640x480"},
	}})
	assert.NotNil(t, cmd)
	assert.Len(t, m.streams, 1)
	assert.False(t, m.updatedAt.IsZero())

	view := m.View()
	assert.Contains(t, view, "vp8_0000abcd_001")
	assert.Contains(t, view, "0000abcd")
	assert.Contains(t, view, "640x480")
	assert.Contains(t, view, "1.5K")

	_, cmd = m.Update(errMsg{errors.New("connection refused")})
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "connection refused")
	assert.Len(t, m.streams, 1)
}

func TestModelQuit(t *testing.T) {
	m := newModel("http://127.0.0.1:8080", http.DefaultClient)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1.5K", formatNumber(1500))
	assert.Equal(t, "2.0M", formatNumber(2_000_000))
	assert.Equal(t, "3.1B", formatNumber(3_100_000_000))
}
