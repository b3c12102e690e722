package metrics

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRTPPacket(t *testing.T) {
	initialPackets := testutil.ToFloat64(rtpPacketsTotal)
	initialBytes := testutil.ToFloat64(rtpBytesTotal)

	RecordRTPPacket(1200)
	RecordRTPPacket(300)

	assert.Equal(t, initialPackets+2, testutil.ToFloat64(rtpPacketsTotal))
	assert.Equal(t, initialBytes+1500, testutil.ToFloat64(rtpBytesTotal))
}

func TestIncrementPacketDropped(t *testing.T) {
	initial := testutil.ToFloat64(rtpPacketsDroppedTotal.WithLabelValues(DropRateLimit))
	IncrementPacketDropped(DropRateLimit)
	assert.Equal(t, initial+1, testutil.ToFloat64(rtpPacketsDroppedTotal.WithLabelValues(DropRateLimit)))
}

func TestAddPacketsLost_IgnoresNonPositive(t *testing.T) {
	initial := testutil.ToFloat64(rtpPacketsLostTotal)
	AddPacketsLost(0)
	AddPacketsLost(-3)
	AddPacketsLost(4)
	assert.Equal(t, initial+4, testutil.ToFloat64(rtpPacketsLostTotal))
}

func TestSetActiveRTPSessions(t *testing.T) {
	SetActiveRTPSessions(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(rtpSessionsActive))
	SetActiveRTPSessions(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(rtpSessionsActive))
}

func TestRecordFrameInspected(t *testing.T) {
	initialKey := testutil.ToFloat64(framesInspectedTotal.WithLabelValues("keyframe"))
	initialInter := testutil.ToFloat64(framesInspectedTotal.WithLabelValues("interframe"))

	before := &dto.Metric{}
	require.NoError(t, frameSizeBytes.Write(before))

	RecordFrameInspected(true, 12495)
	RecordFrameInspected(false, 800)

	assert.Equal(t, initialKey+1, testutil.ToFloat64(framesInspectedTotal.WithLabelValues("keyframe")))
	assert.Equal(t, initialInter+1, testutil.ToFloat64(framesInspectedTotal.WithLabelValues("interframe")))

	after := &dto.Metric{}
	require.NoError(t, frameSizeBytes.Write(after))
	assert.Equal(t, before.GetHistogram().GetSampleCount()+2, after.GetHistogram().GetSampleCount())
	assert.Equal(t, before.GetHistogram().GetSampleSum()+13295, after.GetHistogram().GetSampleSum())
}

func TestRecordFrameError(t *testing.T) {
	initial := testutil.ToFloat64(frameErrorsTotal.WithLabelValues("corrupt"))
	RecordFrameError("corrupt", 2)
	assert.Equal(t, initial+1, testutil.ToFloat64(frameErrorsTotal.WithLabelValues("corrupt")))
}

func TestRecordHTTPRequest(t *testing.T) {
	tests := []struct {
		status int
		class  string
	}{
		{http.StatusOK, "2xx"},
		{http.StatusNotFound, "4xx"},
		{http.StatusServiceUnavailable, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			c := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/streams", tt.class)
			initial := testutil.ToFloat64(c)
			RecordHTTPRequest(http.MethodGet, "/api/v1/streams", tt.status, 0.01)
			assert.Equal(t, initial+1, testutil.ToFloat64(c))
		})
	}
}
