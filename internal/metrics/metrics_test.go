package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chbornman/picpop/internal/pipeline"
)

var _ pipeline.Recorder = (*Metrics)(nil)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IncEvent("start_session")
	m.IncEvent("start_session")
	m.IncCommand("create_session")
	m.IncCommandFailure("create_session")
	m.BusError("network")
	m.BusError("network")
	m.BusError("codec")
	m.RestartAttempt()
	m.Recovered(3 * time.Second)
	m.GaveUp()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("start_session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("create_session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandFailures.WithLabelValues("create_session")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.busErrors.WithLabelValues("network")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busErrors.WithLabelValues("codec")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restartAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gaveUpTotal))
}

func TestMetrics_OneHotGauges(t *testing.T) {
	m := New()

	m.SetKioskState("session")
	m.SetPipelineStatus("reconnecting")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.kioskState.WithLabelValues("session")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.kioskState.WithLabelValues("welcome")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelineStatus.WithLabelValues("reconnecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pipelineStatus.WithLabelValues("playing")))

	m.StreamConnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamConnected))
	m.StreamDisconnected()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.streamConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamDrops))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncEvent("x")
		m.IncCommand("x")
		m.StreamConnected()
		m.SetKioskState("welcome")
		m.BusError("auth")
		m.Recovered(time.Second)
		m.SetPipelineFrames(1, time.Second)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	refreshed := false

	srv := httptest.NewServer(m.Handler(func() {
		refreshed = true
		m.SetPipelineFrames(42, 1500*time.Millisecond)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, refreshed)
	assert.Contains(t, string(body), "picpop_pipeline_frames 42")
	assert.Contains(t, string(body), "picpop_pipeline_last_frame_age_seconds 1.5")
}
