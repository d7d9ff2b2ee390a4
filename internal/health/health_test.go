package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chbornman/picpop/internal/pipeline"
)

type fakeReporter struct {
	mu   sync.Mutex
	snap Snapshot
}

func (f *fakeReporter) HealthSnapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeReporter) set(s Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		snap    Snapshot
		want    string
		reasons int
	}{
		{
			name: "playing",
			snap: Snapshot{Pipeline: pipeline.Stats{Status: pipeline.StatusPlaying}},
			want: StatusHealthy,
		},
		{
			name:    "failed preview",
			snap:    Snapshot{Pipeline: pipeline.Stats{Status: pipeline.StatusFailed}, StreamActive: true},
			want:    StatusUnhealthy,
			reasons: 1,
		},
		{
			name:    "reconnecting preview",
			snap:    Snapshot{Pipeline: pipeline.Stats{Status: pipeline.StatusReconnecting}},
			want:    StatusDegraded,
			reasons: 1,
		},
		{
			name:    "session stream down",
			snap:    Snapshot{Pipeline: pipeline.Stats{Status: pipeline.StatusPlaying}, StreamActive: true},
			want:    StatusDegraded,
			reasons: 1,
		},
		{
			name: "no session stream",
			snap: Snapshot{Pipeline: pipeline.Stats{Status: pipeline.StatusPlaying}},
			want: StatusHealthy,
		},
		{
			name: "operator down and preview reconnecting",
			snap: Snapshot{
				Pipeline:        pipeline.Stats{Status: pipeline.StatusReconnecting},
				OperatorEnabled: true,
			},
			want:    StatusDegraded,
			reasons: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, reasons := Evaluate(tc.snap)
			assert.Equal(t, tc.want, got)
			assert.Len(t, reasons, tc.reasons)
		})
	}
}

func TestRouter_Endpoints(t *testing.T) {
	rep := &fakeReporter{}
	rep.set(Snapshot{
		KioskState: "session",
		SessionID:  "s-1",
		Pipeline: pipeline.Stats{
			Status:       pipeline.StatusPlaying,
			Frames:       120,
			LastFrameAge: 40 * time.Millisecond,
		},
		StreamActive:    true,
		StreamConnected: true,
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("picpop_up 1\n"))
	})

	srv := httptest.NewServer(NewServer(":0", rep, metrics).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/readiness")
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "session", report.KioskState)
	assert.Equal(t, "playing", report.PreviewStatus)
	assert.Equal(t, uint64(120), report.PreviewFrames)
	assert.Equal(t, int64(40), report.LastFrameAgeMS)
	assert.Nil(t, report.OperatorConnected)

	rep.set(Snapshot{Pipeline: pipeline.Stats{Status: pipeline.StatusFailed}})
	resp, err = http.Get(srv.URL + "/readiness")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, []string{"preview failed"}, report.Reasons)

	rep.set(Snapshot{Pipeline: pipeline.Stats{Status: pipeline.StatusReconnecting}})
	resp, err = http.Get(srv.URL + "/readiness")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_NoMetrics(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", &fakeReporter{}, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer("", &fakeReporter{}, nil).Serve(ctx, ln)
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_RunBadAddr(t *testing.T) {
	err := NewServer("256.0.0.1:bad", &fakeReporter{}, nil).Run(context.Background())
	assert.Error(t, err)
}
