// Package health serves liveness, readiness and metrics endpoints for the
// kiosk process.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chbornman/picpop/internal/pipeline"
)

// Overall health values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const shutdownGrace = 5 * time.Second

// Snapshot is the raw component state a Reporter exposes.
type Snapshot struct {
	KioskState        string
	SessionID         string
	Pipeline          pipeline.Stats
	StreamActive      bool // a session event stream is open
	StreamConnected   bool
	OperatorEnabled   bool
	OperatorConnected bool
}

// Reporter supplies component state for readiness checks.
type Reporter interface {
	HealthSnapshot() Snapshot
}

// Report is the /readiness response body.
type Report struct {
	Status            string   `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds     int64    `json:"uptime_seconds"`
	KioskState        string   `json:"kiosk_state"`
	SessionID         string   `json:"session_id,omitempty"`
	PreviewStatus     string   `json:"preview_status"`
	PreviewFrames     uint64   `json:"preview_frames"`
	LastFrameAgeMS    int64    `json:"last_frame_age_ms"`
	PreviewRecoveries uint64   `json:"preview_recoveries"`
	StreamConnected   bool     `json:"stream_connected"`
	OperatorConnected *bool    `json:"operator_connected,omitempty"`
	Reasons           []string `json:"reasons,omitempty"`
}

// Evaluate derives an overall status from a snapshot. A failed preview is
// unhealthy; a preview in recovery, a dropped session stream or a lost
// operator link is degraded.
func Evaluate(s Snapshot) (string, []string) {
	var reasons []string
	switch s.Pipeline.Status {
	case pipeline.StatusFailed:
		return StatusUnhealthy, []string{"preview failed"}
	case pipeline.StatusReconnecting:
		reasons = append(reasons, "preview reconnecting")
	}
	if s.StreamActive && !s.StreamConnected {
		reasons = append(reasons, "event stream disconnected")
	}
	if s.OperatorEnabled && !s.OperatorConnected {
		reasons = append(reasons, "operator link down")
	}
	if len(reasons) > 0 {
		return StatusDegraded, reasons
	}
	return StatusHealthy, nil
}

// Server is the health HTTP server.
type Server struct {
	addr     string
	reporter Reporter
	metrics  http.Handler
	started  time.Time
}

// NewServer creates a Server. metrics may be nil.
func NewServer(addr string, reporter Reporter, metrics http.Handler) *Server {
	return &Server{
		addr:     addr,
		reporter: reporter,
		metrics:  metrics,
		started:  time.Now(),
	}
}

// Router returns the HTTP handler with all endpoints mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.liveness)
	r.Get("/readiness", s.readiness)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("health: server listening",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/readiness", "/metrics"},
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	slog.Info("health: server stopped")
	return nil
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) readiness(w http.ResponseWriter, _ *http.Request) {
	snap := s.reporter.HealthSnapshot()
	status, reasons := Evaluate(snap)

	report := Report{
		Status:            status,
		UptimeSeconds:     int64(time.Since(s.started).Seconds()),
		KioskState:        snap.KioskState,
		SessionID:         snap.SessionID,
		PreviewStatus:     snap.Pipeline.Status.String(),
		PreviewFrames:     snap.Pipeline.Frames,
		LastFrameAgeMS:    snap.Pipeline.LastFrameAge.Milliseconds(),
		PreviewRecoveries: snap.Pipeline.Recoveries,
		StreamConnected:   snap.StreamConnected,
		Reasons:           reasons,
	}
	if snap.OperatorEnabled {
		connected := snap.OperatorConnected
		report.OperatorConnected = &connected
	}

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode response", "error", err)
	}
}
