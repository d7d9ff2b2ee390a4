// Package pipeline keeps the kiosk's live camera preview running.
//
// A Supervisor drives a Graph through its lifecycle and heals it when
// something goes wrong:
//
//   - bus errors and end-of-stream trigger a reconnection,
//   - a watchdog triggers a reconnection when decoded frames stop arriving,
//   - a restart that does not reach Playing is retried.
//
// Reconnection is a bounded sequence of restart attempts. If all attempts
// fail the supervisor enters StatusFailed and stops acting on its own.
//
// Status lives in a single atomic and every transition is a compare-and-swap;
// only Playing → Reconnecting admits a new reconnection sequence, so error,
// EOS and stale triggers racing each other start at most one.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Supervisor owns a Graph and its recovery state.
type Supervisor struct {
	graph    Graph
	live     *Liveness
	cfg      Config
	listener StatusListener
	recorder Recorder

	status atomic.Int32

	reconnects      atomic.Uint64
	restartAttempts atomic.Uint64
	recoveries      atomic.Uint64
	staleDetections atomic.Uint64
	eos             atomic.Uint64
	errNetwork      atomic.Uint64
	errCodec        atomic.Uint64
	errAuth         atomic.Uint64
	errUnknown      atomic.Uint64

	startedAt atomic.Int64 // unix nanos

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithStatusListener registers fn for status transitions.
func WithStatusListener(fn StatusListener) Option {
	return func(s *Supervisor) { s.listener = fn }
}

// WithRecorder routes telemetry to r.
func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewSupervisor validates cfg and creates an idle supervisor for graph.
// live must be the tracker the graph reports frames to.
func NewSupervisor(graph Graph, live *Liveness, cfg Config, opts ...Option) (*Supervisor, error) {
	if graph == nil {
		return nil, ErrNilGraph
	}
	if live == nil {
		return nil, fmt.Errorf("pipeline: liveness tracker is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		graph:    graph,
		live:     live,
		cfg:      cfg,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.Store(int32(StatusIdle))

	return s, nil
}

// Start sets the graph to Playing and launches the bus monitor and
// watchdog. They run until Stop is called or ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	slog.Info("pipeline: starting")
	if err := s.graph.SetState(StatePlaying); err != nil {
		_ = s.graph.SetState(StateNull)
		return fmt.Errorf("pipeline: start: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.startedAt.Store(time.Now().UnixNano())
	s.transition(StatusIdle, StatusPlaying, "start")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.monitorBus(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.watchdog(runCtx)
	}()

	return nil
}

// Stop halts supervision and tears the graph down. It is meant for process
// shutdown; a stopped supervisor cannot be restarted.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}

	slog.Info("pipeline: stopping", "status", s.Status())
	cancel()
	s.wg.Wait()

	err := s.graph.SetState(StateNull)

	for {
		old := Status(s.status.Load())
		if old == StatusIdle || old == StatusFailed {
			break
		}
		if s.transition(old, StatusIdle, "stop") {
			break
		}
	}

	if err != nil {
		return fmt.Errorf("pipeline: stop: %w", err)
	}
	slog.Info("pipeline: stopped")
	return nil
}

// Status returns the current supervisor status.
func (s *Supervisor) Status() Status {
	return Status(s.status.Load())
}

// Stats returns supervisor counters.
func (s *Supervisor) Stats() Stats {
	var age time.Duration
	if s.live.Frames() > 0 {
		age = s.live.Since()
	}

	return Stats{
		Status:          s.Status(),
		Frames:          s.live.Frames(),
		LastFrameAge:    age,
		Reconnects:      s.reconnects.Load(),
		RestartAttempts: s.restartAttempts.Load(),
		Recoveries:      s.recoveries.Load(),
		StaleDetections: s.staleDetections.Load(),
		EOS:             s.eos.Load(),
		ErrorsNetwork:   s.errNetwork.Load(),
		ErrorsCodec:     s.errCodec.Load(),
		ErrorsAuth:      s.errAuth.Load(),
		ErrorsUnknown:   s.errUnknown.Load(),
		Uptime:          s.uptime(),
	}
}

// transition moves status from `from` to `to` if it is still `from`.
func (s *Supervisor) transition(from, to Status, reason string) bool {
	if !s.status.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	slog.Info("pipeline: status changed", "from", from.String(), "to", to.String(), "reason", reason)
	if s.listener != nil {
		s.listener(from, to)
	}
	return true
}

// requestReconnect starts a reconnection sequence unless one is already
// running or the supervisor is not Playing.
func (s *Supervisor) requestReconnect(ctx context.Context, reason string) {
	if !s.transition(StatusPlaying, StatusReconnecting, reason) {
		slog.Debug("pipeline: reconnect not started",
			"reason", reason,
			"status", s.Status().String(),
		)
		return
	}

	s.reconnects.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reconnect(ctx, reason)
	}()
}

// reconnect runs up to MaxRestartAttempts restart attempts. Each attempt
// tears the graph down synchronously, waits, requests Playing and verifies
// the graph settled there. Liveness is left alone: the graph resets it when
// the demuxer rediscovers the stream, so a restart that never decodes keeps
// the old timestamp and is caught by the watchdog.
func (s *Supervisor) reconnect(ctx context.Context, reason string) {
	began := time.Now()
	maxAttempts := s.cfg.MaxRestartAttempts

	slog.Info("pipeline: initiating reconnect",
		"reason", reason,
		"current_state", s.graph.CurrentState().String(),
		"delay", s.cfg.ReconnectDelay,
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.graph.SetState(StateNull); err != nil {
			slog.Error("pipeline: failed to set null state", "error", err, "attempt", attempt)
		}

		if !sleepCtx(ctx, s.cfg.ReconnectDelay) {
			slog.Debug("pipeline: reconnect cancelled")
			return
		}

		s.restartAttempts.Add(1)
		s.recorder.RestartAttempt()
		slog.Info("pipeline: reconnection attempt", "attempt", attempt, "max_attempts", maxAttempts)

		if err := s.graph.SetState(StatePlaying); err != nil {
			slog.Error("pipeline: failed to set playing state", "error", err, "attempt", attempt)
			continue
		}

		if !sleepCtx(ctx, s.cfg.VerifyDelay) {
			slog.Debug("pipeline: reconnect cancelled during verification")
			return
		}

		state := s.graph.CurrentState()
		if state == StatePlaying {
			elapsed := time.Since(began)
			s.recoveries.Add(1)
			s.recorder.Recovered(elapsed)
			slog.Info("pipeline: reconnection successful",
				"attempt", attempt,
				"elapsed", elapsed,
			)
			s.transition(StatusReconnecting, StatusPlaying, "recovered")
			return
		}

		slog.Warn("pipeline: not playing after restart, will retry",
			"state", state.String(),
			"attempt", attempt,
		)
	}

	if err := s.graph.SetState(StateNull); err != nil {
		slog.Error("pipeline: failed to set null state", "error", err)
	}
	s.recorder.GaveUp()
	slog.Error("pipeline: giving up, camera preview unavailable",
		"attempts", maxAttempts,
		"elapsed", time.Since(began),
	)
	s.transition(StatusReconnecting, StatusFailed, "restart attempts exhausted")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
