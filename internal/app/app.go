// Package app is the kiosk's composition root. It feeds events to the
// session controller from a single goroutine and turns the resulting
// commands into backend calls, event stream changes, timers and renders.
// Outcomes of asynchronous work come back as new events.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chbornman/picpop/internal/health"
	"github.com/chbornman/picpop/internal/kiosk"
	"github.com/chbornman/picpop/internal/metrics"
	"github.com/chbornman/picpop/internal/operator"
	"github.com/chbornman/picpop/internal/pipeline"
)

var (
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("app: already running")
	// ErrStopped is returned for requests made after Run has exited.
	ErrStopped = errors.New("app: executor stopped")
)

const previewComponent = "preview"

// Config tunes the executor.
type Config struct {
	ErrorDisplay time.Duration // how long an error stays on screen
	EventBuffer  int
}

// DefaultConfig returns the standard executor settings.
func DefaultConfig() Config {
	return Config{
		ErrorDisplay: 5000 * time.Millisecond,
		EventBuffer:  64,
	}
}

// Deps are the collaborators the executor drives. Operator and Metrics may
// be nil.
type Deps struct {
	API      SessionAPI
	Streams  StreamDialer
	View     View
	Operator Operator
	Metrics  *metrics.Metrics
}

// App owns the controller and every side effect it requests.
type App struct {
	cfg  Config
	deps Deps

	ctrl   *kiosk.Controller
	events chan kiosk.Event

	running  atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
	errTimer *time.Timer

	mu      sync.Mutex
	stream  StreamHandle
	snap    kiosk.Snapshot
	preview Preview
}

// New validates deps and creates an App.
func New(cfg Config, deps Deps) (*App, error) {
	if deps.API == nil {
		return nil, fmt.Errorf("app: session api is required")
	}
	if deps.Streams == nil {
		return nil, fmt.Errorf("app: stream dialer is required")
	}
	if deps.View == nil {
		return nil, fmt.Errorf("app: view is required")
	}
	def := DefaultConfig()
	if cfg.ErrorDisplay <= 0 {
		cfg.ErrorDisplay = def.ErrorDisplay
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	ctrl := kiosk.NewController()
	return &App{
		cfg:    cfg,
		deps:   deps,
		ctrl:   ctrl,
		events: make(chan kiosk.Event, cfg.EventBuffer),
		done:   make(chan struct{}),
		snap:   ctrl.Snapshot(),
	}, nil
}

// AttachPreview registers the preview supervisor for health reporting.
// Call before Run.
func (a *App) AttachPreview(p Preview) {
	a.mu.Lock()
	a.preview = p
	a.mu.Unlock()
}

// Send queues ev for the controller. It is safe from any goroutine and
// returns false once Run has exited.
func (a *App) Send(ev kiosk.Event) bool {
	select {
	case a.events <- ev:
		return true
	case <-a.done:
		return false
	}
}

// Run processes events until ctx is cancelled. The controller is only
// touched from this goroutine.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(a.done)

	slog.Info("app: executor started", "error_display", a.cfg.ErrorDisplay)
	a.render()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case ev := <-a.events:
			a.handle(ctx, ev)
		}
	}
}

func (a *App) handle(ctx context.Context, ev kiosk.Event) {
	name := kiosk.EventName(ev)
	a.deps.Metrics.IncEvent(name)

	switch ev.(type) {
	case kiosk.StreamConnected:
		a.deps.Metrics.StreamConnected()
	case kiosk.StreamDisconnected:
		a.deps.Metrics.StreamDisconnected()
	}

	before := a.ctrl.State()
	cmds := a.ctrl.Process(ev)
	if after := a.ctrl.State(); after != before {
		slog.Info("app: state changed", "event", name, "from", before.String(), "to", after.String())
	} else {
		slog.Debug("app: event processed", "event", name, "state", after.String(), "commands", len(cmds))
	}

	for _, cmd := range cmds {
		a.execute(ctx, cmd)
	}
}

func (a *App) execute(ctx context.Context, cmd kiosk.Command) {
	a.deps.Metrics.IncCommand(cmd.Kind.String())

	switch cmd.Kind {
	case kiosk.CommandCreateSession:
		a.async(ctx, func(ctx context.Context) kiosk.Event {
			resp, err := a.deps.API.CreateSession(ctx)
			if err != nil {
				a.deps.Metrics.IncCommandFailure(cmd.Kind.String())
				slog.Warn("app: create session failed", "error", err)
				return kiosk.SessionCreateFailed{Err: err.Error()}
			}
			return kiosk.SessionCreated{ID: resp.ID}
		})

	case kiosk.CommandEndSession:
		id := cmd.SessionID
		a.async(ctx, func(ctx context.Context) kiosk.Event {
			if err := a.deps.API.EndSession(ctx, id); err != nil {
				a.deps.Metrics.IncCommandFailure(cmd.Kind.String())
				slog.Warn("app: end session failed, returning to welcome anyway",
					"session_id", id,
					"error", err,
				)
			}
			return kiosk.SessionEnded{}
		})

	case kiosk.CommandTriggerCapture:
		id := cmd.SessionID
		a.async(ctx, func(ctx context.Context) kiosk.Event {
			if err := a.deps.API.TriggerCapture(ctx, id); err != nil {
				a.deps.Metrics.IncCommandFailure(cmd.Kind.String())
				slog.Warn("app: capture request failed", "session_id", id, "error", err)
				return kiosk.CaptureFailed{Err: err.Error()}
			}
			return nil
		})

	case kiosk.CommandConnectEventStream:
		a.closeStream()
		h := a.deps.Streams.Connect(cmd.SessionID, a.streamSink)
		a.mu.Lock()
		a.stream = h
		a.mu.Unlock()

	case kiosk.CommandDisconnectEventStream:
		a.closeStream()

	case kiosk.CommandScheduleErrorClear:
		if a.errTimer != nil {
			a.errTimer.Stop()
		}
		a.errTimer = time.AfterFunc(a.cfg.ErrorDisplay, func() {
			a.Send(kiosk.ClearError{})
		})

	case kiosk.CommandUpdateUI:
		a.render()

	default:
		slog.Warn("app: unknown command", "kind", int(cmd.Kind))
	}
}

// async runs fn in a goroutine and feeds its event, if any, back to Run.
func (a *App) async(ctx context.Context, fn func(context.Context) kiosk.Event) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ev := fn(ctx)
		if ev == nil {
			return
		}
		select {
		case a.events <- ev:
		case <-ctx.Done():
		}
	}()
}

func (a *App) streamSink(ctx context.Context, ev kiosk.Event) {
	select {
	case a.events <- ev:
	case <-ctx.Done():
	case <-a.done:
	}
}

func (a *App) closeStream() {
	a.mu.Lock()
	h := a.stream
	a.stream = nil
	a.mu.Unlock()

	if h == nil {
		return
	}
	h.Close()
	a.deps.Metrics.StreamClosed()
	slog.Info("app: event stream closed", "session_id", h.SessionID())
}

func (a *App) render() {
	snap := a.ctrl.Snapshot()

	a.mu.Lock()
	a.snap = snap
	a.mu.Unlock()

	a.deps.View.Render(snap)
	a.deps.Metrics.SetKioskState(snap.State.String())
	a.deps.Metrics.SetSession(snap.PhoneCount, len(snap.Photos))
	a.publishStatus()
}

func (a *App) shutdown() {
	if a.errTimer != nil {
		a.errTimer.Stop()
	}
	a.closeStream()
	a.wg.Wait()
	slog.Info("app: executor stopped", "state", a.ctrl.State().String())
}

// PreviewStatusChanged is the pipeline.StatusListener for the preview
// supervisor. It runs on supervisor goroutines.
func (a *App) PreviewStatusChanged(from, to pipeline.Status) {
	a.deps.Metrics.SetPipelineStatus(to.String())

	switch to {
	case pipeline.StatusFailed:
		slog.Error("app: camera preview failed, operator attention required",
			"from", from.String(),
		)
		a.publishFault(operator.Fault{
			Component: previewComponent,
			Active:    true,
			Status:    to.String(),
			Reason:    "restart attempts exhausted",
		})
	case pipeline.StatusReconnecting:
		slog.Warn("app: camera preview reconnecting", "from", from.String())
	case pipeline.StatusPlaying:
		slog.Info("app: camera preview playing", "from", from.String())
		if from == pipeline.StatusIdle {
			a.publishFault(operator.Fault{
				Component: previewComponent,
				Active:    false,
				Status:    to.String(),
			})
		}
	default:
		slog.Info("app: camera preview status", "from", from.String(), "to", to.String())
	}

	a.publishStatus()
}

func (a *App) publishStatus() {
	if a.deps.Operator == nil {
		return
	}

	a.mu.Lock()
	snap := a.snap
	stream := a.stream
	preview := a.preview
	a.mu.Unlock()

	report := operator.StatusReport{
		KioskState: snap.State.String(),
		SessionID:  snap.SessionID,
		PhoneCount: snap.PhoneCount,
		Photos:     len(snap.Photos),
		Error:      snap.Error,
	}
	if stream != nil {
		report.StreamConnected = stream.Connected()
	}
	if preview != nil {
		report.PreviewStatus = preview.Stats().Status.String()
	}

	if err := a.deps.Operator.PublishStatus(report); err != nil {
		slog.Debug("app: status report not queued", "error", err)
	}
}

func (a *App) publishFault(f operator.Fault) {
	if a.deps.Operator == nil {
		return
	}
	if err := a.deps.Operator.PublishFault(f); err != nil {
		slog.Warn("app: fault report not queued", "component", f.Component, "error", err)
	}
}

// HealthSnapshot implements health.Reporter.
func (a *App) HealthSnapshot() health.Snapshot {
	a.mu.Lock()
	snap := a.snap
	stream := a.stream
	preview := a.preview
	a.mu.Unlock()

	out := health.Snapshot{
		KioskState:   snap.State.String(),
		SessionID:    snap.SessionID,
		StreamActive: stream != nil,
	}
	if stream != nil {
		out.StreamConnected = stream.Connected()
	}
	if preview != nil {
		out.Pipeline = preview.Stats()
	}
	if a.deps.Operator != nil {
		out.OperatorEnabled = true
		out.OperatorConnected = a.deps.Operator.Connected()
	}
	return out
}

// RequestEndSession ends the current session on behalf of an operator.
func (a *App) RequestEndSession() error {
	if !a.Send(kiosk.EndSession{}) {
		return ErrStopped
	}
	return nil
}

// StatusData summarizes the kiosk for operator status queries.
func (a *App) StatusData() map[string]interface{} {
	s := a.HealthSnapshot()
	status, reasons := health.Evaluate(s)

	a.mu.Lock()
	snap := a.snap
	a.mu.Unlock()

	return map[string]interface{}{
		"health":           status,
		"reasons":          reasons,
		"kiosk_state":      s.KioskState,
		"session_id":       s.SessionID,
		"phone_count":      snap.PhoneCount,
		"photos":           len(snap.Photos),
		"stream_connected": s.StreamConnected,
		"preview_status":   s.Pipeline.Status.String(),
		"preview_frames":   s.Pipeline.Frames,
	}
}
