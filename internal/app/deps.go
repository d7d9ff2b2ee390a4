package app

import (
	"context"

	"github.com/chbornman/picpop/internal/api"
	"github.com/chbornman/picpop/internal/eventstream"
	"github.com/chbornman/picpop/internal/kiosk"
	"github.com/chbornman/picpop/internal/operator"
	"github.com/chbornman/picpop/internal/pipeline"
)

// SessionAPI is the backend surface the executor calls.
type SessionAPI interface {
	CreateSession(ctx context.Context) (api.CreateSessionResponse, error)
	EndSession(ctx context.Context, sessionID string) error
	TriggerCapture(ctx context.Context, sessionID string) error
}

// StreamHandle controls one session event stream.
type StreamHandle interface {
	SessionID() string
	Connected() bool
	Close()
}

// StreamDialer opens session event streams.
type StreamDialer interface {
	Connect(sessionID string, sink eventstream.Sink) StreamHandle
}

// View renders controller snapshots. Render is called from the executor
// loop and must not block.
type View interface {
	Render(snap kiosk.Snapshot)
}

// Operator receives status reports and faults. Both calls must not block.
type Operator interface {
	PublishStatus(operator.StatusReport) error
	PublishFault(operator.Fault) error
	Connected() bool
}

// Preview exposes the preview supervisor's counters.
type Preview interface {
	Stats() pipeline.Stats
}

// NewStreamDialer adapts an eventstream client to StreamDialer.
func NewStreamDialer(c *eventstream.Client) StreamDialer {
	return streamDialer{c}
}

type streamDialer struct {
	c *eventstream.Client
}

func (d streamDialer) Connect(sessionID string, sink eventstream.Sink) StreamHandle {
	return d.c.Connect(sessionID, sink)
}
