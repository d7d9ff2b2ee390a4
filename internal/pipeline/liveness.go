package pipeline

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Liveness tracks decoded-frame arrival. The graph calls Frame from its
// streaming thread; the watchdog reads it. All methods are lock-free.
type Liveness struct {
	lastFrame atomic.Int64 // unix nanos, 0 = never
	frames    atomic.Uint64
	now       func() time.Time
}

// NewLiveness returns a tracker that has seen no frames.
func NewLiveness() *Liveness {
	return &Liveness{now: time.Now}
}

// Frame records one decoded frame.
func (l *Liveness) Frame() {
	n := l.frames.Add(1)
	l.lastFrame.Store(l.now().UnixNano())

	if n == 1 {
		slog.Info("pipeline: first frame decoded")
	} else if n%300 == 0 {
		slog.Debug("pipeline: frames decoded", "frames", n)
	}
}

// Reset marks a new stream: the frame count restarts and the stale window
// begins now.
func (l *Liveness) Reset() {
	l.frames.Store(0)
	l.lastFrame.Store(l.now().UnixNano())
}

// Frames returns the number of frames since the last Reset.
func (l *Liveness) Frames() uint64 { return l.frames.Load() }

// LastFrame returns the time of the most recent frame or Reset. ok is false
// if neither has happened.
func (l *Liveness) LastFrame() (t time.Time, ok bool) {
	ns := l.lastFrame.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Since returns the time elapsed since LastFrame, or 0 if none.
func (l *Liveness) Since() time.Duration {
	t, ok := l.LastFrame()
	if !ok {
		return 0
	}
	d := l.now().Sub(t)
	if d < 0 {
		return 0
	}
	return d
}
