// Package surface hands decoded preview frames from the media graph to the
// renderer.
//
// A Surface is a single-slot mailbox: Publish overwrites whatever frame is
// waiting, so a slow renderer always sees the newest frame and never makes
// the graph wait. Overwritten frames that were never consumed are counted as
// drops.
package surface

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("surface: closed")

// Frame is one decoded RGBA image. Data must not be modified after Publish.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
	TraceID   string
}

// Stats is a snapshot of surface counters.
type Stats struct {
	Published     uint64
	Drops         uint64
	LastSeq       uint64
	LastPublished time.Time
}

// Surface is safe for concurrent use by one or more publishers and readers.
type Surface struct {
	mu       sync.Mutex
	cond     *sync.Cond
	latest   *Frame
	consumed bool
	seq      uint64
	closed   bool

	published atomic.Uint64
	drops     atomic.Uint64
}

// New returns an empty surface.
func New() *Surface {
	s := &Surface{consumed: true}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish stores f as the latest frame and wakes waiting readers. It assigns
// f.Seq and fills in a missing Timestamp or TraceID. Publishing after Close
// is a no-op.
func (s *Surface) Publish(f *Frame) {
	if f == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.consumed {
		s.drops.Add(1)
	}

	s.seq++
	f.Seq = s.seq
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	if f.TraceID == "" {
		f.TraceID = uuid.New().String()
	}

	s.latest = f
	s.consumed = false
	s.published.Add(1)
	s.cond.Broadcast()
}

// Latest returns the newest frame without consuming it.
func (s *Surface) Latest() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != nil
}

// Wait blocks until a frame newer than afterSeq is available, then returns
// it and marks it consumed. Pass 0 to accept any frame.
func (s *Surface) Wait(ctx context.Context, afterSeq uint64) (*Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.latest != nil && s.latest.Seq > afterSeq {
			s.consumed = true
			return s.latest, nil
		}
		s.cond.Wait()
	}
}

// Close wakes all readers; subsequent Waits return ErrClosed.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Stats returns surface counters.
func (s *Surface) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Published: s.published.Load(),
		Drops:     s.drops.Load(),
		LastSeq:   s.seq,
	}
	if s.latest != nil {
		st.LastPublished = s.latest.Timestamp
	}
	return st
}
