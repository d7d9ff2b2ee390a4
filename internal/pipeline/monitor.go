package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// monitorBus polls the graph bus until ctx is cancelled. The poll timeout
// keeps shutdown responsive.
func (s *Supervisor) monitorBus(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("pipeline: context cancelled, stopping bus monitor")
			return
		default:
		}

		msg, ok := s.graph.Poll(s.cfg.PollInterval)
		if !ok {
			continue
		}
		s.handleMessage(ctx, msg)
	}
}

func (s *Supervisor) handleMessage(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case ErrorMessage:
		category := ClassifyError(m.Err, m.Debug)
		s.countError(category)
		s.recorder.BusError(category.String())

		slog.Error("pipeline: bus error",
			"source", m.Source,
			"error", m.Err,
			"debug", m.Debug,
			"category", category.String(),
			"status", s.Status().String(),
			"frames", s.live.Frames(),
			"uptime", s.uptime(),
		)
		s.requestReconnect(ctx, "error")

	case EOSMessage:
		s.eos.Add(1)
		s.recorder.EndOfStream()

		slog.Warn("pipeline: end of stream, camera disconnected or stream ended",
			"source", m.Source,
			"frames", s.live.Frames(),
			"uptime", s.uptime(),
		)
		s.requestReconnect(ctx, "eos")

	case WarningMessage:
		slog.Warn("pipeline: bus warning",
			"source", m.Source,
			"warning", m.Err,
			"debug", m.Debug,
		)

	case StateChangedMessage:
		slog.Debug("pipeline: graph state changed",
			"from", m.Old.String(),
			"to", m.New.String(),
		)
	}
}

func (s *Supervisor) countError(c ErrorCategory) {
	switch c {
	case ErrCategoryNetwork:
		s.errNetwork.Add(1)
	case ErrCategoryCodec:
		s.errCodec.Add(1)
	case ErrCategoryAuth:
		s.errAuth.Add(1)
	default:
		s.errUnknown.Add(1)
	}
}

func (s *Supervisor) uptime() time.Duration {
	ns := s.startedAt.Load()
	if ns == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ns))
}
