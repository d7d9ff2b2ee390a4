package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// watchdog checks frame liveness every StaleCheckInterval.
func (s *Supervisor) watchdog(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("pipeline: context cancelled, stopping watchdog")
			return
		case <-ticker.C:
			s.checkStale(ctx)
		}
	}
}

// checkStale requests a reconnection when frames have stopped for longer
// than StaleThreshold. Before the first frame it only warns.
func (s *Supervisor) checkStale(ctx context.Context) {
	if s.Status() != StatusPlaying {
		return
	}

	if _, seen := s.live.LastFrame(); seen {
		elapsed := s.live.Since()
		if elapsed <= s.cfg.StaleThreshold {
			return
		}

		s.staleDetections.Add(1)
		s.recorder.StaleDetected()
		slog.Warn("pipeline: stream appears stale",
			"since_last_frame", elapsed,
			"threshold", s.cfg.StaleThreshold,
			"frames", s.live.Frames(),
		)
		s.requestReconnect(ctx, "stale")
		return
	}

	if s.graph.CurrentState() == StatePlaying {
		slog.Warn("pipeline: playing but no frames received yet")
	}
}
