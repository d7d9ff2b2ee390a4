package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chbornman/picpop/internal/pipeline"
	"github.com/chbornman/picpop/internal/pipeline/gstgraph"
	"github.com/chbornman/picpop/internal/surface"
)

// consumePreview drains the render surface the way the display would, one
// frame per wake-up, until ctx is cancelled or the surface is closed.
func consumePreview(ctx context.Context, frames *surface.Surface) {
	var last uint64
	for {
		f, err := frames.Wait(ctx, last)
		if err != nil {
			if !errors.Is(err, surface.ErrClosed) && !errors.Is(err, context.Canceled) {
				slog.Warn("preview: consumer stopped", "error", err)
			}
			return
		}
		if last == 0 {
			slog.Info("preview: first frame rendered",
				"width", f.Width,
				"height", f.Height,
				"trace_id", f.TraceID,
			)
		}
		last = f.Seq
	}
}

// reportStats periodically logs preview statistics.
func reportStats(ctx context.Context, interval time.Duration, sup *pipeline.Supervisor, graph *gstgraph.Graph, frames *surface.Surface) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := sup.Stats()
			gs := graph.Stats()
			fs := frames.Stats()
			slog.Info("preview: stats",
				"status", st.Status.String(),
				"uptime", st.Uptime.Round(time.Second),
				"frames", st.Frames,
				"last_frame_age", st.LastFrameAge.Round(time.Millisecond),
				"reconnects", st.Reconnects,
				"restart_attempts", st.RestartAttempts,
				"recoveries", st.Recoveries,
				"stale_detections", st.StaleDetections,
				"eos", st.EOS,
				"errors_network", st.ErrorsNetwork,
				"errors_codec", st.ErrorsCodec,
				"errors_auth", st.ErrorsAuth,
				"errors_unknown", st.ErrorsUnknown,
				"samples", gs.Samples,
				"samples_skipped", gs.Skipped,
				"surface_published", fs.Published,
				"surface_drops", fs.Drops,
			)
		}
	}
}
