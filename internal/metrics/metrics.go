// Package metrics holds the kiosk's Prometheus instruments on a private
// registry. All methods are safe on a nil *Metrics so components can run
// without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the kiosk.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal      *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
	commandFailures  *prometheus.CounterVec
	streamConnects   prometheus.Counter
	streamDrops      prometheus.Counter
	streamConnected  prometheus.Gauge
	kioskState       *prometheus.GaugeVec
	sessionPhotos    prometheus.Gauge
	sessionPhones    prometheus.Gauge
	busErrors        *prometheus.CounterVec
	eosTotal         prometheus.Counter
	staleTotal       prometheus.Counter
	restartAttempts  prometheus.Counter
	recoveriesTotal  prometheus.Counter
	recoverySeconds  prometheus.Histogram
	gaveUpTotal      prometheus.Counter
	pipelineStatus   *prometheus.GaugeVec
	pipelineFrames   prometheus.Gauge
	lastFrameSeconds prometheus.Gauge
	surfaceDrops     prometheus.Gauge
}

var (
	kioskStates    = []string{"welcome", "session", "countdown", "processing"}
	pipelineStates = []string{"idle", "playing", "reconnecting", "failed"}
)

// New creates and registers the kiosk metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picpop_kiosk_events_total",
			Help: "Events processed by the session controller",
		}, []string{"event"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picpop_kiosk_commands_total",
			Help: "Commands executed by the kiosk executor",
		}, []string{"command"}),
		commandFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picpop_kiosk_command_failures_total",
			Help: "Backend requests issued by a command that failed",
		}, []string{"command"}),
		streamConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picpop_eventstream_connects_total",
			Help: "Event stream connections established",
		}),
		streamDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picpop_eventstream_disconnects_total",
			Help: "Event stream connections lost or failed to open",
		}),
		streamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picpop_eventstream_connected",
			Help: "1 if the event stream is connected",
		}),
		kioskState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "picpop_kiosk_state",
			Help: "1 for the current kiosk state",
		}, []string{"state"}),
		sessionPhotos: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picpop_session_photos",
			Help: "Photos in the current session",
		}),
		sessionPhones: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picpop_session_phones",
			Help: "Phones connected to the current session",
		}),
		busErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picpop_pipeline_bus_errors_total",
			Help: "Preview pipeline bus errors by category",
		}, []string{"category"}),
		eosTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picpop_pipeline_eos_total",
			Help: "Preview pipeline end-of-stream messages",
		}),
		staleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picpop_pipeline_stale_total",
			Help: "Preview streams detected as stale",
		}),
		restartAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picpop_pipeline_restart_attempts_total",
			Help: "Preview pipeline restart attempts",
		}),
		recoveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picpop_pipeline_recoveries_total",
			Help: "Successful preview pipeline reconnections",
		}),
		recoverySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "picpop_pipeline_recovery_seconds",
			Help:    "Time from failure detection to verified playback",
			Buckets: []float64{2, 4, 6, 10, 20, 30, 45},
		}),
		gaveUpTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picpop_pipeline_gave_up_total",
			Help: "Times the preview supervisor exhausted its restart attempts",
		}),
		pipelineStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "picpop_pipeline_status",
			Help: "1 for the current preview supervisor status",
		}, []string{"status"}),
		pipelineFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picpop_pipeline_frames",
			Help: "Frames decoded since the stream last (re)connected",
		}),
		lastFrameSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picpop_pipeline_last_frame_age_seconds",
			Help: "Seconds since the last decoded frame",
		}),
		surfaceDrops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picpop_surface_dropped_frames",
			Help: "Frames overwritten before the renderer consumed them",
		}),
	}

	registry.MustRegister(
		m.eventsTotal,
		m.commandsTotal,
		m.commandFailures,
		m.streamConnects,
		m.streamDrops,
		m.streamConnected,
		m.kioskState,
		m.sessionPhotos,
		m.sessionPhones,
		m.busErrors,
		m.eosTotal,
		m.staleTotal,
		m.restartAttempts,
		m.recoveriesTotal,
		m.recoverySeconds,
		m.gaveUpTotal,
		m.pipelineStatus,
		m.pipelineFrames,
		m.lastFrameSeconds,
		m.surfaceDrops,
	)

	return m
}

// IncEvent counts one processed controller event.
func (m *Metrics) IncEvent(name string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(name).Inc()
}

// IncCommand counts one executed command.
func (m *Metrics) IncCommand(name string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(name).Inc()
}

// IncCommandFailure counts a failed backend request.
func (m *Metrics) IncCommandFailure(name string) {
	if m == nil {
		return
	}
	m.commandFailures.WithLabelValues(name).Inc()
}

// StreamConnected records an event stream connection.
func (m *Metrics) StreamConnected() {
	if m == nil {
		return
	}
	m.streamConnects.Inc()
	m.streamConnected.Set(1)
}

// StreamDisconnected records a lost or failed event stream connection.
func (m *Metrics) StreamDisconnected() {
	if m == nil {
		return
	}
	m.streamDrops.Inc()
	m.streamConnected.Set(0)
}

// StreamClosed clears the connected gauge when the stream is closed on purpose.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streamConnected.Set(0)
}

// SetKioskState marks state as the current kiosk state.
func (m *Metrics) SetKioskState(state string) {
	if m == nil {
		return
	}
	setOneHot(m.kioskState, kioskStates, state)
}

// SetSession records the size of the current session.
func (m *Metrics) SetSession(phones uint32, photos int) {
	if m == nil {
		return
	}
	m.sessionPhones.Set(float64(phones))
	m.sessionPhotos.Set(float64(photos))
}

// SetPipelineStatus marks status as the current supervisor status.
func (m *Metrics) SetPipelineStatus(status string) {
	if m == nil {
		return
	}
	setOneHot(m.pipelineStatus, pipelineStates, status)
}

// SetPipelineFrames updates frame liveness gauges.
func (m *Metrics) SetPipelineFrames(frames uint64, lastFrameAge time.Duration) {
	if m == nil {
		return
	}
	m.pipelineFrames.Set(float64(frames))
	m.lastFrameSeconds.Set(lastFrameAge.Seconds())
}

// SetSurfaceDrops updates the render surface drop gauge.
func (m *Metrics) SetSurfaceDrops(n uint64) {
	if m == nil {
		return
	}
	m.surfaceDrops.Set(float64(n))
}

// BusError implements pipeline.Recorder.
func (m *Metrics) BusError(category string) {
	if m == nil {
		return
	}
	m.busErrors.WithLabelValues(category).Inc()
}

// EndOfStream implements pipeline.Recorder.
func (m *Metrics) EndOfStream() {
	if m == nil {
		return
	}
	m.eosTotal.Inc()
}

// StaleDetected implements pipeline.Recorder.
func (m *Metrics) StaleDetected() {
	if m == nil {
		return
	}
	m.staleTotal.Inc()
}

// RestartAttempt implements pipeline.Recorder.
func (m *Metrics) RestartAttempt() {
	if m == nil {
		return
	}
	m.restartAttempts.Inc()
}

// Recovered implements pipeline.Recorder.
func (m *Metrics) Recovered(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.recoveriesTotal.Inc()
	m.recoverySeconds.Observe(elapsed.Seconds())
}

// GaveUp implements pipeline.Recorder.
func (m *Metrics) GaveUp() {
	if m == nil {
		return
	}
	m.gaveUpTotal.Inc()
}

// Handler returns an http.Handler that serves the registry.
// updateGauges is called before each scrape to refresh sampled gauges.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func setOneHot(g *prometheus.GaugeVec, labels []string, current string) {
	for _, l := range labels {
		v := 0.0
		if l == current {
			v = 1
		}
		g.WithLabelValues(l).Set(v)
	}
}
