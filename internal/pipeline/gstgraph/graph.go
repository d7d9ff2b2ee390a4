// Package gstgraph builds the GStreamer decode graph for the kiosk's MJPEG
// camera preview.
//
// Graph structure:
//
//	souphttpsrc → multipartdemux → jpegdec → videoconvert → queue →
//	capsfilter(RGBA) → appsink
//
// multipartdemux exposes its source pad only once the stream is parsed, so
// the demux → decoder link is made in the pad-added callback. A buffer probe
// on the decoder output feeds pipeline.Liveness; the appsink publishes RGBA
// frames to the render surface.
package gstgraph

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/chbornman/picpop/internal/pipeline"
	"github.com/chbornman/picpop/internal/surface"
)

// FrameSink receives decoded frames. surface.Surface implements it.
type FrameSink interface {
	Publish(*surface.Frame)
}

// Config describes the preview source.
type Config struct {
	// URL of the multipart/x-mixed-replace MJPEG endpoint.
	URL string
	// QueueBuffers bounds the decoupling queue (default 3).
	QueueBuffers int
}

// Graph implements pipeline.Graph on top of a GStreamer pipeline.
type Graph struct {
	pipeline *gst.Pipeline
	bus      *gst.Bus
	decoder  *gst.Element
	sink     *app.Sink

	live   *pipeline.Liveness
	frames FrameSink

	samples atomic.Uint64
	skipped atomic.Uint64
}

// Stats counts appsink samples.
type Stats struct {
	Samples uint64 // published to the sink
	Skipped uint64 // empty or unreadable
}

// New builds the graph in the Null state. live and frames must not be nil.
func New(cfg Config, live *pipeline.Liveness, frames FrameSink) (*Graph, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("gstgraph: preview URL is required")
	}
	if live == nil || frames == nil {
		return nil, fmt.Errorf("gstgraph: liveness tracker and frame sink are required")
	}
	if cfg.QueueBuffers <= 0 {
		cfg.QueueBuffers = 3
	}

	// Safe to call multiple times.
	gst.Init(nil)

	pl, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstgraph: failed to create pipeline: %w", err)
	}

	source, err := newElement("souphttpsrc", map[string]interface{}{
		"location":     cfg.URL,
		"is-live":      true,
		"do-timestamp": true,
	})
	if err != nil {
		return nil, err
	}
	demux, err := newElement("multipartdemux", nil)
	if err != nil {
		return nil, err
	}
	decoder, err := newElement("jpegdec", nil)
	if err != nil {
		return nil, err
	}
	convert, err := newElement("videoconvert", nil)
	if err != nil {
		return nil, err
	}
	queue, err := newElement("queue", map[string]interface{}{
		"max-size-buffers": uint(cfg.QueueBuffers),
		"max-size-time":    uint64(0),
		"max-size-bytes":   uint(0),
	})
	if err != nil {
		return nil, err
	}
	capsfilter, err := newElement("capsfilter", map[string]interface{}{
		"caps": gst.NewCapsFromString("video/x-raw,format=RGBA"),
	})
	if err != nil {
		return nil, err
	}

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstgraph: failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)    // render as fast as frames arrive
	sink.SetProperty("max-buffers", 1) // keep only the latest frame
	sink.SetProperty("drop", true)

	if err := pl.AddMany(source, demux, decoder, convert, queue, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("gstgraph: failed to add elements: %w", err)
	}
	if err := source.Link(demux); err != nil {
		return nil, fmt.Errorf("gstgraph: failed to link source to demux: %w", err)
	}
	if err := gst.ElementLinkMany(decoder, convert, queue, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("gstgraph: failed to link decode chain: %w", err)
	}

	g := &Graph{
		pipeline: pl,
		bus:      pl.GetPipelineBus(),
		decoder:  decoder,
		sink:     sink,
		live:     live,
		frames:   frames,
	}

	if _, err := demux.Connect("pad-added", g.onPadAdded); err != nil {
		return nil, fmt.Errorf("gstgraph: failed to connect pad-added: %w", err)
	}
	if err := g.installFrameProbe(); err != nil {
		return nil, err
	}
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: g.onNewSample,
	})

	slog.Info("gstgraph: pipeline created", "url", cfg.URL, "queue_buffers", cfg.QueueBuffers)
	return g, nil
}

func newElement(factory string, props map[string]interface{}) (*gst.Element, error) {
	el, err := gst.NewElement(factory)
	if err != nil {
		return nil, fmt.Errorf("gstgraph: failed to create %s: %w", factory, err)
	}
	for name, value := range props {
		if err := el.SetProperty(name, value); err != nil {
			return nil, fmt.Errorf("gstgraph: failed to set %s.%s: %w", factory, name, err)
		}
	}
	return el, nil
}

// onPadAdded links the demux output to the decoder and starts a fresh
// liveness window for the new stream.
func (g *Graph) onPadAdded(_ *gst.Element, srcPad *gst.Pad) {
	slog.Info("gstgraph: demux pad added, stream connected", "pad", srcPad.GetName())
	g.live.Reset()

	sinkPad := g.decoder.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gstgraph: decoder has no sink pad")
		return
	}
	if sinkPad.IsLinked() {
		return
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstgraph: failed to link demux to decoder",
			"src_pad", srcPad.GetName(),
			"ret", ret,
		)
		return
	}
	slog.Debug("gstgraph: linked demux to decoder", "src_pad", srcPad.GetName())
}

func (g *Graph) installFrameProbe() error {
	srcPad := g.decoder.GetStaticPad("src")
	if srcPad == nil {
		return fmt.Errorf("gstgraph: decoder has no src pad")
	}
	srcPad.AddProbe(gst.PadProbeTypeBuffer, func(*gst.Pad, *gst.PadProbeInfo) gst.PadProbeReturn {
		g.live.Frame()
		return gst.PadProbeOK
	})
	return nil
}

// onNewSample copies the RGBA buffer out of GStreamer and publishes it. A
// bad sample is skipped rather than stopping the stream.
func (g *Graph) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		g.skipped.Add(1)
		slog.Warn("gstgraph: failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		g.skipped.Add(1)
		slog.Warn("gstgraph: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		g.skipped.Add(1)
		return gst.FlowOK
	}
	// GStreamer reuses the buffer.
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	width, height := sampleSize(sample)
	g.samples.Add(1)
	g.frames.Publish(&surface.Frame{
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Data:      frameData,
	})

	return gst.FlowOK
}

func sampleSize(sample *gst.Sample) (int, int) {
	caps := sample.GetCaps()
	if caps == nil {
		return 0, 0
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return 0, 0
	}
	return structInt(st, "width"), structInt(st, "height")
}

func structInt(st *gst.Structure, field string) int {
	v, err := st.GetValue(field)
	if err != nil {
		return 0
	}
	if i, ok := v.(int); ok {
		return i
	}
	return 0
}

// SetState implements pipeline.Graph. Null is reached synchronously.
func (g *Graph) SetState(st pipeline.State) error {
	if err := g.pipeline.SetState(toGst(st)); err != nil {
		return fmt.Errorf("gstgraph: set state %s: %w", st, err)
	}
	return nil
}

// CurrentState implements pipeline.Graph.
func (g *Graph) CurrentState() pipeline.State {
	return fromGst(g.pipeline.GetCurrentState())
}

// Poll implements pipeline.Graph. Only messages the supervisor acts on or
// logs are translated; everything else reports ok == false.
func (g *Graph) Poll(timeout time.Duration) (pipeline.Message, bool) {
	msg := g.bus.TimedPop(timeout)
	if msg == nil {
		return nil, false
	}

	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		return pipeline.ErrorMessage{
			Source: msg.Source(),
			Err:    gerr.Error(),
			Debug:  gerr.DebugString(),
		}, true

	case gst.MessageEOS:
		return pipeline.EOSMessage{Source: msg.Source()}, true

	case gst.MessageWarning:
		gwarn := msg.ParseWarning()
		return pipeline.WarningMessage{
			Source: msg.Source(),
			Err:    gwarn.Error(),
			Debug:  gwarn.DebugString(),
		}, true

	case gst.MessageStateChanged:
		if msg.Source() != g.pipeline.GetName() {
			return nil, false
		}
		prev, next := msg.ParseStateChanged()
		return pipeline.StateChangedMessage{Old: fromGst(prev), New: fromGst(next)}, true
	}

	return nil, false
}

// Stats returns sample counters.
func (g *Graph) Stats() Stats {
	return Stats{Samples: g.samples.Load(), Skipped: g.skipped.Load()}
}

func toGst(st pipeline.State) gst.State {
	switch st {
	case pipeline.StateNull:
		return gst.StateNull
	case pipeline.StateReady:
		return gst.StateReady
	case pipeline.StatePaused:
		return gst.StatePaused
	case pipeline.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.VoidPending
	}
}

func fromGst(st gst.State) pipeline.State {
	switch st {
	case gst.StateNull:
		return pipeline.StateNull
	case gst.StateReady:
		return pipeline.StateReady
	case gst.StatePaused:
		return pipeline.StatePaused
	case gst.StatePlaying:
		return pipeline.StatePlaying
	default:
		return pipeline.StateVoidPending
	}
}

var _ pipeline.Graph = (*Graph)(nil)
