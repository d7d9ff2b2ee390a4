package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chbornman/picpop/internal/api"
	"github.com/chbornman/picpop/internal/app"
	"github.com/chbornman/picpop/internal/config"
	"github.com/chbornman/picpop/internal/eventstream"
	"github.com/chbornman/picpop/internal/health"
	"github.com/chbornman/picpop/internal/metrics"
	"github.com/chbornman/picpop/internal/operator"
	"github.com/chbornman/picpop/internal/pipeline"
	"github.com/chbornman/picpop/internal/pipeline/gstgraph"
	"github.com/chbornman/picpop/internal/surface"
)

const (
	defaultConfigPath = "config/kiosk.yaml"
	statsInterval     = 30 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("starting picpop kiosk",
		"config", *configPath,
		"debug", *debug,
	)

	if err := run(*configPath); err != nil {
		slog.Error("kiosk failed", "error", err)
		os.Exit(1)
	}
	slog.Info("picpop kiosk stopped successfully")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	apiClient, err := api.New(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.RequestTimeout,
		QRSize:  cfg.API.QRSize,
	})
	if err != nil {
		return err
	}

	streams, err := eventstream.NewClient(eventstream.Config{
		WSBaseURL:      cfg.API.WSBaseURL,
		ReconnectDelay: cfg.EventStream.ReconnectDelay,
	})
	if err != nil {
		return err
	}

	var reporter *operator.Reporter
	if cfg.MQTT.Broker != "" {
		reporter, err = operator.NewReporter(operator.Config{
			Broker:       cfg.MQTT.Broker,
			KioskID:      cfg.KioskID,
			StatusTopic:  cfg.MQTT.Topics.Status,
			FaultTopic:   cfg.MQTT.Topics.Faults,
			ControlTopic: cfg.MQTT.Topics.Control,
			QoS:          cfg.MQTT.QoS,
		})
		if err != nil {
			return err
		}
	} else {
		slog.Info("operator reporting disabled (no mqtt.broker)")
	}

	view := newLogView(ctx, apiClient)
	deps := app.Deps{
		API:     apiClient,
		Streams: app.NewStreamDialer(streams),
		View:    view,
		Metrics: m,
	}
	if reporter != nil {
		deps.Operator = reporter
	}
	executor, err := app.New(app.Config{ErrorDisplay: cfg.UI.ErrorDisplay}, deps)
	if err != nil {
		return err
	}

	frames := surface.New()
	live := pipeline.NewLiveness()
	graph, err := gstgraph.New(gstgraph.Config{
		URL:          cfg.Preview.URL,
		QueueBuffers: cfg.Preview.QueueBuffers,
	}, live, frames)
	if err != nil {
		return err
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.ReconnectDelay = cfg.Preview.ReconnectDelay
	pcfg.VerifyDelay = cfg.Preview.VerifyDelay
	pcfg.StaleCheckInterval = cfg.Preview.StaleCheckInterval
	pcfg.StaleThreshold = cfg.Preview.StaleThreshold
	pcfg.MaxRestartAttempts = cfg.Preview.MaxRestartAttempts

	supervisor, err := pipeline.NewSupervisor(graph, live, pcfg,
		pipeline.WithStatusListener(executor.PreviewStatusChanged),
		pipeline.WithRecorder(m),
	)
	if err != nil {
		return err
	}
	executor.AttachPreview(supervisor)

	if reporter != nil {
		reporter.SetControl(operator.ControlCallbacks{
			OnGetStatus:  executor.StatusData,
			OnEndSession: executor.RequestEndSession,
		})
		if err := reporter.Connect(ctx); err != nil {
			// The client keeps retrying in the background.
			slog.Warn("operator broker unavailable at startup", "error", err)
		}
	}

	updateGauges := func() {
		st := supervisor.Stats()
		m.SetPipelineFrames(st.Frames, st.LastFrameAge)
		m.SetSurfaceDrops(frames.Stats().Drops)
	}
	healthServer := health.NewServer(cfg.Health.Addr, executor, m.Handler(updateGauges))

	if err := supervisor.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return executor.Run(gctx) })
	g.Go(func() error { return healthServer.Run(gctx) })
	g.Go(func() error {
		consumePreview(gctx, frames)
		return nil
	})
	g.Go(func() error {
		reportStats(gctx, statsInterval, supervisor, graph, frames)
		return nil
	})
	if reporter != nil {
		g.Go(func() error { return reporter.Run(gctx) })
	}

	<-gctx.Done()
	slog.Info("shutting down gracefully", "timeout", cfg.ShutdownTimeout)

	done := make(chan error, 1)
	go func() {
		frames.Close()
		err := g.Wait()
		if stopErr := supervisor.Stop(); stopErr != nil && !errors.Is(stopErr, pipeline.ErrNotStarted) {
			err = errors.Join(err, stopErr)
		}
		if reporter != nil {
			reporter.Disconnect()
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(cfg.ShutdownTimeout):
		return errors.New("shutdown timed out")
	}
}
