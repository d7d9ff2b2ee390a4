// Package eventstream keeps a kiosk subscribed to its session's event
// channel.
//
// A Handle owns one background loop that dials the backend, forwards decoded
// frames to a Sink, and redials after a fixed delay whenever the connection
// drops. Delivery is at-most-once per connection: frames sent while the kiosk
// is disconnected are lost and no resynchronization is attempted.
//
// Every connection is bracketed by kiosk.StreamConnected and
// kiosk.StreamDisconnected so the consumer can observe link health.
package eventstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chbornman/picpop/internal/kiosk"
)

// Sink receives events from the stream loop. ctx is cancelled when the
// handle is closed; a Sink that blocks must honor it.
type Sink func(ctx context.Context, ev kiosk.Event)

// Config configures a Client.
type Config struct {
	// WSBaseURL is the ws:// or wss:// origin of the backend.
	WSBaseURL        string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the configuration used against a local backend.
func DefaultConfig() Config {
	return Config{
		WSBaseURL:        "ws://localhost:8000",
		ReconnectDelay:   2000 * time.Millisecond,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Client dials session event channels.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.WSBaseURL)
	if err != nil {
		return nil, fmt.Errorf("eventstream: invalid base url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("eventstream: base url must use ws or wss, got %q", u.Scheme)
	}
	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("eventstream: reconnect delay must be positive, got %v", cfg.ReconnectDelay)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, nil
}

// SessionURL returns the event channel URL for a session.
func (c *Client) SessionURL(sessionID string) string {
	return strings.TrimRight(c.cfg.WSBaseURL, "/") + "/api/v1/ws/kiosk/" + url.PathEscape(sessionID)
}

// Connect starts the stream loop for sessionID and returns immediately.
// The loop runs until the returned Handle is closed.
func (c *Client) Connect(sessionID string, sink Sink) *Handle {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Handle{
		sessionID: sessionID,
		url:       c.SessionURL(sessionID),
		delay:     c.cfg.ReconnectDelay,
		dialer:    c.dialer,
		sink:      sink,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	slog.Info("eventstream: starting", "session_id", sessionID, "url", h.url)
	go h.run(ctx)

	return h
}

// Stats is a point-in-time view of a handle's counters.
type Stats struct {
	SessionID     string
	Connected     bool
	Connects      uint64
	Disconnects   uint64
	Events        uint64
	FramesDropped uint64
}

// Handle controls one running stream loop.
type Handle struct {
	sessionID string
	url       string
	delay     time.Duration
	dialer    *websocket.Dialer
	sink      Sink

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	connected     atomic.Bool
	connects      atomic.Uint64
	disconnects   atomic.Uint64
	events        atomic.Uint64
	framesDropped atomic.Uint64
}

// SessionID returns the session this handle is subscribed to.
func (h *Handle) SessionID() string { return h.sessionID }

// Connected reports whether a connection is currently open.
func (h *Handle) Connected() bool { return h.connected.Load() }

// Stats returns the handle's counters.
func (h *Handle) Stats() Stats {
	return Stats{
		SessionID:     h.sessionID,
		Connected:     h.connected.Load(),
		Connects:      h.connects.Load(),
		Disconnects:   h.disconnects.Load(),
		Events:        h.events.Load(),
		FramesDropped: h.framesDropped.Load(),
	}
}

// Close stops the loop, interrupting an in-flight read or reconnect wait,
// and waits for it to exit. The sink is never called after Close returns.
// Close is idempotent.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		slog.Info("eventstream: closing", "session_id", h.sessionID)
		h.cancel()
	})
	<-h.done
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	defer h.connected.Store(false)

	for {
		err := h.serve(ctx)
		if ctx.Err() != nil {
			slog.Debug("eventstream: loop stopped", "session_id", h.sessionID)
			return
		}

		h.connected.Store(false)
		h.disconnects.Add(1)
		slog.Warn("eventstream: disconnected, will retry",
			"session_id", h.sessionID,
			"error", err,
			"delay", h.delay,
		)
		h.sink(ctx, kiosk.StreamDisconnected{})

		timer := time.NewTimer(h.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Debug("eventstream: closed during reconnect wait", "session_id", h.sessionID)
			return
		}
	}
}

// serve runs a single connection until it fails or ctx is cancelled.
func (h *Handle) serve(ctx context.Context) error {
	connID := uuid.New().String()

	conn, _, err := h.dialer.DialContext(ctx, h.url, nil)
	if err != nil {
		return fmt.Errorf("eventstream: dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the handle is closed.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	conn.SetPingHandler(func(appData string) error {
		slog.Debug("eventstream: ping", "conn_id", connID)
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	h.connected.Store(true)
	h.connects.Add(1)
	slog.Info("eventstream: connected", "session_id", h.sessionID, "conn_id", connID)
	h.sink(ctx, kiosk.StreamConnected{})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("eventstream: closed by server: %w", err)
			}
			return fmt.Errorf("eventstream: read: %w", err)
		}
		if msgType != websocket.TextMessage {
			slog.Debug("eventstream: ignoring non-text frame", "conn_id", connID, "type", msgType)
			continue
		}

		ev, err := decodeFrame(data)
		if err != nil {
			h.framesDropped.Add(1)
			slog.Warn("eventstream: dropping frame",
				"conn_id", connID,
				"error", err,
				"frame", truncate(data, 256),
			)
			continue
		}

		h.events.Add(1)
		slog.Debug("eventstream: event", "conn_id", connID, "event", kiosk.EventName(ev))
		h.sink(ctx, ev)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
