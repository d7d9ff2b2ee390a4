// Package operator reports kiosk status and faults to an MQTT broker so
// the venue operator can see a booth that needs attention.
package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	queueSize      = 32
)

var (
	// ErrNotConnected is returned when there is no broker connection.
	ErrNotConnected = errors.New("operator: mqtt not connected")
	// ErrQueueFull is returned when the publish queue is saturated.
	ErrQueueFull = errors.New("operator: publish queue full")
)

// Config configures a Reporter.
type Config struct {
	Broker       string // host:port, or a full tcp:// URL
	KioskID      string
	StatusTopic  string
	FaultTopic   string
	ControlTopic string          // optional; see SetControl
	QoS          map[string]byte // keys: "status", "faults", "control"
}

// publisher is the subset of mqtt.Client the reporter uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// Reporter publishes kiosk status and faults. Publish calls never block:
// messages are queued and sent by Run. A retained message that could not be
// sent is kept per topic and republished when the broker link comes back.
type Reporter struct {
	cfg         Config
	client      mqtt.Client
	pub         publisher
	queue       chan message
	commands    chan Command
	reconnected chan struct{}
	control     *ControlCallbacks

	// pending is owned by the Run goroutine.
	pending map[string]message

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	dropped   uint64
	connected bool
}

// Stats contains reporter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
	Dropped   uint64
}

// NewReporter creates a reporter. Call Connect before Run.
func NewReporter(cfg Config) (*Reporter, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("operator: broker is required")
	}
	if cfg.KioskID == "" {
		return nil, fmt.Errorf("operator: kiosk id is required")
	}
	if cfg.StatusTopic == "" || cfg.FaultTopic == "" {
		return nil, fmt.Errorf("operator: status and fault topics are required")
	}
	return &Reporter{
		cfg:         cfg,
		queue:       make(chan message, queueSize),
		commands:    make(chan Command, 10),
		reconnected: make(chan struct{}, 1),
		pending:     make(map[string]message),
		published:   make(map[string]uint64),
	}, nil
}

// Connect establishes the connection to the broker. The client reconnects
// on its own afterwards.
func (r *Reporter) Connect(ctx context.Context) error {
	broker := r.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	clientID := "picpop-" + r.cfg.KioskID

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetBinaryWill(r.cfg.StatusTopic, offlineWill(r.cfg.KioskID), r.qos("status"), true)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("operator: mqtt connection established",
			"broker", broker,
			"client_id", clientID,
		)
		r.handleConnect(c)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		r.setConnected(false)
		slog.Warn("operator: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", broker,
		)
	}

	r.client = mqtt.NewClient(opts)
	r.pub = r.client

	slog.Info("operator: connecting to mqtt broker", "broker", broker)

	token := r.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("operator: mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("operator: mqtt connection failed: %w", err)
	}

	r.setConnected(true)
	return nil
}

// Run sends queued messages until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	if r.pub == nil {
		return ErrNotConnected
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-r.queue:
			r.deliver(m)
		case <-r.reconnected:
			r.flushPending()
		case cmd := <-r.commands:
			r.respond(r.handleCommand(cmd))
		}
	}
}

// PublishStatus queues a status report.
func (r *Reporter) PublishStatus(s StatusReport) error {
	s.KioskID = r.cfg.KioskID
	s.Online = true
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	payload, err := s.encode()
	if err != nil {
		return fmt.Errorf("operator: failed to marshal status: %w", err)
	}
	return r.enqueue(message{
		topic:    r.cfg.StatusTopic,
		qos:      r.qos("status"),
		retained: true,
		payload:  payload,
	})
}

// PublishFault queues a retained fault update for component.
func (r *Reporter) PublishFault(f Fault) error {
	f.KioskID = r.cfg.KioskID
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	payload, err := f.encode()
	if err != nil {
		return fmt.Errorf("operator: failed to marshal fault: %w", err)
	}
	return r.enqueue(message{
		topic:    r.cfg.FaultTopic + "/" + f.Component,
		qos:      r.qos("faults"),
		retained: true,
		payload:  payload,
	})
}

// Connected reports whether the broker session is up.
func (r *Reporter) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Disconnect closes the MQTT connection
func (r *Reporter) Disconnect() {
	if r.client != nil && r.client.IsConnected() {
		r.client.Disconnect(250)
		slog.Info("operator: mqtt disconnected")
	}
	r.setConnected(false)
}

// Stats returns reporter statistics
func (r *Reporter) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	published := make(map[string]uint64, len(r.published))
	for k, v := range r.published {
		published[k] = v
	}
	return Stats{
		Connected: r.connected,
		Published: published,
		Errors:    r.errors,
		Dropped:   r.dropped,
	}
}

func (r *Reporter) enqueue(m message) error {
	select {
	case r.queue <- m:
		return nil
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return ErrQueueFull
	}
}

// handleConnect runs on every (re)connect.
func (r *Reporter) handleConnect(c mqtt.Client) {
	r.setConnected(true)
	r.subscribeControl(c)
	select {
	case r.reconnected <- struct{}{}:
	default:
	}
}

// deliver sends m and tracks the latest unsent retained message per topic.
func (r *Reporter) deliver(m message) {
	err := r.send(m)
	if err == nil {
		delete(r.pending, m.topic)
		return
	}
	slog.Warn("operator: publish failed", "topic", m.topic, "error", err)
	if m.retained {
		r.pending[m.topic] = m
	}
}

func (r *Reporter) flushPending() {
	if len(r.pending) == 0 {
		return
	}
	slog.Info("operator: republishing after reconnect", "messages", len(r.pending))
	held := r.pending
	r.pending = make(map[string]message, len(held))
	for _, m := range held {
		r.deliver(m)
	}
}

func (r *Reporter) send(m message) error {
	if !r.Connected() {
		r.countError()
		return ErrNotConnected
	}

	token := r.pub.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		r.countError()
		return fmt.Errorf("operator: publish timeout")
	}
	if err := token.Error(); err != nil {
		r.countError()
		return fmt.Errorf("operator: publish failed: %w", err)
	}

	r.mu.Lock()
	r.published[m.topic]++
	r.mu.Unlock()

	slog.Debug("operator: published",
		"topic", m.topic,
		"qos", m.qos,
		"size", len(m.payload),
	)
	return nil
}

func (r *Reporter) setConnected(v bool) {
	r.mu.Lock()
	r.connected = v
	r.mu.Unlock()
}

func (r *Reporter) countError() {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
}

func (r *Reporter) qos(kind string) byte {
	if q, ok := r.cfg.QoS[kind]; ok {
		return q
	}
	return 0
}
