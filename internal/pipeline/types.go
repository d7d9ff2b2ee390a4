package pipeline

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a media graph.
type State int

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "void-pending"
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Graph is a media decode graph whose lifecycle the Supervisor drives.
//
// SetState(StateNull) must be synchronous: when it returns, all resources
// are released and the graph can be restarted. SetState(StatePlaying) may
// complete asynchronously; CurrentState reports the settled state.
type Graph interface {
	SetState(State) error
	CurrentState() State
	// Poll waits up to timeout for the next bus message.
	Poll(timeout time.Duration) (Message, bool)
}

// Message is a notification posted on the graph's bus.
type Message interface {
	busMessage()
}

// ErrorMessage reports a fatal element error.
type ErrorMessage struct {
	Source string
	Err    string
	Debug  string
}

// EOSMessage reports end of stream.
type EOSMessage struct {
	Source string
}

// WarningMessage reports a recoverable element warning.
type WarningMessage struct {
	Source string
	Err    string
	Debug  string
}

// StateChangedMessage reports a state transition of the top-level graph.
type StateChangedMessage struct {
	Old State
	New State
}

func (ErrorMessage) busMessage()        {}
func (EOSMessage) busMessage()          {}
func (WarningMessage) busMessage()      {}
func (StateChangedMessage) busMessage() {}

// Status is the supervisor's view of the pipeline.
type Status int32

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusReconnecting
	// StatusFailed is terminal: no further automatic recovery is attempted.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// StatusListener is notified of every supervisor status transition. It is
// called from supervisor goroutines and must not block.
type StatusListener func(from, to Status)

// Recorder receives supervisor telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	BusError(category string)
	EndOfStream()
	StaleDetected()
	RestartAttempt()
	Recovered(elapsed time.Duration)
	GaveUp()
}

type nopRecorder struct{}

func (nopRecorder) BusError(string)         {}
func (nopRecorder) EndOfStream()            {}
func (nopRecorder) StaleDetected()          {}
func (nopRecorder) RestartAttempt()         {}
func (nopRecorder) Recovered(time.Duration) {}
func (nopRecorder) GaveUp()                 {}

// Config tunes the supervisor.
type Config struct {
	// ReconnectDelay is waited after tearing the graph down, before each
	// restart attempt.
	ReconnectDelay time.Duration
	// VerifyDelay is waited after requesting Playing before checking that
	// the graph actually reached it.
	VerifyDelay        time.Duration
	StaleCheckInterval time.Duration
	StaleThreshold     time.Duration
	MaxRestartAttempts int
	// PollInterval bounds each bus poll so shutdown stays responsive.
	PollInterval time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:     2000 * time.Millisecond,
		VerifyDelay:        2000 * time.Millisecond,
		StaleCheckInterval: 3000 * time.Millisecond,
		StaleThreshold:     5000 * time.Millisecond,
		MaxRestartAttempts: 10,
		PollInterval:       50 * time.Millisecond,
	}
}

func (c Config) validate() error {
	switch {
	case c.ReconnectDelay <= 0:
		return fmt.Errorf("pipeline: reconnect delay must be positive, got %v", c.ReconnectDelay)
	case c.VerifyDelay <= 0:
		return fmt.Errorf("pipeline: verify delay must be positive, got %v", c.VerifyDelay)
	case c.StaleCheckInterval <= 0:
		return fmt.Errorf("pipeline: stale check interval must be positive, got %v", c.StaleCheckInterval)
	case c.StaleThreshold <= 0:
		return fmt.Errorf("pipeline: stale threshold must be positive, got %v", c.StaleThreshold)
	case c.MaxRestartAttempts < 1:
		return fmt.Errorf("pipeline: max restart attempts must be at least 1, got %d", c.MaxRestartAttempts)
	case c.PollInterval <= 0:
		return fmt.Errorf("pipeline: poll interval must be positive, got %v", c.PollInterval)
	}
	return nil
}

// Stats is a point-in-time view of supervisor counters.
type Stats struct {
	Status          Status
	Frames          uint64
	LastFrameAge    time.Duration // zero until the first frame
	Reconnects      uint64        // reconnection sequences started
	RestartAttempts uint64
	Recoveries      uint64
	StaleDetections uint64
	EOS             uint64
	ErrorsNetwork   uint64
	ErrorsCodec     uint64
	ErrorsAuth      uint64
	ErrorsUnknown   uint64
	Uptime          time.Duration
}
