package kiosk

// Event is an input to the controller. The set of implementations is closed:
// only types in this package satisfy it.
type Event interface {
	kioskEvent()
}

// User actions.
type (
	StartSession   struct{}
	EndSession     struct{}
	TriggerCapture struct{}
	// SelectPhoto switches the display from live view to the photo at Index.
	SelectPhoto struct{ Index int }
	// SelectLive returns the display to the live camera feed.
	SelectLive struct{}
)

// Backend request outcomes.
type (
	SessionCreated      struct{ ID string }
	SessionCreateFailed struct{ Err string }
	SessionEnded        struct{}
)

// Events delivered by the session event stream.
type (
	PhoneConnected    struct{}
	PhoneDisconnected struct{}
	// CountdownTick carries the seconds remaining before capture.
	CountdownTick   struct{ Value uint32 }
	PhotoReady      struct{ Photo PhotoInfo }
	Processing      struct{}
	CaptureComplete struct{}
	CaptureFailed   struct{ Err string }
	// StreamConnected and StreamDisconnected are informational.
	StreamConnected    struct{}
	StreamDisconnected struct{}
)

// ClearError is fired by the error display timer.
type ClearError struct{}

func (StartSession) kioskEvent()        {}
func (EndSession) kioskEvent()          {}
func (TriggerCapture) kioskEvent()      {}
func (SelectPhoto) kioskEvent()         {}
func (SelectLive) kioskEvent()          {}
func (SessionCreated) kioskEvent()      {}
func (SessionCreateFailed) kioskEvent() {}
func (SessionEnded) kioskEvent()        {}
func (PhoneConnected) kioskEvent()      {}
func (PhoneDisconnected) kioskEvent()   {}
func (CountdownTick) kioskEvent()       {}
func (PhotoReady) kioskEvent()          {}
func (Processing) kioskEvent()          {}
func (CaptureComplete) kioskEvent()     {}
func (CaptureFailed) kioskEvent()       {}
func (StreamConnected) kioskEvent()     {}
func (StreamDisconnected) kioskEvent()  {}
func (ClearError) kioskEvent()          {}

// EventName returns a stable snake_case name for logs and metric labels.
func EventName(ev Event) string {
	switch ev.(type) {
	case StartSession:
		return "start_session"
	case EndSession:
		return "end_session"
	case TriggerCapture:
		return "trigger_capture"
	case SelectPhoto:
		return "select_photo"
	case SelectLive:
		return "select_live"
	case SessionCreated:
		return "session_created"
	case SessionCreateFailed:
		return "session_create_failed"
	case SessionEnded:
		return "session_ended"
	case PhoneConnected:
		return "phone_connected"
	case PhoneDisconnected:
		return "phone_disconnected"
	case CountdownTick:
		return "countdown_tick"
	case PhotoReady:
		return "photo_ready"
	case Processing:
		return "processing"
	case CaptureComplete:
		return "capture_complete"
	case CaptureFailed:
		return "capture_failed"
	case StreamConnected:
		return "stream_connected"
	case StreamDisconnected:
		return "stream_disconnected"
	case ClearError:
		return "clear_error"
	default:
		return "unknown"
	}
}
