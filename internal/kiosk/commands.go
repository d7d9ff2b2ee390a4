package kiosk

// CommandKind identifies a side effect requested by the controller.
type CommandKind int

const (
	CommandCreateSession CommandKind = iota
	CommandEndSession
	CommandTriggerCapture
	CommandConnectEventStream
	CommandDisconnectEventStream
	CommandScheduleErrorClear
	CommandUpdateUI
)

// String returns a human-readable name for the command kind
func (k CommandKind) String() string {
	switch k {
	case CommandCreateSession:
		return "create_session"
	case CommandEndSession:
		return "end_session"
	case CommandTriggerCapture:
		return "trigger_capture"
	case CommandConnectEventStream:
		return "connect_event_stream"
	case CommandDisconnectEventStream:
		return "disconnect_event_stream"
	case CommandScheduleErrorClear:
		return "schedule_error_clear"
	case CommandUpdateUI:
		return "update_ui"
	default:
		return "unknown"
	}
}

// Command is an instruction for the executor. SessionID is set for
// EndSession, TriggerCapture and ConnectEventStream.
type Command struct {
	Kind      CommandKind
	SessionID string
}

func createSession() Command { return Command{Kind: CommandCreateSession} }
func endSession(id string) Command {
	return Command{Kind: CommandEndSession, SessionID: id}
}
func triggerCapture(id string) Command {
	return Command{Kind: CommandTriggerCapture, SessionID: id}
}
func connectEventStream(id string) Command {
	return Command{Kind: CommandConnectEventStream, SessionID: id}
}
func disconnectEventStream() Command { return Command{Kind: CommandDisconnectEventStream} }
func scheduleErrorClear() Command    { return Command{Kind: CommandScheduleErrorClear} }
func updateUI() Command              { return Command{Kind: CommandUpdateUI} }
