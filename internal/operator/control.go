package operator

import (
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Control commands accepted on the control topic.
const (
	CommandGetStatus  = "get_status"
	CommandEndSession = "end_session"
)

// Command is a control plane request.
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response acknowledges a Command.
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"` // "success" or "error"
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// ControlCallbacks are invoked from the reporter's Run goroutine.
type ControlCallbacks struct {
	OnGetStatus  func() map[string]interface{}
	OnEndSession func() error
}

// SetControl enables the control topic. Call before Connect.
func (r *Reporter) SetControl(cb ControlCallbacks) {
	r.control = &cb
}

func (r *Reporter) subscribeControl(c mqtt.Client) {
	if r.control == nil || r.cfg.ControlTopic == "" {
		return
	}
	topic := r.cfg.ControlTopic
	qos := r.qos("control")

	token := c.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		r.receiveCommand(msg.Payload())
	})
	// Waiting inside the connect handler would stall the client.
	go func() {
		if !token.WaitTimeout(connectTimeout) {
			slog.Error("operator: control subscription timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			slog.Error("operator: control subscription failed", "topic", topic, "error", err)
			return
		}
		slog.Info("operator: subscribed to control plane", "topic", topic, "qos", qos)
	}()
}

func (r *Reporter) receiveCommand(payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		slog.Warn("operator: failed to parse control command", "error", err)
		r.respond(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	slog.Info("operator: control command received", "command", cmd.Command)

	select {
	case r.commands <- cmd:
	default:
		slog.Warn("operator: command queue full, dropping command", "command", cmd.Command)
	}
}

func (r *Reporter) handleCommand(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}
	cb := ControlCallbacks{}
	if r.control != nil {
		cb = *r.control
	}

	switch cmd.Command {
	case CommandGetStatus:
		if cb.OnGetStatus == nil {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = cb.OnGetStatus()

	case CommandEndSession:
		if cb.OnEndSession == nil {
			resp.Status = "error"
			resp.Error = "end_session not implemented"
			break
		}
		if err := cb.OnEndSession(); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
			break
		}
		resp.Status = "success"

	default:
		resp.Status = "error"
		resp.Error = "unknown command"
	}

	return resp
}

func (r *Reporter) respond(resp Response) {
	if r.cfg.ControlTopic == "" {
		return
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now()
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("operator: failed to marshal response", "error", err)
		return
	}
	if err := r.enqueue(message{
		topic:   r.cfg.ControlTopic + "/response",
		qos:     r.qos("control"),
		payload: payload,
	}); err != nil {
		slog.Warn("operator: response dropped", "command_ack", resp.CommandAck, "error", err)
	}
}
