package operator

import (
	"encoding/json"
	"time"
)

// StatusReport is the periodic kiosk status published to the status topic.
type StatusReport struct {
	KioskID         string    `json:"kiosk_id"`
	Timestamp       time.Time `json:"timestamp"`
	Online          bool      `json:"online"`
	KioskState      string    `json:"kiosk_state,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	PhoneCount      uint32    `json:"phone_count"`
	Photos          int       `json:"photos"`
	Error           string    `json:"error,omitempty"`
	PreviewStatus   string    `json:"preview_status,omitempty"`
	StreamConnected bool      `json:"stream_connected"`
}

// Fault describes a component condition that needs an operator. Faults are
// published retained so a dashboard that connects later still sees them.
type Fault struct {
	KioskID   string    `json:"kiosk_id"`
	Component string    `json:"component"`
	Active    bool      `json:"active"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (r StatusReport) encode() ([]byte, error) { return json.Marshal(r) }
func (f Fault) encode() ([]byte, error)        { return json.Marshal(f) }

// offlineWill is the last-will payload the broker publishes if the kiosk
// drops off without disconnecting.
func offlineWill(kioskID string) []byte {
	b, _ := json.Marshal(StatusReport{KioskID: kioskID, Online: false})
	return b
}
