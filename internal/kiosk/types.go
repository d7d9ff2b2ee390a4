package kiosk

// State is the authoritative kiosk mode the UI renders.
type State int

const (
	// StateWelcome waits for a customer to start a session.
	StateWelcome State = iota
	// StateSession is an active session showing live view or a selected photo.
	StateSession
	// StateCountdown is a capture countdown in progress.
	StateCountdown
	// StateProcessing means the backend is processing a capture.
	StateProcessing
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case StateWelcome:
		return "welcome"
	case StateSession:
		return "session"
	case StateCountdown:
		return "countdown"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// hasSession reports whether the state requires an active session.
func (s State) hasSession() bool {
	return s == StateSession || s == StateCountdown || s == StateProcessing
}

// PhotoInfo describes a processed photo. Immutable once received.
type PhotoInfo struct {
	ID           string `json:"id"`
	ThumbnailURL string `json:"thumbnailUrl"`
	WebURL       string `json:"webUrl"`
}

// SessionData holds the state of one photo-booth engagement.
type SessionData struct {
	ID         string
	PhoneCount uint32
	// Photos is append-only; insertion order is display order.
	Photos []PhotoInfo
}

func (d *SessionData) clone() SessionData {
	photos := make([]PhotoInfo, len(d.Photos))
	copy(photos, d.Photos)
	return SessionData{
		ID:         d.ID,
		PhoneCount: d.PhoneCount,
		Photos:     photos,
	}
}
