package eventstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/chbornman/picpop/internal/kiosk"
)

// Frame types sent by the backend on the kiosk channel.
const (
	FramePhoneConnected    = "phone_connected"
	FramePhoneDisconnected = "phone_disconnected"
	FrameCountdown         = "countdown"
	FramePhotoReady        = "photo_ready"
	FrameCaptureComplete   = "capture_complete"
	FrameCaptureFailed     = "capture_failed"
	FrameSessionEnded      = "session_ended"
	FrameProcessing        = "processing"
)

const defaultCaptureError = "Unknown error"

var (
	// ErrUnknownFrame is returned for a well-formed frame of an unsupported type.
	ErrUnknownFrame = errors.New("eventstream: unknown frame type")
	// ErrInvalidPayload is returned when a frame's data cannot be used.
	ErrInvalidPayload = errors.New("eventstream: invalid frame payload")
)

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type photoPayload struct {
	ID           *string `json:"id"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	WebURL       *string `json:"webUrl"`
}

// decodeFrame converts one text frame into a controller event.
func decodeFrame(raw []byte) (kiosk.Event, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("eventstream: malformed frame: %w", err)
	}

	switch f.Type {
	case FramePhoneConnected:
		return kiosk.PhoneConnected{}, nil
	case FramePhoneDisconnected:
		return kiosk.PhoneDisconnected{}, nil
	case FrameCountdown:
		return kiosk.CountdownTick{Value: countdownValue(f.Data)}, nil
	case FramePhotoReady:
		p, err := decodePhoto(f.Data)
		if err != nil {
			return nil, err
		}
		return kiosk.PhotoReady{Photo: p}, nil
	case FrameCaptureComplete:
		return kiosk.CaptureComplete{}, nil
	case FrameCaptureFailed:
		return kiosk.CaptureFailed{Err: captureError(f.Data)}, nil
	case FrameSessionEnded:
		return kiosk.SessionEnded{}, nil
	case FrameProcessing:
		return kiosk.Processing{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
}

// countdownValue reads data.value, falling back to 0 when absent, not an
// unsigned integer or wider than 32 bits.
func countdownValue(data json.RawMessage) uint32 {
	var payload struct {
		Value json.RawMessage `json:"value"`
	}
	if len(data) == 0 || json.Unmarshal(data, &payload) != nil {
		return 0
	}
	var v uint64
	if json.Unmarshal(payload.Value, &v) != nil || v > math.MaxUint32 {
		return 0
	}
	return uint32(v)
}

func captureError(data json.RawMessage) string {
	var payload struct {
		Error *string `json:"error"`
	}
	if len(data) == 0 || json.Unmarshal(data, &payload) != nil || payload.Error == nil {
		return defaultCaptureError
	}
	return *payload.Error
}

func decodePhoto(data json.RawMessage) (kiosk.PhotoInfo, error) {
	if len(data) == 0 {
		return kiosk.PhotoInfo{}, fmt.Errorf("%w: photo_ready without data", ErrInvalidPayload)
	}
	var p photoPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return kiosk.PhotoInfo{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.ID == nil || p.ThumbnailURL == nil || p.WebURL == nil {
		return kiosk.PhotoInfo{}, fmt.Errorf("%w: photo_ready missing fields", ErrInvalidPayload)
	}
	return kiosk.PhotoInfo{ID: *p.ID, ThumbnailURL: *p.ThumbnailURL, WebURL: *p.WebURL}, nil
}
