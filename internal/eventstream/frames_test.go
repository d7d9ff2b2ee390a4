package eventstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chbornman/picpop/internal/kiosk"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    kiosk.Event
		wantErr error
	}{
		{name: "phone connected", raw: `{"type":"phone_connected"}`, want: kiosk.PhoneConnected{}},
		{name: "phone disconnected", raw: `{"type":"phone_disconnected","data":{}}`, want: kiosk.PhoneDisconnected{}},
		{name: "countdown", raw: `{"type":"countdown","data":{"value":3}}`, want: kiosk.CountdownTick{Value: 3}},
		{name: "countdown without data", raw: `{"type":"countdown"}`, want: kiosk.CountdownTick{Value: 0}},
		{name: "countdown null data", raw: `{"type":"countdown","data":null}`, want: kiosk.CountdownTick{Value: 0}},
		{name: "countdown non numeric", raw: `{"type":"countdown","data":{"value":"3"}}`, want: kiosk.CountdownTick{Value: 0}},
		{name: "countdown negative", raw: `{"type":"countdown","data":{"value":-1}}`, want: kiosk.CountdownTick{Value: 0}},
		{name: "countdown max", raw: `{"type":"countdown","data":{"value":4294967295}}`, want: kiosk.CountdownTick{Value: 4294967295}},
		{name: "countdown overflow", raw: `{"type":"countdown","data":{"value":4294967299}}`, want: kiosk.CountdownTick{Value: 0}},
		{
			name: "photo ready",
			raw:  `{"type":"photo_ready","data":{"id":"p1","thumbnailUrl":"/t/p1.jpg","webUrl":"/w/p1.jpg"}}`,
			want: kiosk.PhotoReady{Photo: kiosk.PhotoInfo{ID: "p1", ThumbnailURL: "/t/p1.jpg", WebURL: "/w/p1.jpg"}},
		},
		{name: "photo ready missing field", raw: `{"type":"photo_ready","data":{"id":"p1","webUrl":"/w"}}`, wantErr: ErrInvalidPayload},
		{name: "photo ready without data", raw: `{"type":"photo_ready"}`, wantErr: ErrInvalidPayload},
		{name: "photo ready wrong types", raw: `{"type":"photo_ready","data":{"id":1,"thumbnailUrl":"a","webUrl":"b"}}`, wantErr: ErrInvalidPayload},
		{name: "capture complete", raw: `{"type":"capture_complete"}`, want: kiosk.CaptureComplete{}},
		{name: "capture failed", raw: `{"type":"capture_failed","data":{"error":"camera busy"}}`, want: kiosk.CaptureFailed{Err: "camera busy"}},
		{name: "capture failed default", raw: `{"type":"capture_failed"}`, want: kiosk.CaptureFailed{Err: "Unknown error"}},
		{name: "session ended", raw: `{"type":"session_ended"}`, want: kiosk.SessionEnded{}},
		{name: "processing", raw: `{"type":"processing"}`, want: kiosk.Processing{}},
		{name: "unknown type", raw: `{"type":"firmware_update"}`, wantErr: ErrUnknownFrame},
		{name: "missing type", raw: `{"data":{}}`, wantErr: ErrUnknownFrame},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := decodeFrame([]byte(tc.raw))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, ev)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev)
		})
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, raw := range []string{``, `not json`, `{"type":`, `[1,2,3]`} {
		ev, err := decodeFrame([]byte(raw))
		assert.Error(t, err, "input %q", raw)
		assert.Nil(t, ev)
	}
}
