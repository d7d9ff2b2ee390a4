package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		debug string
		want  ErrorCategory
	}{
		{name: "auth", msg: "Unauthorized", debug: "HTTP 401", want: ErrCategoryAuth},
		{name: "forbidden", msg: "Forbidden", want: ErrCategoryAuth},
		{name: "not negotiated", msg: "Internal data stream error.", debug: "streaming stopped, reason not-negotiated (-4): not negotiated", want: ErrCategoryCodec},
		{name: "jpeg decode", msg: "Failed to decode JPEG image", want: ErrCategoryCodec},
		{name: "could not connect", msg: "Could not connect: Connection refused", want: ErrCategoryNetwork},
		{name: "timeout", msg: "Socket I/O timed out", want: ErrCategoryNetwork},
		{name: "not found", msg: "Not Found (404), URL: http://cam/preview", want: ErrCategoryNetwork},
		{name: "auth beats network", msg: "Could not connect", debug: "403 Forbidden", want: ErrCategoryAuth},
		{name: "unknown", msg: "Something odd happened", want: ErrCategoryUnknown},
		{name: "empty", want: ErrCategoryUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.msg, tc.debug))
		})
	}
}

func TestErrorCategoryString(t *testing.T) {
	assert.Equal(t, "network", ErrCategoryNetwork.String())
	assert.Equal(t, "codec", ErrCategoryCodec.String())
	assert.Equal(t, "auth", ErrCategoryAuth.String())
	assert.Equal(t, "unknown", ErrCategoryUnknown.String())
	assert.Equal(t, "unknown", ErrorCategory(42).String())
}

func TestLiveness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLiveness()
	l.now = func() time.Time { return now }

	_, ok := l.LastFrame()
	assert.False(t, ok)
	assert.Zero(t, l.Since())
	assert.Zero(t, l.Frames())

	l.Frame()
	l.Frame()
	assert.Equal(t, uint64(2), l.Frames())
	last, ok := l.LastFrame()
	assert.True(t, ok)
	assert.True(t, last.Equal(now))

	now = now.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, l.Since())

	l.Reset()
	assert.Zero(t, l.Frames())
	assert.Zero(t, l.Since())
	_, ok = l.LastFrame()
	assert.True(t, ok, "reset starts a new stale window")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "playing", StatusPlaying.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "null", StateNull.String())
}
