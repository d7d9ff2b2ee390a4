package main

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chbornman/picpop/internal/kiosk"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
}

func (f *fakeFetcher) FetchImage(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	return []byte("img"), nil
}

func (f *fakeFetcher) SessionQRURL(id string) string { return "http://api/qr/" + id }
func (f *fakeFetcher) WifiQRURL() string             { return "http://api/wifi-qr" }
func (f *fakeFetcher) PhotoURL(p string) string      { return "http://api" + p }

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.fetched...)
	sort.Strings(out)
	return out
}

func TestLogView_PrefetchesNewPhotosOnce(t *testing.T) {
	f := &fakeFetcher{}
	v := newLogView(context.Background(), f)

	p1 := kiosk.PhotoInfo{ID: "p1", ThumbnailURL: "/t/p1.jpg"}
	p2 := kiosk.PhotoInfo{ID: "p2", ThumbnailURL: "/t/p2.jpg"}

	v.Render(kiosk.Snapshot{State: kiosk.StateSession, SessionID: "s-1", Photos: []kiosk.PhotoInfo{p1}})
	v.Render(kiosk.Snapshot{State: kiosk.StateSession, SessionID: "s-1", Photos: []kiosk.PhotoInfo{p1}})
	v.Render(kiosk.Snapshot{State: kiosk.StateSession, SessionID: "s-1", Photos: []kiosk.PhotoInfo{p1, p2}})

	require.Eventually(t, func() bool { return len(f.urls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/t/p1.jpg", "/t/p2.jpg"}, f.urls())

	// A new session starts counting from zero again.
	v.Render(kiosk.Snapshot{State: kiosk.StateWelcome})
	v.Render(kiosk.Snapshot{State: kiosk.StateSession, SessionID: "s-2", Photos: []kiosk.PhotoInfo{p1}})
	require.Eventually(t, func() bool { return len(f.urls()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/t/p1.jpg", "/t/p1.jpg", "/t/p2.jpg", "http://api/wifi-qr"}, f.urls())
}

func TestLogView_FetchesWifiQROnce(t *testing.T) {
	f := &fakeFetcher{}
	v := newLogView(context.Background(), f)

	v.Render(kiosk.Snapshot{State: kiosk.StateWelcome})
	v.Render(kiosk.Snapshot{State: kiosk.StateWelcome, Loading: true})
	v.Render(kiosk.Snapshot{State: kiosk.StateSession, SessionID: "s-1"})
	v.Render(kiosk.Snapshot{State: kiosk.StateWelcome})

	require.Eventually(t, func() bool { return len(f.urls()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"http://api/wifi-qr"}, f.urls())
}
