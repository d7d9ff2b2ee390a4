package main

import (
	"context"
	"log/slog"

	"github.com/chbornman/picpop/internal/kiosk"
)

type imageFetcher interface {
	FetchImage(ctx context.Context, rawURL string) ([]byte, error)
	SessionQRURL(sessionID string) string
	WifiQRURL() string
	PhotoURL(path string) string
}

// logView stands in for the display: it logs every snapshot, fetches the
// Wi-Fi QR code for the welcome screen once and prefetches thumbnails of
// newly arrived photos.
type logView struct {
	ctx     context.Context
	images  imageFetcher
	session string
	seen    int
	wifi    bool
}

func newLogView(ctx context.Context, images imageFetcher) *logView {
	return &logView{ctx: ctx, images: images}
}

// Render is called from the executor goroutine only.
func (v *logView) Render(s kiosk.Snapshot) {
	attrs := []any{
		"state", s.State.String(),
		"phones", s.PhoneCount,
		"photos", len(s.Photos),
		"can_capture", s.CanCapture,
		"loading", s.Loading,
	}
	if s.SessionID != "" {
		attrs = append(attrs, "session_id", s.SessionID)
	}
	if s.Countdown != nil {
		attrs = append(attrs, "countdown", *s.Countdown)
	}
	if s.Viewing != nil {
		attrs = append(attrs, "viewing", *s.Viewing)
	}
	if s.Error != "" {
		attrs = append(attrs, "error", s.Error)
	}
	slog.Info("view: render", attrs...)

	if s.State == kiosk.StateWelcome && !v.wifi {
		v.wifi = true
		go v.fetchWifiQR()
	}

	if s.SessionID != v.session {
		v.session = s.SessionID
		v.seen = 0
		if s.SessionID != "" {
			slog.Info("view: join code", "qr_url", v.images.SessionQRURL(s.SessionID))
		}
	}

	for ; v.seen < len(s.Photos); v.seen++ {
		go v.prefetch(s.Photos[v.seen])
	}
}

func (v *logView) fetchWifiQR() {
	url := v.images.WifiQRURL()
	b, err := v.images.FetchImage(v.ctx, url)
	if err != nil {
		slog.Warn("view: wifi qr fetch failed", "url", url, "error", err)
		return
	}
	slog.Info("view: wifi qr ready", "url", url, "bytes", len(b))
}

func (v *logView) prefetch(p kiosk.PhotoInfo) {
	b, err := v.images.FetchImage(v.ctx, p.ThumbnailURL)
	if err != nil {
		slog.Warn("view: thumbnail fetch failed", "photo_id", p.ID, "error", err)
		return
	}
	slog.Info("view: thumbnail ready",
		"photo_id", p.ID,
		"url", v.images.PhotoURL(p.ThumbnailURL),
		"bytes", len(b),
	)
}
