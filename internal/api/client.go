// Package api is a thin client for the PicPop backend REST API.
//
// It performs single requests only: no retries and no state. Failures are
// returned to the caller, which turns them into controller events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-request uuid for backend log correlation.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 4 << 10

// ServerError is returned for non-2xx responses.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api: server error: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// ErrEmptySessionID is returned when the backend answers without a session id.
var ErrEmptySessionID = errors.New("api: response has no session id")

// CreateSessionResponse is the body of a successful session creation.
type CreateSessionResponse struct {
	ID string `json:"id"`
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	QRSize  int
}

// Client talks to the backend over HTTP.
type Client struct {
	base   string
	qrSize int
	http   *http.Client
}

// New validates cfg and creates a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: base url must use http or https, got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = 512
	}

	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		qrSize: cfg.QRSize,
		http:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// CreateSession starts a new photo session.
func (c *Client) CreateSession(ctx context.Context) (CreateSessionResponse, error) {
	var out CreateSessionResponse

	body, err := c.do(ctx, http.MethodPost, c.SessionsURL())
	if err != nil {
		return out, fmt.Errorf("api: create session: %w", err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("api: create session: decode response: %w", err)
	}
	if out.ID == "" {
		return out, ErrEmptySessionID
	}

	slog.Info("api: session created", "session_id", out.ID)
	return out, nil
}

// EndSession ends an active session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	if _, err := c.do(ctx, http.MethodPost, c.SessionEndURL(sessionID)); err != nil {
		return fmt.Errorf("api: end session: %w", err)
	}
	slog.Info("api: session ended", "session_id", sessionID)
	return nil
}

// TriggerCapture starts a capture sequence. The outcome arrives on the
// session event stream, so the response body is discarded.
func (c *Client) TriggerCapture(ctx context.Context, sessionID string) error {
	if _, err := c.do(ctx, http.MethodPost, c.CaptureURL(sessionID)); err != nil {
		return fmt.Errorf("api: capture: %w", err)
	}
	slog.Info("api: capture requested", "session_id", sessionID)
	return nil
}

// FetchImage downloads an image. Relative paths are resolved with PhotoURL.
func (c *Client) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, c.PhotoURL(rawURL))
	if err != nil {
		return nil, fmt.Errorf("api: fetch image: %w", err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	reqID := uuid.New().String()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	slog.Debug("api: request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	return io.ReadAll(resp.Body)
}

// SessionsURL is the session collection endpoint.
func (c *Client) SessionsURL() string {
	return c.base + "/api/v1/sessions"
}

// SessionEndURL is the endpoint that ends sessionID.
func (c *Client) SessionEndURL(sessionID string) string {
	return c.base + "/api/v1/sessions/" + url.PathEscape(sessionID) + "/end"
}

// CaptureURL is the endpoint that triggers a capture for sessionID.
func (c *Client) CaptureURL(sessionID string) string {
	return c.base + "/api/v1/sessions/" + url.PathEscape(sessionID) + "/capture"
}

// SessionQRURL is the join QR code image for sessionID.
func (c *Client) SessionQRURL(sessionID string) string {
	return fmt.Sprintf("%s/api/v1/sessions/%s/qr?size=%d", c.base, url.PathEscape(sessionID), c.qrSize)
}

// WifiQRURL is the Wi-Fi credentials QR code image.
func (c *Client) WifiQRURL() string {
	return fmt.Sprintf("%s/api/v1/sessions/wifi-qr?size=%d", c.base, c.qrSize)
}

// PhotoURL resolves a photo path from a photo_ready event. Absolute URLs are
// returned unchanged.
func (c *Client) PhotoURL(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base + path
}
