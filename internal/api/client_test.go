package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend mimics the session endpoints.
func fakeBackend(t *testing.T, captureStatus int) (*httptest.Server, *[]string) {
	t.Helper()

	var calls []string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			assert.NotEmpty(t, req.Header.Get(RequestIDHeader))
			calls = append(calls, req.Method+" "+req.URL.Path)
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/api/v1/sessions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"s-42","createdAt":"2026-01-01T00:00:00Z"}`))
	})
	r.Post("/api/v1/sessions/{id}/end", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") == "missing" {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/v1/sessions/{id}/capture", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(captureStatus)
		_, _ = w.Write([]byte(`{"status":"capturing"}`))
	})
	r.Get("/photos/{name}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: base, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BaseURL: "ws://localhost:8000"})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: ""})
	assert.Error(t, err)
}

func TestClient_CreateSession(t *testing.T) {
	srv, calls := fakeBackend(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	resp, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s-42", resp.ID)
	assert.Equal(t, []string{"POST /api/v1/sessions"}, *calls)
}

func TestClient_CreateSessionEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateSession(context.Background())
	assert.ErrorIs(t, err, ErrEmptySessionID)
}

func TestClient_CreateSessionBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateSession(context.Background())
	assert.Error(t, err)
}

func TestClient_EndSession(t *testing.T) {
	srv, calls := fakeBackend(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	require.NoError(t, c.EndSession(context.Background(), "s-42"))
	assert.Equal(t, []string{"POST /api/v1/sessions/s-42/end"}, *calls)

	err := c.EndSession(context.Background(), "missing")
	var serr *ServerError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, "session not found", serr.Body)
}

func TestClient_TriggerCapture(t *testing.T) {
	srv, _ := fakeBackend(t, http.StatusAccepted)
	require.NoError(t, newTestClient(t, srv.URL).TriggerCapture(context.Background(), "s-42"))

	srv, _ = fakeBackend(t, http.StatusConflict)
	err := newTestClient(t, srv.URL).TriggerCapture(context.Background(), "s-42")
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	assert.Contains(t, err.Error(), "409")
}

func TestClient_FetchImage(t *testing.T) {
	srv, calls := fakeBackend(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	b, err := c.FetchImage(context.Background(), "/photos/p1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), b)

	b, err = c.FetchImage(context.Background(), srv.URL+"/photos/p2.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), b)

	_, err = c.FetchImage(context.Background(), "/nope")
	assert.Error(t, err)

	assert.Equal(t, []string{"GET /photos/p1.jpg", "GET /photos/p2.jpg", "GET /nope"}, *calls)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv, _ := fakeBackend(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CreateSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_URLBuilders(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:8000/"})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api/v1/sessions", c.SessionsURL())
	assert.Equal(t, "http://localhost:8000/api/v1/sessions/abc/end", c.SessionEndURL("abc"))
	assert.Equal(t, "http://localhost:8000/api/v1/sessions/abc/capture", c.CaptureURL("abc"))
	assert.Equal(t, "http://localhost:8000/api/v1/sessions/abc/qr?size=512", c.SessionQRURL("abc"))
	assert.Equal(t, "http://localhost:8000/api/v1/sessions/wifi-qr?size=512", c.WifiQRURL())
	assert.Equal(t, "http://localhost:8000/media/p1.jpg", c.PhotoURL("/media/p1.jpg"))
	assert.Equal(t, "http://localhost:8000/media/p1.jpg", c.PhotoURL("media/p1.jpg"))
	assert.Equal(t, "https://cdn.example.com/p1.jpg", c.PhotoURL("https://cdn.example.com/p1.jpg"))
}
