package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestServer_Healthz(t *testing.T) {
	srv := NewServer(nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rec.Code)
	}
}

func TestServer_ReadyzReflectsDependencies(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		ok := pingFunc(func(context.Context) error { return nil })
		srv := NewServer(ok, ok, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("readyz = %d, want 200", rec.Code)
		}
	})

	t.Run("database down", func(t *testing.T) {
		down := pingFunc(func(context.Context) error { return errors.New("refused") })
		srv := NewServer(down, nil, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("readyz = %d, want 503", rec.Code)
		}
	})
}

func TestServer_FeedStatusEncodesJSON(t *testing.T) {
	srv := NewServer(nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/feed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status/feed = %d, want 200", rec.Code)
	}
	var out []feedStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
}
