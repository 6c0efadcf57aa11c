package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sitegen-realtime/internal/infra/feed"
)

// Pinger is anything with a liveness check (pgx pool, redis client).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the ops surface: health, readiness, feed status, metrics.
// No product API lives here; UI consumers only ever see bus subscriptions.
type Server struct {
	db    Pinger
	cache Pinger
	feeds []*feed.Client
}

func NewServer(db, cache Pinger, feeds []*feed.Client) *Server {
	return &Server{db: db, cache: cache, feeds: feeds}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", s.handleReady)
	r.Get("/status/feed", s.handleFeedStatus)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	for _, f := range s.feeds {
		if !f.Healthy() {
			http.Error(w, "change feed not connected", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

type feedStatus struct {
	Audience string `json:"audience"`
	State    string `json:"state"`
	Healthy  bool   `json:"healthy"`
}

func (s *Server) handleFeedStatus(w http.ResponseWriter, _ *http.Request) {
	out := make([]feedStatus, 0, len(s.feeds))
	for _, f := range s.feeds {
		out = append(out, feedStatus{
			Audience: string(f.Audience()),
			State:    f.State().String(),
			Healthy:  f.Healthy(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
