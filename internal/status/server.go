// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package status serves metrics, health and run progress while a run is in flight.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/camfetch/internal/health"
	xglog "github.com/ManuGH/camfetch/internal/log"
)

const shutdownTimeout = 5 * time.Second

// Snapshot is the body of GET /status.
type Snapshot struct {
	RunID         string     `json:"run_id"`
	Mode          string     `json:"mode"`
	Running       bool       `json:"running"`
	StartedAt     time.Time  `json:"started_at"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Cameras       int        `json:"cameras"`
	Finished      int        `json:"finished"`
	Capacity      int        `json:"capacity"`
	ActiveCameras []string   `json:"active_cameras"`
}

// Source produces the current snapshot.
type Source func() Snapshot

// NewRouter builds the status routes. requestsPerMinute limits each client IP.
// Requests other than health and metrics probes are traced.
func NewRouter(src Source, hm *health.Manager, requestsPerMinute int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", hm.ServeHealth)
	r.Get("/readyz", hm.ServeReady)
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap := src()
		if snap.ActiveCameras == nil {
			snap.ActiveCameras = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			xglog.FromContext(req.Context()).Error().Err(err).Str(xglog.FieldEvent, "status.encode_error").Msg("failed to encode status")
		}
	})
	return otelhttp.NewHandler(r, "camfetch.status",
		otelhttp.WithFilter(traced),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return "HTTP " + req.Method + " " + req.URL.Path
		}),
	)
}

func traced(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

// Server is the optional status listener.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer returns a Server for handler.
func NewServer(handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: xglog.WithComponent("status"),
	}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str(xglog.FieldEvent, "status.listening").Str("addr", ln.Addr().String()).Msg("status endpoint listening")
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
