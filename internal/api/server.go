// SPDX-License-Identifier: MIT

// Package api is the thin HTTP layer over the orchestrator. The
// lifecycle rules live below it; handlers only decode, delegate and
// translate reason codes to HTTP statuses.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/coachscribe/coachscribe/internal/orchestrator"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server holds the HTTP surface.
type Server struct {
	Orc *orchestrator.Orchestrator

	// Readiness are the dependencies /readyz probes; a nil entry is
	// skipped.
	Readiness map[string]HealthChecker
}

func NewServer(orc *orchestrator.Orchestrator) *Server {
	return &Server{Orc: orc, Readiness: make(map[string]HealthChecker)}
}

// Router assembles the chi router with the ambient middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(httprate.LimitByIP(120, time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/upload-url", s.handleRequestUploadURL)
			r.Post("/confirm-upload", s.handleConfirmUpload)
			r.Post("/transcribe", s.handleStartTranscription)
			r.Post("/retry", s.handleRetryTranscription)
			r.Post("/cancel", s.handleCancel)
			r.Get("/status", s.handleGetStatus)
			r.Get("/export", s.handleExport)
			r.Put("/speaker-roles", s.handlePutSpeakerRoles)
			r.Put("/segment-roles", s.handlePutSegmentRoles)
			r.Post("/transcript", s.handleUploadTranscript)
		})
	})

	return otelhttp.NewHandler(r, "coachscribe.api")
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failures := map[string]string{}
	for name, dep := range s.Readiness {
		if dep == nil {
			continue
		}
		if err := dep.HealthCheck(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
