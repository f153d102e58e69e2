// Package api exposes reconciliation runs over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/store"
	"ledger-reconciliation-service/pkg/logger"
)

// Reconciler runs one reconciliation request.
type Reconciler interface {
	ProcessReconciliation(ctx context.Context, request *reconciler.ReconciliationRequest) (*reconciler.ReconciliationResult, error)
}

// DefaultMaxUploadBytes bounds the multipart form of an upload.
const DefaultMaxUploadBytes = 32 << 20

// NewRouter creates the chi router with all API routes mounted. runs may be
// nil, in which case results are returned but not recorded and the history
// routes answer 503.
func NewRouter(service Reconciler, runs store.RunStore, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	h := &Handlers{
		service:        service,
		runs:           runs,
		logger:         log.WithComponent("api"),
		maxUploadBytes: DefaultMaxUploadBytes,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/reconciliations", h.CreateReconciliation)

		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/runs/{id}/matches", h.ListMatches)
	})

	return r
}

// requestLogger logs every request through the structured logger.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.WithFields(logger.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Info("HTTP request")
		})
	}
}
