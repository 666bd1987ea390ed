// Package api assembles the HTTP surface of the service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/transaction-processor/internal/api/handlers"
	"github.com/dvloznov/transaction-processor/internal/api/middleware"
	"github.com/dvloznov/transaction-processor/internal/jobs"
)

// NewRouter wires handlers and middleware.
func NewRouter(submitter handlers.Submitter, store jobs.JobStore, log zerolog.Logger) http.Handler {
	events := handlers.NewEventsHandler(submitter)
	batches := handlers.NewBatchesHandler(submitter)
	jobsHandler := handlers.NewJobsHandler(store, log)

	r := chi.NewRouter()

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))

	r.Post("/events/storage", events.StorageEvent)

	r.Route("/api", func(r chi.Router) {
		r.Post("/batches", batches.Submit)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobsHandler.ListJobs)
			r.Get("/{id}", jobsHandler.GetJob)
		})
	})

	r.Get("/health", handlers.Health)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return r
}
