// Package api exposes the review and run-ledger HTTP surface: reviewers
// list and resolve queue entries, operators inspect run reports, and
// Prometheus scrapes /metrics.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/report"
	"github.com/ridgehaul/ticketflow/internal/store"
)

// Server is the review API server.
type Server struct {
	store          store.Store
	metricsEnabled bool
}

// NewServer creates a new API server over the given store.
func NewServer(st store.Store) *Server {
	return &Server{store: st}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleRunReport)
		r.Get("/tickets", s.handleListTickets)
		r.Get("/tickets/{id}", s.handleGetTicket)
		r.Get("/review", s.handleListReview)
		r.Post("/review/{id}/resolve", s.handleResolveReview)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		JobID:  q.Get("job_id"),
		Status: model.RunStatus(q.Get("status")),
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	rep, err := report.BuildRunReport(r.Context(), s.store, chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TicketFilter{
		RunID:        q.Get("run_id"),
		TicketNumber: q.Get("ticket_number"),
		HaulerKey:    q.Get("hauler_key"),
		Limit:        queryInt(q.Get("limit")),
		Offset:       queryInt(q.Get("offset")),
	}
	if raw := q.Get("requires_review"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "requires_review must be a boolean")
			return
		}
		filter.RequiresReview = &v
	}
	tickets, err := s.store.ListTickets(r.Context(), filter)
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.store.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) handleListReview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReviewFilter{
		RunID:    q.Get("run_id"),
		State:    model.ReviewState(q.Get("state")),
		Severity: model.Severity(q.Get("severity")),
		Limit:    queryInt(q.Get("limit")),
	}
	entries, err := s.store.ListReviewEntries(r.Context(), filter)
	if err != nil {
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.ResolveReviewEntry(r.Context(), id); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "review entry not found")
			return
		}
		s.serveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "state": string(model.ReviewResolved)})
}

func (s *Server) serveError(w http.ResponseWriter, err error) {
	zap.L().Error("api request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
