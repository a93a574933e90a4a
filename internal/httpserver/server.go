// Package httpserver is the minimal, read-only operational status surface
// of SPEC_FULL.md §D4: GET /healthz and GET /tasks/{id}. This deliberately
// stops short of the admin/CLI dashboards spec.md §1 puts out of scope — it
// exposes the running crawl's state, nothing more.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hejianfang/xhs-crawl/pkg/progress"
)

// TaskProvider answers status queries about the single crawl task a
// process is running.
type TaskProvider interface {
	Snapshot() progress.TaskProgress
}

// Server holds the status HTTP server's dependencies.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	Tasks     TaskProvider
	startedAt time.Time
}

// NewServer builds the status server, wiring CORS, request logging, and
// Prometheus /metrics the way the teacher's internal/httpserver does.
func NewServer(logger *slog.Logger, tasks TaskProvider, metricsReg *prometheus.Registry, allowedOrigins []string) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		Tasks:     tasks,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/tasks/{id}", s.handleTask)
	if metricsReg != nil {
		s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

// handleTask renders the in-memory TaskProgress snapshot as JSON. The path
// parameter is validated against the running task's own id rather than used
// to look up arbitrary tasks, since one process runs exactly one task
// (spec.md §5's scheduling model).
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := s.Tasks.Snapshot()
	if snap.TaskID != id {
		RespondError(w, http.StatusNotFound, "not_found", "no running task with that id")
		return
	}
	Respond(w, http.StatusOK, snap)
}
