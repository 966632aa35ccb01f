package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/dgallion1/doctrans/internal/config"
	"github.com/dgallion1/doctrans/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes translation jobs over HTTP.
type Server struct {
	http.Handler

	jobs  *pipeline.Orchestrator
	stats *backend.LLMStats
	log   *slog.Logger
	cfg   config.Config
}

// NewServer builds the router. stats may be nil, in which case the LLM stats
// endpoint answers 503.
func NewServer(jobs *pipeline.Orchestrator, stats *backend.LLMStats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{jobs: jobs, stats: stats, log: log, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, logRequests(log), middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requireAPIKey(cfg.APIKey, log))
		r.Route("/translate", func(r chi.Router) {
			r.Post("/", s.handleTranslate)
			r.Post("/batch", s.handleBatchTranslate)
			r.Get("/{jobID}/status", s.handleTranslateStatus)
		})
		r.Get("/stats/llm", s.handleLLMStats)
	})

	s.Handler = r
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"backend":     s.cfg.Backend,
		"queue_depth": s.jobs.QueueDepth(),
	})
}
