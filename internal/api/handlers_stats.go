package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/doctrans/internal/backend"
)

type llmStatsResponse struct {
	Backend    backend.Kind          `json:"backend"`
	Model      string                `json:"model,omitempty"`
	Window     string                `json:"window"`
	RateLimit  float64               `json:"rate_limit_per_sec"`
	QueueDepth int                   `json:"queue_depth"`
	Stats      backend.StatsSnapshot `json:"stats"`
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(llmStatsResponse{
		Backend:    s.cfg.Backend,
		Model:      s.cfg.Model,
		Window:     s.cfg.StatsWindow.String(),
		RateLimit:  s.cfg.RateLimit,
		QueueDepth: s.jobs.QueueDepth(),
		Stats:      s.stats.Snapshot(),
	})
}
