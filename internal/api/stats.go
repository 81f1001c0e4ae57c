package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Nodes           int            `json:"nodes"`
	Tubes           int            `json:"tubes"`
	Records         int            `json:"records"`
	RecordsByStatus map[string]int `json:"records_by_status"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSceneStats(r.Context())
	if err != nil {
		s.logger.Error("get scene stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Nodes:           stats.Nodes,
		Tubes:           stats.Tubes,
		Records:         stats.Records,
		RecordsByStatus: stats.CountByStatus,
	})
}
