package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"powerpnl/internal/calcpipe"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	windows, err := s.view.Summary(r.Context())
	if err != nil {
		log.Printf("[api] summary query failed: %v", err)
		http.Error(w, `{"error":"summary unavailable"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(windows)
}

type statusResponse struct {
	Status     string                     `json:"status"`
	Time       string                     `json:"time"`
	Partitions []calcpipe.PartitionStatus `json:"partitions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339),
		Partitions: s.pipeline.Snapshot(),
	})
}

func (s *Server) handleAdminPipeline(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"partitions": s.pipeline.Snapshot(),
	})
}
