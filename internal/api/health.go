package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database  string `json:"database"`
	WSClients int    `json:"wsClients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disabled"
	if s.pool != nil {
		dbStatus = "connected"
		if err := s.pool.Ping(r.Context()); err != nil {
			dbStatus = "disconnected"
		}
	}

	wsClients := 0
	if s.broadcaster != nil {
		wsClients = s.broadcaster.ClientCount()
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: dbStatus, WSClients: wsClients},
	})
}
