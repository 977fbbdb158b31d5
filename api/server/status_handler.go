// status_handler.go - HTTP handler for /status
package server

import (
	"net/http"

	"iotsentry/core/sentinel"
)

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status  string                 `json:"status"`
	Uptime  int64                  `json:"uptime"`
	System  sentinel.SystemStatus  `json:"system"`
	Metrics NodeMetrics            `json:"metrics"`
}

// HandleStatus responds to /status with node status.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()

	// Derive node health status from metrics. Height 1 means the chain
	// holds only its genesis block and nothing has been mined yet.
	status := "healthy"
	if !metrics.ChainValid {
		status = "corrupted"
	} else if metrics.BlockHeight == 1 {
		status = "initializing"
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  status,
		Uptime:  metrics.UptimeSeconds,
		System:  s.manager.GetSystemStatus(),
		Metrics: metrics,
	})
}
