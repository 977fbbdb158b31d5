// health_handler.go - HTTP handlers for /health/liveness, /health/readiness, /nodehealth
package server

import (
	"net/http"
)

// LivenessResponse is the /health/liveness payload.
type LivenessResponse struct {
	Alive bool `json:"alive"`
}

// ReadinessResponse is the /health/readiness payload.
type ReadinessResponse struct {
	Ready bool `json:"ready"`
}

// HandleLiveness responds to /health/liveness.
func (s *Server) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Alive: true})
}

// HandleReadiness responds to /health/readiness. The node is ready when the
// chain validates; a corrupted chain must never serve traffic.
func (s *Server) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := s.chain.Validate().OK
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ReadinessResponse{Ready: ready})
}

// NodeHealthResponse is the response type for the /nodehealth endpoint.
type NodeHealthResponse struct {
	Status  string      `json:"status"`
	Metrics NodeMetrics `json:"metrics"`
}

// HandleNodeHealth responds to /nodehealth (summary health).
func (s *Server) HandleNodeHealth(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()

	// Height 1 = genesis only, nothing mined yet.
	status := "healthy"
	if !metrics.ChainValid {
		status = "corrupted"
	} else if metrics.BlockHeight == 1 {
		status = "initializing"
	}

	writeJSON(w, http.StatusOK, NodeHealthResponse{Status: status, Metrics: metrics})
}
