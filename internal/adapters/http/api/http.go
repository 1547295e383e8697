// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/vitalstream/internal/simulation"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StartSimulation(ctx context.Context) error
	StopSimulation(ctx context.Context) error
	SimulationStatus(ctx context.Context) (simulation.Status, error)
}

// Server wires HTTP routes for the control API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	simulationHandler *SimulationHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		simulationHandler: NewSimulationHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/simulation/start", MetricsMiddleware(s.simulationHandler.HandleStart, "simulation_start"))
	mux.HandleFunc("/simulation/stop", MetricsMiddleware(s.simulationHandler.HandleStop, "simulation_stop"))
	mux.HandleFunc("/simulation/status", MetricsMiddleware(s.simulationHandler.HandleStatus, "simulation_status"))
}

type ackResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
}
