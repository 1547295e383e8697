package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/vitalstream/internal/simulation"
)

// SimulationHandler handles start, stop and status requests.
type SimulationHandler struct {
	deps Dependencies
}

// NewSimulationHandler creates a new simulation handler.
func NewSimulationHandler(deps Dependencies) *SimulationHandler {
	return &SimulationHandler{deps: deps}
}

// HandleStart handles POST /simulation/start requests.
// 202 when a run was launched; the run continues after the response.
func (h *SimulationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.simulation_start"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := h.deps.StartSimulation(r.Context()); err != nil {
		status, code := startErrorStatus(err)
		writeError(w, status, code, fmt.Errorf("%s: %w", op, err))
		return
	}

	resp := ackResponse{Status: "started"}
	if st, err := h.deps.SimulationStatus(r.Context()); err == nil {
		resp.RunID = st.Loop.RunID
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// HandleStop handles POST /simulation/stop requests.
func (h *SimulationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.simulation_stop"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := h.deps.StopSimulation(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "run_state_unavailable", fmt.Errorf("%s: %w", op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "stopping"})
}

// HandleStatus handles GET /simulation/status requests.
func (h *SimulationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.simulation_status"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	st, err := h.deps.SimulationStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func startErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, simulation.ErrSimulationDisabled):
		return http.StatusForbidden, "simulation_disabled"
	case errors.Is(err, simulation.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, simulation.ErrEmptyRoster):
		return http.StatusUnprocessableEntity, "empty_roster"
	case errors.Is(err, simulation.ErrStoreUnavailable),
		errors.Is(err, simulation.ErrRosterLoad),
		errors.Is(err, simulation.ErrRunState),
		errors.Is(err, simulation.ErrShutdown):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
