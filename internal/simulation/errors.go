package simulation

import "errors"

// Simulation errors.
var (
	// ErrSimulationDisabled is returned when the feature flag turns simulation off.
	ErrSimulationDisabled = errors.New("simulation disabled")
	// ErrStoreUnavailable is returned when the subject store cannot be reached.
	ErrStoreUnavailable = errors.New("subject store unavailable")
	// ErrRosterLoad is returned when active subjects cannot be read.
	ErrRosterLoad = errors.New("roster load failed")
	// ErrEmptyRoster is returned when there are no active subjects.
	ErrEmptyRoster = errors.New("no active subjects")
	// ErrAlreadyRunning is returned when this process already runs a loop.
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrNotPrepared is returned when Run is called without a successful Prepare.
	ErrNotPrepared = errors.New("simulation not prepared")
	// ErrRunState is returned when the running flag cannot be written.
	ErrRunState = errors.New("run state update failed")
	// ErrShutdown is returned by Start after Shutdown.
	ErrShutdown = errors.New("simulation controller shut down")
)
