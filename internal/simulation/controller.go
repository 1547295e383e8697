package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/vitalstream/internal/adapters/runstate"
	"github.com/okian/vitalstream/pkg/logger"
	"github.com/okian/vitalstream/pkg/metrics"
)

// Start failure reasons used as metric labels.
const (
	reasonDisabled    = "disabled"
	reasonUnavailable = "store_unavailable"
	reasonRunning     = "already_running"
	reasonRoster      = "roster"
	reasonRunState    = "run_state"
)

// Pinger checks that the subject store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the combined view of the persisted flag and the local loop.
type Status struct {
	Enabled bool `json:"enabled"`
	// Running is the persisted flag, shared with other processes.
	Running bool `json:"running"`
	// RunStateError is set when the flag could not be read; Running is then false.
	RunStateError string `json:"run_state_error,omitempty"`
	// Local is true while this process has a live loop.
	Local bool  `json:"local"`
	Loop  Stats `json:"loop"`
}

// Controller handles start and stop requests. It launches at most one loop per
// process and observes it only through the run-state store.
type Controller struct {
	loop    *Loop
	store   runstate.Store
	pinger  Pinger
	enabled bool
	baseCtx context.Context

	mu       sync.Mutex
	starting bool
	closed   bool
	done     chan struct{}
	cancel   context.CancelFunc

	logger logger.Logger
}

// NewController creates a controller for loop. Simulation is enabled by default.
func NewController(loop *Loop, store runstate.Store, pinger Pinger, opts ...ControllerOption) *Controller {
	c := &Controller{
		loop:    loop,
		store:   store,
		pinger:  pinger,
		enabled: true,
		baseCtx: context.Background(),
		logger:  logger.Get().Named("controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start validates the request, prepares the loop, sets the running flag and
// launches the loop in its own goroutine. The run outlives ctx; it ends on a
// stop request or when the base context is cancelled. The controller lock is
// not held across store I/O; a starting token keeps concurrent starts out.
func (c *Controller) Start(ctx context.Context) error {
	if !c.enabled {
		metrics.RecordStartFailure(reasonDisabled)
		c.logger.Info(ctx, "start refused, simulation disabled")
		return ErrSimulationDisabled
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrShutdown
	case c.done != nil || c.starting:
		c.mu.Unlock()
		metrics.RecordStartFailure(reasonRunning)
		return ErrAlreadyRunning
	}
	c.starting = true
	c.mu.Unlock()

	launched := false
	defer func() {
		if !launched {
			c.mu.Lock()
			c.starting = false
			c.mu.Unlock()
		}
	}()

	if err := c.pinger.Ping(ctx); err != nil {
		metrics.RecordStartFailure(reasonUnavailable)
		c.logger.Error(ctx, "start refused, subject store unreachable", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if err := c.loop.Prepare(ctx); err != nil {
		metrics.RecordStartFailure(reasonRoster)
		c.logger.Error(ctx, "start failed", logger.Error(err))
		return err
	}

	if err := c.store.Set(ctx, true); err != nil {
		c.loop.Abort()
		metrics.RecordStartFailure(reasonRunState)
		metrics.RecordRunStateError("set")
		c.logger.Error(ctx, "start failed, cannot set run state", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrRunState, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.loop.Abort()
		if err := c.store.Set(ctx, false); err != nil {
			metrics.RecordRunStateError("set")
		}
		return ErrShutdown
	}
	runCtx, cancel := context.WithCancel(c.baseCtx)
	done := make(chan struct{})
	c.done, c.cancel = done, cancel
	c.starting = false
	launched = true
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if err := c.loop.Run(runCtx); err != nil {
			c.logger.Error(runCtx, "simulation run failed", logger.Error(err))
		}
		c.mu.Lock()
		if c.done == done {
			c.done, c.cancel = nil, nil
		}
		c.mu.Unlock()
	}()

	c.logger.Info(ctx, "simulation launched", logger.String("run_id", c.loop.Stats().RunID))
	return nil
}

// Stop clears the running flag. Any loop sharing the flag, in this process or
// another, stops at its next check.
func (c *Controller) Stop(ctx context.Context) error {
	if err := c.store.Set(ctx, false); err != nil {
		metrics.RecordRunStateError("set")
		return fmt.Errorf("%w: %w", ErrRunState, err)
	}
	c.logger.Info(ctx, "stop requested")
	return nil
}

// Status reports the persisted flag and the local loop.
func (c *Controller) Status(ctx context.Context) Status {
	st := Status{Enabled: c.enabled, Loop: c.loop.Stats()}
	running, err := c.store.Get(ctx)
	if err != nil {
		metrics.RecordRunStateError("get")
		st.RunStateError = err.Error()
	} else {
		st.Running = running
	}

	c.mu.Lock()
	st.Local = c.done != nil
	c.mu.Unlock()
	return st
}

// Wait blocks until the locally launched loop, if any, has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Shutdown cancels a local run and waits for it to clear the flag, bounded by ctx.
// Later starts are refused with ErrShutdown.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	done, cancel := c.done, c.cancel
	c.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn(ctx, "simulation shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Uptime returns how long the current or last run has been going.
func (c *Controller) Uptime() time.Duration {
	s := c.loop.Stats()
	if s.StartedAt == nil {
		return 0
	}
	if s.StoppedAt != nil {
		return s.StoppedAt.Sub(*s.StartedAt)
	}
	return time.Since(*s.StartedAt)
}
