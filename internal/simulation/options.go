package simulation

import (
	"context"
	"time"

	"github.com/okian/vitalstream/pkg/logger"
)

// Option applies a configuration option to the Loop.
type Option func(*Loop)

// WithSubjectDelay sets the pause after each subject.
func WithSubjectDelay(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.subjectDelay = d
		}
	}
}

// WithCycleDelay sets the pause between full cycles.
func WithCycleDelay(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.cycleDelay = d
		}
	}
}

// WithLogger sets a custom logger for the loop.
func WithLogger(l logger.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// ControllerOption applies a configuration option to the Controller.
type ControllerOption func(*Controller)

// WithEnabled sets the simulation feature flag.
func WithEnabled(enabled bool) ControllerOption {
	return func(c *Controller) {
		c.enabled = enabled
	}
}

// WithBaseContext sets the parent context of launched runs. Cancelling it stops them.
func WithBaseContext(ctx context.Context) ControllerOption {
	return func(c *Controller) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// WithControllerLogger sets a custom logger for the controller.
func WithControllerLogger(l logger.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
