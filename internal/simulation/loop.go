// Package simulation runs the vitals generation loop and handles start and stop requests.
package simulation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/vitalstream/internal/adapters/runstate"
	"github.com/okian/vitalstream/internal/domain/model"
	"github.com/okian/vitalstream/pkg/logger"
	"github.com/okian/vitalstream/pkg/metrics"
)

// Default loop configuration constants.
const (
	defaultSubjectDelay = time.Second
	defaultCycleDelay   = 3 * time.Second
	clearFlagTimeout    = 5 * time.Second
)

// Roster lists the subjects a run generates samples for.
type Roster interface {
	ListActiveSubjects(ctx context.Context) ([]model.Subject, error)
}

// Estimator computes a subject's baseline.
type Estimator interface {
	Compute(subject model.Subject) model.BaselineProfile
}

// Sampler generates one sample from a baseline.
type Sampler interface {
	Generate(subject model.Subject, b model.BaselineProfile) model.VitalsSample
}

// Publisher sends one sample to the ingestion stream.
type Publisher interface {
	Publish(ctx context.Context, sample model.VitalsSample) (bool, error)
}

// Loop generates and publishes samples for every active subject, cycle after
// cycle, until the persisted running flag goes false or its context ends.
type Loop struct {
	roster    Roster
	store     runstate.Store
	estimator Estimator
	sampler   Sampler
	publisher Publisher

	subjectDelay time.Duration
	cycleDelay   time.Duration

	state atomic.Int32

	mu        sync.Mutex
	subjects  []model.Subject
	baselines []model.BaselineProfile
	stats     Stats

	logger logger.Logger
}

// NewLoop creates a loop with configuration options.
func NewLoop(r Roster, store runstate.Store, est Estimator, s Sampler, pub Publisher, opts ...Option) *Loop {
	l := &Loop{
		roster:       r,
		store:        store,
		estimator:    est,
		sampler:      s,
		publisher:    pub,
		subjectDelay: defaultSubjectDelay,
		cycleDelay:   defaultCycleDelay,
		logger:       logger.Get().Named("simulation"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stats returns a snapshot of the current or last run.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.State = l.State().String()
	return s
}

// Prepare moves the loop from Stopped to Starting: it loads the roster once and
// computes every baseline. On failure the loop returns to Stopped.
func (l *Loop) Prepare(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("%w: state %s", ErrAlreadyRunning, l.State())
	}

	subjects, err := l.roster.ListActiveSubjects(ctx)
	if err != nil {
		l.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %w", ErrRosterLoad, err)
	}
	if len(subjects) == 0 {
		l.state.Store(int32(StateStopped))
		return ErrEmptyRoster
	}

	baselines := make([]model.BaselineProfile, len(subjects))
	for i, s := range subjects {
		baselines[i] = l.estimator.Compute(s)
	}

	l.mu.Lock()
	l.subjects = subjects
	l.baselines = baselines
	startedAt := time.Now().UTC()
	l.stats = Stats{
		RunID:     uuid.NewString(),
		Subjects:  len(subjects),
		StartedAt: &startedAt,
	}
	runID := l.stats.RunID
	l.mu.Unlock()

	metrics.UpdateSubjects(len(subjects))
	l.logger.Info(ctx, "simulation prepared",
		logger.String("run_id", runID),
		logger.Int("subjects", len(subjects)),
	)
	return nil
}

// Abort returns a prepared loop to Stopped without running it.
func (l *Loop) Abort() {
	if l.state.CompareAndSwap(int32(StateStarting), int32(StateStopped)) {
		l.release()
	}
}

// Run executes cycles until the running flag reads false, the flag cannot be
// read, or ctx ends. It always clears the flag on exit. Publish failures are
// logged and skipped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return fmt.Errorf("%w: state %s", ErrNotPrepared, l.State())
	}

	l.mu.Lock()
	subjects, baselines, runID := l.subjects, l.baselines, l.stats.RunID
	l.mu.Unlock()

	log := l.logger.With(logger.String("run_id", runID))
	metrics.RecordRunStarted()
	metrics.UpdateRunning(true)
	log.Info(ctx, "simulation running",
		logger.Int("subjects", len(subjects)),
		logger.Duration("subject_delay", l.subjectDelay),
		logger.Duration("cycle_delay", l.cycleDelay),
	)

	reason := l.cycles(ctx, log, subjects, baselines)
	l.finish(log, reason)
	return nil
}

func (l *Loop) cycles(ctx context.Context, log logger.Logger, subjects []model.Subject, baselines []model.BaselineProfile) string {
	for cycle := int64(1); ; cycle++ {
		for i := range subjects {
			if reason, ok := l.keepRunning(ctx, log); !ok {
				if i > 0 {
					log.Info(ctx, "simulation stopped mid-cycle", logger.Int64("cycle", cycle), logger.Int("position", i))
				}
				return reason
			}
			l.step(ctx, log, subjects[i], baselines[i])
			if !sleep(ctx, l.subjectDelay) {
				return StopCancelled
			}
		}

		if reason, ok := l.keepRunning(ctx, log); !ok {
			return reason
		}

		l.mu.Lock()
		l.stats.Cycles = cycle
		l.mu.Unlock()
		metrics.RecordCycleCompleted()
		log.Info(ctx, "cycle completed",
			logger.Int64("cycle", cycle),
			logger.Int("subjects", len(subjects)),
		)

		if !sleep(ctx, l.cycleDelay) {
			return StopCancelled
		}
	}
}

// keepRunning reports whether the run should continue. A flag that cannot be
// read stops the run.
func (l *Loop) keepRunning(ctx context.Context, log logger.Logger) (string, bool) {
	if ctx.Err() != nil {
		return StopCancelled, false
	}
	running, err := l.store.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return StopCancelled, false
		}
		metrics.RecordRunStateError("get")
		log.Error(ctx, "run state unreadable, stopping", logger.Error(err))
		return StopRunStateUnusable, false
	}
	if !running {
		return StopRequested, false
	}
	return "", true
}

func (l *Loop) step(ctx context.Context, log logger.Logger, subject model.Subject, b model.BaselineProfile) {
	sample := l.sampler.Generate(subject, b)
	metrics.RecordSampleGenerated()

	ok, err := l.publisher.Publish(ctx, sample)

	l.mu.Lock()
	if ok && err == nil {
		l.stats.Published++
	} else {
		l.stats.Failed++
	}
	l.mu.Unlock()

	if err != nil || !ok {
		log.Warn(ctx, "publish failed",
			logger.String("subject_id", subject.ID),
			logger.Error(err),
		)
		return
	}
	log.Debug(ctx, "sample published",
		logger.String("subject_id", sample.SubjectID),
		logger.Int("heart_rate", sample.HeartRate),
		logger.String("blood_pressure", sample.BloodPressure),
	)
}

// finish runs the Stopping phase: clear the flag, release the roster, go to Stopped.
func (l *Loop) finish(log logger.Logger, reason string) {
	l.state.Store(int32(StateStopping))

	ctx, cancel := context.WithTimeout(context.Background(), clearFlagTimeout)
	defer cancel()
	if err := l.store.Set(ctx, false); err != nil {
		metrics.RecordRunStateError("set")
		log.Error(ctx, "failed to clear run state", logger.Error(err))
	}

	l.mu.Lock()
	stoppedAt := time.Now().UTC()
	l.stats.StoppedAt = &stoppedAt
	l.stats.StopReason = reason
	stats := l.stats
	l.mu.Unlock()

	l.release()
	metrics.UpdateRunning(false)
	metrics.UpdateSubjects(0)
	l.state.Store(int32(StateStopped))

	log.Info(ctx, "simulation stopped",
		logger.String("reason", reason),
		logger.Int64("cycles", stats.Cycles),
		logger.Int64("published", stats.Published),
		logger.Int64("failed", stats.Failed),
	)
}

func (l *Loop) release() {
	l.mu.Lock()
	l.subjects = nil
	l.baselines = nil
	l.mu.Unlock()
}

// sleep waits d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
