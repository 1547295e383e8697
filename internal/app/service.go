// Package service wires configuration into the simulation components and
// exposes the operations the control surfaces need.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/vitalstream/internal/adapters/roster"
	"github.com/okian/vitalstream/internal/adapters/runstate"
	"github.com/okian/vitalstream/internal/adapters/stream"
	"github.com/okian/vitalstream/internal/config"
	"github.com/okian/vitalstream/internal/domain/baseline"
	"github.com/okian/vitalstream/internal/domain/sampler"
	"github.com/okian/vitalstream/internal/simulation"
	"github.com/okian/vitalstream/pkg/logger"
	"github.com/okian/vitalstream/pkg/metrics"
)

const redisDialTimeout = 5 * time.Second

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service owns the process-wide clients and the simulation controller.
type Service struct {
	mu sync.RWMutex

	cfg     *config.Config
	baseCtx context.Context

	// Injected or built on Start.
	roster   roster.Source
	store    runstate.Store
	recorder stream.PutRecorder

	loop       *simulation.Loop
	controller *simulation.Controller

	closers []func(context.Context) error

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRoster uses src instead of building one from configuration.
func WithRoster(src roster.Source) Option {
	return func(s *Service) { s.roster = src }
}

// WithRunState uses store instead of building one from configuration.
func WithRunState(store runstate.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithRecorder uses rec instead of building one from configuration.
func WithRecorder(rec stream.PutRecorder) Option {
	return func(s *Service) { s.recorder = rec }
}

// WithBaseContext sets the context whose cancellation stops launched runs.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Service) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

// New constructs a Service. Nothing is dialled until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:     config.New(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds clients for the configured backends and the simulation controller.
// It does not launch a run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting vitalstream service...",
		logger.String("stream_backend", s.cfg.StreamBackend),
		logger.String("roster_backend", s.cfg.RosterBackend),
		logger.String("runstate_backend", s.cfg.RunStateBackend),
	)

	if err := s.build(ctx); err != nil {
		s.closeAll(ctx)
		return err
	}

	s.loop = simulation.NewLoop(
		s.roster,
		s.store,
		baseline.NewEstimator(),
		sampler.NewSampler(sampler.WithSeed(s.cfg.Seed)),
		stream.NewPublisher(s.recorder,
			stream.WithStreamName(s.cfg.StreamName),
			stream.WithPartitionKeyField(s.cfg.PartitionKeyField),
			stream.WithBackendName(s.cfg.StreamBackend),
			stream.WithLogger(s.logger.Named("publisher")),
		),
		simulation.WithSubjectDelay(s.cfg.SubjectDelay()),
		simulation.WithCycleDelay(s.cfg.CycleDelay()),
		simulation.WithLogger(s.logger.Named("simulation")),
	)
	s.controller = simulation.NewController(s.loop, s.store, s.roster,
		simulation.WithEnabled(s.cfg.SimulationEnabled),
		simulation.WithBaseContext(s.baseCtx),
		simulation.WithControllerLogger(s.logger.Named("controller")),
	)

	s.started = true
	s.logger.Info(ctx, "vitalstream service started",
		logger.Bool("simulation_enabled", s.cfg.SimulationEnabled),
		logger.String("stream", s.cfg.StreamName),
	)
	return nil
}

func (s *Service) build(ctx context.Context) error {
	var rdb *redis.Client
	redisClient := func() *redis.Client {
		if rdb == nil {
			rdb = NewRedisClient(s.cfg)
			s.closers = append(s.closers, func(context.Context) error { return rdb.Close() })
		}
		return rdb
	}

	if s.store == nil {
		switch s.cfg.RunStateBackend {
		case config.RunStateMemory:
			s.store = runstate.NewMemoryStore()
		default:
			s.store = runstate.NewRedisStore(redisClient(), runstate.WithKey(s.cfg.RunStateKey))
		}
	}

	if s.roster == nil {
		src, err := s.buildRoster(ctx)
		if err != nil {
			return err
		}
		s.roster = src
	}

	if s.recorder == nil {
		rec, err := s.buildRecorder(ctx, redisClient)
		if err != nil {
			return err
		}
		s.recorder = rec
	}
	return nil
}

func (s *Service) buildRoster(ctx context.Context) (roster.Source, error) {
	switch s.cfg.RosterBackend {
	case config.RosterStatic:
		return roster.LoadStaticFile(s.cfg.StaticRosterFile)
	case config.RosterPostgres:
		db, err := roster.OpenPostgres(ctx, s.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
		return roster.NewPostgresSource(db), nil
	default:
		client, err := roster.ConnectMongo(ctx, s.cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Disconnect)
		coll := client.Database(s.cfg.MongoDatabase).Collection(s.cfg.MongoCollection)
		return roster.NewMongoSource(coll), nil
	}
}

func (s *Service) buildRecorder(ctx context.Context, redisClient func() *redis.Client) (stream.PutRecorder, error) {
	timeout := s.cfg.PublishTimeout()
	switch s.cfg.StreamBackend {
	case config.StreamLog:
		return stream.NewLogRecorder(s.logger.Named("dry-run")), nil
	case config.StreamRedis:
		return stream.NewRedisStreamRecorder(redisClient(), 0), nil
	case config.StreamHTTP:
		return stream.NewHTTPRecorder(s.cfg.IngestURL, timeout), nil
	case config.StreamMQTT:
		client, err := stream.ConnectMQTT(ctx, s.cfg.MQTTBroker, s.cfg.MQTTClientID, s.logger.Named("mqtt"))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error {
			stream.DisconnectMQTT(client)
			return nil
		})
		return stream.NewMQTTRecorder(client, byte(s.cfg.MQTTQoS), timeout), nil
	default:
		client, err := stream.NewKinesisClient(ctx, s.cfg.AWSRegion, s.cfg.KinesisEndpoint)
		if err != nil {
			return nil, err
		}
		return stream.NewKinesisRecorder(client, timeout), nil
	}
}

// NewRedisClient builds the redis client shared by the run state and the redis stream backend.
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  cfg.PublishTimeout(),
		WriteTimeout: cfg.PublishTimeout(),
	})
}

// OpenRunState builds only the configured run-state store, for callers that
// flip or read the flag without running a loop. release closes its client.
func OpenRunState(cfg *config.Config) (store runstate.Store, release func() error) {
	if cfg.RunStateBackend == config.RunStateMemory {
		return runstate.NewMemoryStore(), func() error { return nil }
	}
	rdb := NewRedisClient(cfg)
	return runstate.NewRedisStore(rdb, runstate.WithKey(cfg.RunStateKey)), rdb.Close
}

// Stop ends a local run, waiting up to ctx for it to clear the flag, then
// releases every client.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping vitalstream service...")

	if err := s.controller.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "simulation did not stop in time", logger.Error(err))
	}
	s.closeAll(ctx)

	s.started = false
	s.logger.Info(ctx, "vitalstream service stopped")
}

func (s *Service) closeAll(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.logger.Warn(ctx, "error closing client", logger.Error(err))
		}
	}
	s.closers = nil
}

func (s *Service) ctrl() (*simulation.Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.controller, nil
}

// StartSimulation handles a start request.
func (s *Service) StartSimulation(ctx context.Context) error {
	c, err := s.ctrl()
	if err != nil {
		return err
	}
	return c.Start(ctx)
}

// StopSimulation handles a stop request.
func (s *Service) StopSimulation(ctx context.Context) error {
	c, err := s.ctrl()
	if err != nil {
		return err
	}
	return c.Stop(ctx)
}

// SimulationStatus reports the persisted flag and the local loop.
func (s *Service) SimulationStatus(ctx context.Context) (simulation.Status, error) {
	c, err := s.ctrl()
	if err != nil {
		return simulation.Status{}, err
	}
	return c.Status(ctx), nil
}

// Wait blocks until a locally launched run exits.
func (s *Service) Wait() {
	if c, err := s.ctrl(); err == nil {
		c.Wait()
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":           s.started,
		"streamBackend":     s.cfg.StreamBackend,
		"rosterBackend":     s.cfg.RosterBackend,
		"runStateBackend":   s.cfg.RunStateBackend,
		"streamName":        s.cfg.StreamName,
		"subjectDelayMs":    s.cfg.SubjectDelayMS,
		"cycleDelayMs":      s.cfg.CycleDelayMS,
		"simulationEnabled": s.cfg.SimulationEnabled,
	}

	goroutines := runtime.NumGoroutine()
	stats["goroutines"] = goroutines
	metrics.UpdateSystemGoroutineCount(goroutines)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)

	if s.started {
		ls := s.loop.Stats()
		stats["state"] = ls.State
		stats["runId"] = ls.RunID
		stats["subjects"] = ls.Subjects
		stats["cycles"] = ls.Cycles
		stats["published"] = ls.Published
		stats["failed"] = ls.Failed
		stats["uptime"] = s.controller.Uptime().String()
	}
	return stats
}

// Config returns the active configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// String implements fmt.Stringer for log lines.
func (s *Service) String() string {
	return fmt.Sprintf("vitalstream(stream=%s roster=%s)", s.cfg.StreamBackend, s.cfg.RosterBackend)
}
