// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat snake_case keys shared by the YAML file and VITALSTREAM_* env vars.
// - New() returns the defaults; Load() layers file and env on top of them.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"time"
)

// Supported backends.
const (
	StreamKinesis = "kinesis"
	StreamRedis   = "redis"
	StreamMQTT    = "mqtt"
	StreamHTTP    = "http"
	StreamLog     = "log"

	RosterMongo    = "mongo"
	RosterPostgres = "postgres"
	RosterStatic   = "static"

	RunStateRedis  = "redis"
	RunStateMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address of the control API, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SimulationEnabled gates every start request.
	SimulationEnabled bool `koanf:"simulation_enabled"`

	// SubjectDelayMS paces the loop between two subjects.
	SubjectDelayMS int `koanf:"subject_delay_ms"`

	// CycleDelayMS is the pause after a full pass over the roster.
	CycleDelayMS int `koanf:"cycle_delay_ms"`

	// Seed fixes the sampler random source; 0 derives one from the clock.
	Seed int64 `koanf:"seed"`

	// StreamBackend selects the ingestion endpoint: kinesis, redis, mqtt, http or log.
	StreamBackend string `koanf:"stream_backend"`

	// StreamName is the ingestion stream (Kinesis stream, Redis stream key, MQTT topic root).
	StreamName string `koanf:"stream_name"`

	// PartitionKeyField names the sample field used as partition key.
	PartitionKeyField string `koanf:"partition_key_field"`

	// PublishTimeoutMS bounds a single publish call inside the transport clients.
	PublishTimeoutMS int `koanf:"publish_timeout_ms"`

	// AWS / Kinesis.
	AWSRegion       string `koanf:"aws_region"`
	KinesisEndpoint string `koanf:"kinesis_endpoint"`

	// Redis (run state and redis stream backend).
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// RunStateBackend selects where the running flag lives: redis or memory.
	RunStateBackend string `koanf:"runstate_backend"`

	// RunStateKey is the key holding the running flag.
	RunStateKey string `koanf:"runstate_key"`

	// RosterBackend selects the subject profile store: mongo, postgres or static.
	RosterBackend string `koanf:"roster_backend"`

	// MongoDB profile store.
	MongoURI        string `koanf:"mongodb_uri"`
	MongoDatabase   string `koanf:"mongodb_database"`
	MongoCollection string `koanf:"mongodb_collection"`

	// PostgresDSN is the lib/pq connection string for the postgres roster.
	PostgresDSN string `koanf:"postgres_dsn"`

	// StaticRosterFile is a YAML subject list for the static roster.
	StaticRosterFile string `koanf:"static_roster_file"`

	// MQTT ingestion.
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTClientID string `koanf:"mqtt_client_id"`
	MQTTQoS      int    `koanf:"mqtt_qos"`

	// IngestURL is the base URL of the HTTP ingestion gateway.
	IngestURL string `koanf:"ingest_url"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		SimulationEnabled: true,
		SubjectDelayMS:    1000,
		CycleDelayMS:      3000,
		StreamBackend:     StreamKinesis,
		StreamName:        "patient-vitals",
		PartitionKeyField: "patient_id",
		PublishTimeoutMS:  5000,
		AWSRegion:         "us-east-1",
		RedisAddr:         "localhost:6379",
		RunStateBackend:   RunStateRedis,
		RunStateKey:       "vitalstream:simulation:running",
		RosterBackend:     RosterMongo,
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "healthcare",
		MongoCollection:   "patients",
		MQTTBroker:        "tcp://localhost:1883",
		MQTTQoS:           1,
		IngestURL:         "http://localhost:8081",
	}
}

// SubjectDelay returns the per-subject pacing delay.
func (c *Config) SubjectDelay() time.Duration {
	return time.Duration(c.SubjectDelayMS) * time.Millisecond
}

// CycleDelay returns the inter-cycle delay.
func (c *Config) CycleDelay() time.Duration {
	return time.Duration(c.CycleDelayMS) * time.Millisecond
}

// PublishTimeout returns the transport timeout for one publish.
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMS) * time.Millisecond
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.SubjectDelayMS < 0:
		return fmt.Errorf("%w: subject_delay_ms must not be negative", ErrInvalidConfig)
	case c.CycleDelayMS < 0:
		return fmt.Errorf("%w: cycle_delay_ms must not be negative", ErrInvalidConfig)
	case c.StreamName == "":
		return fmt.Errorf("%w: stream_name must not be empty", ErrInvalidConfig)
	case c.MQTTQoS < 0 || c.MQTTQoS > 2:
		return fmt.Errorf("%w: mqtt_qos must be 0, 1 or 2", ErrInvalidConfig)
	}

	switch c.StreamBackend {
	case StreamKinesis, StreamRedis, StreamMQTT, StreamHTTP, StreamLog:
	default:
		return fmt.Errorf("%w: unknown stream_backend %q", ErrInvalidConfig, c.StreamBackend)
	}

	switch c.RosterBackend {
	case RosterMongo, RosterPostgres, RosterStatic:
	default:
		return fmt.Errorf("%w: unknown roster_backend %q", ErrInvalidConfig, c.RosterBackend)
	}

	switch c.RunStateBackend {
	case RunStateRedis, RunStateMemory:
	default:
		return fmt.Errorf("%w: unknown runstate_backend %q", ErrInvalidConfig, c.RunStateBackend)
	}

	switch c.PartitionKeyField {
	case "patient_id", "patient_name", "heart_rate", "blood_pressure",
		"temperature_celsius", "oxygen_saturation", "timestamp":
	default:
		return fmt.Errorf("%w: partition_key_field %q is not a sample field", ErrInvalidConfig, c.PartitionKeyField)
	}

	if c.RosterBackend == RosterStatic && c.StaticRosterFile == "" {
		return fmt.Errorf("%w: static_roster_file is required for the static roster", ErrInvalidConfig)
	}
	return nil
}
