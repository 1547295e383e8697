// Package stream publishes vitals samples as partitioned records to an ingestion endpoint.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/vitalstream/internal/domain/model"
	"github.com/okian/vitalstream/pkg/logger"
	"github.com/okian/vitalstream/pkg/metrics"
)

// Default publisher configuration constants.
const (
	DefaultStreamName        = "patient-vitals"
	DefaultPartitionKeyField = "patient_id"
)

// PutRecorder submits one record to an ingestion stream.
type PutRecorder interface {
	PutRecord(ctx context.Context, streamName, partitionKey string, payload []byte) error
}

// Option applies a configuration option to the Publisher.
type Option func(*Publisher)

// WithStreamName sets the target stream.
func WithStreamName(name string) Option {
	return func(p *Publisher) {
		if name != "" {
			p.streamName = name
		}
	}
}

// WithPartitionKeyField sets which sample field is used as the partition key.
func WithPartitionKeyField(field string) Option {
	return func(p *Publisher) {
		if field != "" {
			p.partitionKeyField = field
		}
	}
}

// WithBackendName sets the backend label used in metrics and logs.
func WithBackendName(name string) Option {
	return func(p *Publisher) {
		if name != "" {
			p.backend = name
		}
	}
}

// WithLogger sets a custom logger for the publisher.
func WithLogger(l logger.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// Publisher serializes samples and hands them to a PutRecorder. It never
// retries or buffers: each call is a single synchronous attempt.
type Publisher struct {
	recorder          PutRecorder
	streamName        string
	partitionKeyField string
	backend           string
	logger            logger.Logger
}

// NewPublisher creates a publisher writing through recorder.
func NewPublisher(recorder PutRecorder, opts ...Option) *Publisher {
	p := &Publisher{
		recorder:          recorder,
		streamName:        DefaultStreamName,
		partitionKeyField: DefaultPartitionKeyField,
		backend:           "custom",
		logger:            logger.Get().Named("publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StreamName returns the target stream.
func (p *Publisher) StreamName() string { return p.streamName }

// Publish sends sample and reports whether the endpoint accepted it.
func (p *Publisher) Publish(ctx context.Context, sample model.VitalsSample) (bool, error) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	key, ok := sample.Field(p.partitionKeyField)
	if !ok || key == "" {
		return false, fmt.Errorf("%w: field %q", ErrPartitionKey, p.partitionKeyField)
	}

	start := time.Now()
	err = p.recorder.PutRecord(ctx, p.streamName, key, payload)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		metrics.RecordPublishFailure(p.backend, latency)
		return false, fmt.Errorf("%w: stream %s key %s: %w", ErrPublish, p.streamName, key, err)
	}

	metrics.RecordSamplePublished(latency)
	p.logger.Debug(ctx, "record published",
		logger.String("stream", p.streamName),
		logger.String("partition_key", key),
		logger.Int("bytes", len(payload)),
		logger.Float64("latency_ms", latency),
	)
	return true, nil
}
