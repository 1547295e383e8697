package stream

import (
	"context"

	"github.com/okian/vitalstream/pkg/logger"
)

// LogRecorder is a dry-run recorder that only logs what would be sent.
type LogRecorder struct {
	logger logger.Logger
}

// NewLogRecorder creates a dry-run recorder.
func NewLogRecorder(l logger.Logger) *LogRecorder {
	if l == nil {
		l = logger.Get().Named("dry-run")
	}
	return &LogRecorder{logger: l}
}

// PutRecord logs the record and always succeeds.
func (r *LogRecorder) PutRecord(ctx context.Context, streamName, partitionKey string, payload []byte) error {
	r.logger.Info(ctx, "dry run record",
		logger.String("stream", streamName),
		logger.String("partition_key", partitionKey),
		logger.String("data", string(payload)),
	)
	return nil
}
