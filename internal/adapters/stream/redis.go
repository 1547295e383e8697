package stream

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Redis stream entry field names.
const (
	RedisFieldPartitionKey = "partition_key"
	RedisFieldData         = "data"
)

// RedisStreamRecorder appends records to a Redis stream with XADD.
type RedisStreamRecorder struct {
	client *redis.Client
	maxLen int64
}

// NewRedisStreamRecorder wraps client. A positive maxLen caps the stream approximately.
func NewRedisStreamRecorder(client *redis.Client, maxLen int64) *RedisStreamRecorder {
	return &RedisStreamRecorder{client: client, maxLen: maxLen}
}

// PutRecord appends one entry holding the partition key and JSON payload.
func (r *RedisStreamRecorder) PutRecord(ctx context.Context, streamName, partitionKey string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{
			RedisFieldPartitionKey: partitionKey,
			RedisFieldData:         string(payload),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", streamName, err)
	}
	return nil
}
