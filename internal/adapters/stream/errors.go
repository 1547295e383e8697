package stream

import "errors"

// Stream publishing errors.
var (
	// ErrPublish reports that the ingestion endpoint rejected or never acknowledged a record.
	ErrPublish = errors.New("publish failed")
	// ErrEncode reports that a sample could not be serialized.
	ErrEncode = errors.New("encode sample")
	// ErrPartitionKey reports a missing or empty partition key value.
	ErrPartitionKey = errors.New("partition key unavailable")
	// ErrNotConnected reports a recorder whose transport is not connected.
	ErrNotConnected = errors.New("recorder not connected")
)
