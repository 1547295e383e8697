package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
)

// KinesisAPI is the subset of the Kinesis client used by KinesisRecorder.
type KinesisAPI interface {
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

// KinesisRecorder writes records with Kinesis PutRecord.
type KinesisRecorder struct {
	client  KinesisAPI
	timeout time.Duration
}

// NewKinesisRecorder wraps client. A positive timeout bounds each PutRecord call.
func NewKinesisRecorder(client KinesisAPI, timeout time.Duration) *KinesisRecorder {
	return &KinesisRecorder{client: client, timeout: timeout}
}

// NewKinesisClient builds a client from the default AWS credential chain.
// endpoint overrides the service URL (LocalStack and similar); empty keeps the AWS default.
func NewKinesisClient(ctx context.Context, region, endpoint string) (*kinesis.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return kinesis.NewFromConfig(cfg, func(o *kinesis.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// PutRecord submits payload to streamName under partitionKey.
func (k *KinesisRecorder) PutRecord(ctx context.Context, streamName, partitionKey string, payload []byte) error {
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	_, err := k.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(streamName),
		PartitionKey: aws.String(partitionKey),
		Data:         payload,
	})
	if err != nil {
		return fmt.Errorf("kinesis put record: %w", err)
	}
	return nil
}
