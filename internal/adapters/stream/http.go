package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpRecord is the body posted to the ingestion gateway.
type httpRecord struct {
	PartitionKey string          `json:"partition_key"`
	Data         json.RawMessage `json:"data"`
}

// HTTPRecorder posts records to an HTTP ingestion gateway at
// <base>/streams/<stream>/records.
type HTTPRecorder struct {
	client *resty.Client
}

// NewHTTPRecorder creates a recorder for the gateway at baseURL.
func NewHTTPRecorder(baseURL string, timeout time.Duration) *HTTPRecorder {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPRecorder{client: client}
}

// PutRecord posts one record. Any non-2xx status is a failure.
func (h *HTTPRecorder) PutRecord(ctx context.Context, streamName, partitionKey string, payload []byte) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(httpRecord{PartitionKey: partitionKey, Data: payload}).
		Post("/streams/" + url.PathEscape(streamName) + "/records")
	if err != nil {
		return fmt.Errorf("http put record: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("http put record: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
