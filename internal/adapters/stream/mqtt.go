package stream

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/okian/vitalstream/pkg/logger"
)

const (
	mqttConnectTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 250
)

// MQTTPublisher is the subset of mqtt.Client used by MQTTRecorder.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// MQTTRecorder publishes each record to "<stream>/<partition key>".
type MQTTRecorder struct {
	client  MQTTPublisher
	qos     byte
	timeout time.Duration
}

// NewMQTTRecorder wraps a connected client.
func NewMQTTRecorder(client MQTTPublisher, qos byte, timeout time.Duration) *MQTTRecorder {
	return &MQTTRecorder{client: client, qos: qos, timeout: timeout}
}

// ConnectMQTT dials broker and waits for the connection. An empty clientID gets a random one.
func ConnectMQTT(ctx context.Context, broker, clientID string, log logger.Logger) (mqtt.Client, error) {
	if clientID == "" {
		clientID = "vitalstream-" + uuid.NewString()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info(context.Background(), "mqtt connection established",
			logger.String("broker", broker), logger.String("client_id", clientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn(context.Background(), "mqtt connection lost", logger.String("broker", broker), logger.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, ctx.Err())
	case <-time.After(mqttConnectTimeout):
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}

// DisconnectMQTT closes client with a short quiesce period.
func DisconnectMQTT(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(mqttDisconnectQuiesce)
	}
}

// PutRecord publishes payload and waits for the broker acknowledgement.
func (m *MQTTRecorder) PutRecord(ctx context.Context, streamName, partitionKey string, payload []byte) error {
	if !m.client.IsConnected() {
		return ErrNotConnected
	}
	topic := streamName + "/" + partitionKey
	token := m.client.Publish(topic, m.qos, false, payload)

	var timeout <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish %s: %w", topic, ctx.Err())
	case <-timeout:
		return fmt.Errorf("mqtt publish %s: timeout after %s", topic, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}
