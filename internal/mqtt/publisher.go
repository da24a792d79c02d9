package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weather-anomaly-server/internal/config"
	"weather-anomaly-server/internal/modules/anomaly/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned by publish calls while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt client not connected")

const publishTimeout = 5 * time.Second

// Publisher sends anomaly alerts to the broker, one message per anomaly.
type Publisher struct {
	client      mqtt.Client
	logger      *slog.Logger
	topicPrefix string
	mu          sync.RWMutex
	connected   bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	p := &Publisher{
		logger:      logger,
		topicPrefix: cfg.MQTTTopicPrefix,
		stopCh:      make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial broker connection. It respects ctx and
// Disconnect; with connect-retry enabled the client keeps trying in the
// background after ctx expires.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// AlertTopic returns the topic anomalies for stationID are published to.
func (p *Publisher) AlertTopic(stationID string) string {
	return alertTopic(p.topicPrefix, stationID)
}

func alertTopic(prefix, stationID string) string {
	return fmt.Sprintf("%s/%s/anomalies", prefix, stationID)
}

// PublishAnomaly publishes alert with QoS 1. It fails fast with
// ErrNotConnected when the broker is down so detection responses are not
// held up by a dead connection.
func (p *Publisher) PublishAnomaly(ctx context.Context, alert types.AnomalyAlert) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	topic := p.AlertTopic(alert.StationID)
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	token := p.client.Publish(topic, 1, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	p.logger.Debug("published anomaly alert",
		"topic", topic,
		"station_id", alert.StationID,
		"variable", alert.Variable,
	)
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the publisher and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
