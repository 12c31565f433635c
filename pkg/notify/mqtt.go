package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const connectTimeout = 5 * time.Second

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Retain   bool
}

// MessagePayload is the JSON body published for every decoded message.
type MessagePayload struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// MQTTPublisher forwards events to a topic on an MQTT broker.
type MQTTPublisher struct {
	client mqtt.Client
	config MQTTConfig
	logger *slog.Logger
}

// NewMQTTPublisher connects to the broker of cfg.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default().With("component", "mqtt")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "aetherlink_" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("connected to broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	// With ConnectRetry the token only completes once connected, so a
	// broker that is down does not hold up startup.
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Warn("broker not reachable yet, retrying in the background", "broker", cfg.Broker)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return newMQTTPublisher(client, cfg, logger), nil
}

func newMQTTPublisher(client mqtt.Client, cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, config: cfg, logger: logger}
}

// Publish sends one event and waits for the broker to accept it.
func (p *MQTTPublisher) Publish(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	data, err := json.Marshal(MessagePayload{Message: ev.Message, Timestamp: ev.Time.Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := p.client.Publish(p.config.Topic, p.config.QoS, p.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", p.config.Topic, token.Error())
	}
	return nil
}

// Run forwards the events of a hub subscription until ctx is done.
// Publish failures are logged and do not stop the loop.
func (p *MQTTPublisher) Run(ctx context.Context, sub *Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case ev := <-sub.C:
			if err := p.Publish(ev); err != nil {
				p.logger.Error("publish failed", "error", err)
			}
		}
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
	p.logger.Info("disconnected from broker")
}
