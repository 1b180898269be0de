package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"aircx/internal/results"
	"aircx/internal/types"
)

// DefaultCommandTopic is the topic template for setpoint commands.
const DefaultCommandTopic = "aircx/{equipment_id}/command/{channel}"

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// NewMQTTClient connects to the broker with automatic reconnection.
func NewMQTTClient(cfg MQTTConfig, logger *slog.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connection established", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCommand, "failed to connect to MQTT broker", token.Error())
	}
	return client, nil
}

// MQTTCommander publishes commands to a per-unit, per-channel topic with QoS 1.
type MQTTCommander struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// Compile-time assertion that MQTTCommander implements results.Commander.
var _ results.Commander = (*MQTTCommander)(nil)

// NewMQTTCommander creates a commander. topic may contain {equipment_id} and
// {channel} placeholders; empty means DefaultCommandTopic.
func NewMQTTCommander(client mqtt.Client, topic string, timeout time.Duration, logger *slog.Logger) *MQTTCommander {
	if topic == "" {
		topic = DefaultCommandTopic
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTCommander{client: client, topic: topic, timeout: timeout, logger: logger}
}

// Topic renders the topic for one command.
func (c *MQTTCommander) Topic(msg types.CommandMessage) string {
	return strings.NewReplacer(
		"{equipment_id}", msg.EquipmentID,
		"{channel}", string(msg.Channel),
	).Replace(c.topic)
}

// Send implements results.Commander. It waits for the broker acknowledgment
// up to the configured timeout or until ctx is done.
func (c *MQTTCommander) Send(ctx context.Context, msg types.CommandMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: failed to marshal CommandMessage: %w", err)
	}
	topic := c.Topic(msg)

	token := c.client.Publish(topic, 1, false, payload)
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("transport: publish to %s timed out after %s", topic, c.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: failed to publish to %s: %w", topic, err)
	}

	c.logger.DebugContext(ctx, "command published",
		"topic", topic,
		"command_id", msg.CommandID,
	)
	return nil
}
