// ABOUTME: MQTT color sink
// ABOUTME: Publishes color/override JSON at QoS 0 without waiting on delivery
package sink

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// DefaultMQTTTopic is used when no topic is configured
const DefaultMQTTTopic = "fruitypi/color"

// MQTTConfig configures the MQTT sink
type MQTTConfig struct {
	Broker         string // e.g. tcp://broker.local:1883
	Topic          string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// MQTT publishes colors to a broker
type MQTT struct {
	client mqtt.Client
	topic  string
	log    zerolog.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewMQTT connects to the broker; the client reconnects on its own afterwards
func NewMQTT(config MQTTConfig) (*MQTT, error) {
	if config.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if config.Topic == "" {
		config.Topic = DefaultMQTTTopic
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	log := config.Logger.With().Str("sink", "mqtt").Str("broker", config.Broker).Logger()
	m := &MQTT{topic: config.Topic, log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("topic", config.Topic).Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("Connection to MQTT broker lost")
	})

	m.client = mqtt.NewClient(opts)

	token := m.client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection error: %w", err)
	}

	return m, nil
}

// Send implements visualizer.Sink. Colors are dropped while disconnected.
func (m *MQTT) Send(c color.Color) {
	if !m.client.IsConnectionOpen() {
		m.dropped.Add(1)
		return
	}

	payload, err := json.Marshal(protocol.ColorMessage(c))
	if err != nil {
		m.dropped.Add(1)
		return
	}

	// QoS 0, token not waited on
	m.client.Publish(m.topic, 0, false, payload)
	m.sent.Add(1)
}

// Dropped is the number of colors not published
func (m *MQTT) Dropped() uint64 {
	return m.dropped.Load()
}

// Close disconnects from the broker
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
