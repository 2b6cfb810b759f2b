package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/protocol"
)

// MQTTConfig holds the broker connection used when telemetry is relayed
// through MQTT instead of the backend socket.
type MQTTConfig struct {
	// BrokerURL is the MQTT broker address (e.g. "tls://broker:8883").
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// VehicleID selects the v1/vehicle/{id}/telemetry topic.
	VehicleID      string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	TLS            *tls.Config
}

// MQTTSource subscribes to a vehicle's telemetry topic.
type MQTTSource struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger log.Logger

	mu   sync.RWMutex
	sink Sink
}

func NewMQTTSource(cfg MQTTConfig, logger log.Logger) *MQTTSource {
	if logger == nil {
		logger = log.Std()
	}
	return &MQTTSource{
		cfg:    cfg,
		logger: logger.WithName("mqtt").WithValues("client", cfg.ClientID),
	}
}

func (s *MQTTSource) Name() string { return "mqtt" }

// Connect establishes the MQTT connection. The telemetry topic is
// (re)subscribed on every successful connect.
func (s *MQTTSource) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetUsername(s.cfg.Username).
		SetPassword(s.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)
	if s.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(s.cfg.KeepAlive)
	}
	if s.cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	}
	if s.cfg.RetryInterval > 0 {
		opts.SetConnectRetryInterval(s.cfg.RetryInterval)
	}
	if s.cfg.TLS != nil {
		opts.SetTLSConfig(s.cfg.TLS)
	}

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry mqtt connect: %w", token.Error())
	}
	return nil
}

// ConnectWithClient injects a pre-configured client (used in tests). Run
// subscribes through it instead of dialling.
func (s *MQTTSource) ConnectWithClient(c mqtt.Client) {
	s.client = c
}

// Run delivers frames published on the telemetry topic until ctx is done.
func (s *MQTTSource) Run(ctx context.Context, sink Sink) error {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()

	if s.client == nil {
		if err := s.Connect(); err != nil {
			return err
		}
	} else {
		s.subscribe(s.client)
	}

	<-ctx.Done()
	s.Disconnect()
	return nil
}

// Disconnect gracefully closes the MQTT connection.
func (s *MQTTSource) Disconnect() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

// --- private ---

func (s *MQTTSource) onConnect(c mqtt.Client) {
	s.logger.Info("connected to broker", "broker", s.cfg.BrokerURL)
	s.subscribe(c)
}

func (s *MQTTSource) onConnectionLost(_ mqtt.Client, err error) {
	s.logger.Warn("connection lost", "error", err.Error())
}

func (s *MQTTSource) subscribe(c mqtt.Client) {
	topic := protocol.TelemetryTopic(s.cfg.VehicleID)
	token := c.Subscribe(topic, 0, s.handleTelemetry)
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error(err, "subscribe failed", "topic", topic)
	}
}

func (s *MQTTSource) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	if sink == nil {
		return
	}
	sink(msg.Payload())
}
