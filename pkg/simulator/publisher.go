package simulator

import (
	"crypto/tls"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/protocol"
)

// PublisherConfig holds the broker connection of the telemetry relay.
type PublisherConfig struct {
	// BrokerURL is the MQTT broker address (e.g. "tls://broker:8883").
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	VehicleID string
	TLS       *tls.Config
}

// Publisher relays telemetry frames to v1/vehicle/{id}/telemetry.
type Publisher struct {
	cfg    PublisherConfig
	client mqtt.Client
	logger log.Logger
}

func NewPublisher(cfg PublisherConfig, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.Std()
	}
	return &Publisher{cfg: cfg, logger: logger.WithName("mqtt").WithValues("vehicle", cfg.VehicleID)}
}

// Connect establishes the MQTT connection.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID(p.cfg.ClientID).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			p.logger.Info("connected to broker", "broker", p.cfg.BrokerURL)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.logger.Warn("connection lost", "error", err.Error())
		})
	if p.cfg.TLS != nil {
		opts.SetTLSConfig(p.cfg.TLS)
	}

	p.client = mqtt.NewClient(opts)

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("simulator publisher connect: %w", token.Error())
	}
	return nil
}

// ConnectWithClient is used in tests to inject a pre-configured mqtt.Client.
func (p *Publisher) ConnectWithClient(c mqtt.Client) {
	p.client = c
}

// Publish sends one telemetry frame at QoS 0.
func (p *Publisher) Publish(frame any) error {
	data, err := protocol.Marshal(frame)
	if err != nil {
		return err
	}
	token := p.client.Publish(protocol.TelemetryTopic(p.cfg.VehicleID), 0, false, data)
	token.Wait()
	return token.Error()
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.client != nil {
		p.client.Disconnect(250)
	}
}
