package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the MQTT telemetry relay.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// VehicleID selects the telemetry topic v1/vehicle/{id}/telemetry.
	VehicleID string `json:"vehicle-id" mapstructure:"vehicle-id"`

	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	RetryInterval  time.Duration `json:"retry-interval" mapstructure:"retry-interval"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "tcp://127.0.0.1:1883",
		VehicleID:      "boat-001",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		RetryInterval:  5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateURL("mqtt.broker", o.Broker, "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts"); err != nil {
		errors = append(errors, err)
	}
	if o.VehicleID == "" {
		errors = append(errors, fmt.Errorf("mqtt.vehicle-id must not be empty"))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit Client ID (optional, usually generated).")
	fs.StringVar(&o.VehicleID, "mqtt.vehicle-id", o.VehicleID, "Vehicle whose telemetry topic is used.")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.DurationVar(&o.RetryInterval, "mqtt.retry-interval", o.RetryInterval, "Delay between MQTT connect retries.")
}
