package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/options"
)

// SimulatorOptions is the configuration of the simulated vehicle backend.
type SimulatorOptions struct {
	Sim  *options.SimulatorOptions `json:"sim" mapstructure:"sim"`
	HTTP *options.HttpOptions      `json:"http" mapstructure:"http"`
	MQTT *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	TLS  *options.TLSOptions       `json:"tls" mapstructure:"tls"`
	Log  *log.Options              `json:"log" mapstructure:"log"`
}

func NewSimulatorOptions() *SimulatorOptions {
	return &SimulatorOptions{
		Sim:  options.NewSimulatorOptions(),
		HTTP: options.NewHttpOptions("127.0.0.1:5000"),
		MQTT: options.NewMqttOptions(),
		TLS:  options.NewTLSOptions(),
		Log:  log.NewOptions(),
	}
}

func (o *SimulatorOptions) AddFlags(fs *pflag.FlagSet) {
	o.Sim.AddFlags(fs)
	o.HTTP.AddFlags(fs)
	o.MQTT.AddFlags(fs)
	o.TLS.AddFlags(fs)
	o.Log.AddFlags(fs)
}

func (o *SimulatorOptions) Validate() error {
	var errs []error
	errs = append(errs, o.Sim.Validate()...)
	errs = append(errs, o.HTTP.Validate()...)
	if o.Sim.PublishMQTT {
		errs = append(errs, o.MQTT.Validate()...)
	}
	errs = append(errs, o.TLS.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errors.Join(errs...)
}
