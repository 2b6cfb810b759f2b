package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/options"
)

// ConsoleOptions is the full configuration of the console daemon.
type ConsoleOptions struct {
	// SessionID overrides the generated session id.
	SessionID string `json:"session-id" mapstructure:"session-id"`

	Console *options.ConsoleOptions `json:"console" mapstructure:"console"`
	HTTP    *options.HttpOptions    `json:"http" mapstructure:"http"`
	MQTT    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	TLS     *options.TLSOptions     `json:"tls" mapstructure:"tls"`
	Journal *options.JournalOptions `json:"journal" mapstructure:"journal"`
	Video   *options.VideoOptions   `json:"video" mapstructure:"video"`
	Log     *log.Options            `json:"log" mapstructure:"log"`
}

func NewConsoleOptions() *ConsoleOptions {
	return &ConsoleOptions{
		Console: options.NewConsoleOptions(),
		HTTP:    options.NewHttpOptions("127.0.0.1:8080"),
		MQTT:    options.NewMqttOptions(),
		TLS:     options.NewTLSOptions(),
		Journal: options.NewJournalOptions(),
		Video:   options.NewVideoOptions(),
		Log:     log.NewOptions(),
	}
}

func (o *ConsoleOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.SessionID, "session-id", o.SessionID, "Session id sent to the backend. Generated when empty.")
	o.Console.AddFlags(fs)
	o.HTTP.AddFlags(fs)
	o.MQTT.AddFlags(fs)
	o.TLS.AddFlags(fs)
	o.Journal.AddFlags(fs)
	o.Video.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Validate aggregates the errors of every option group.
func (o *ConsoleOptions) Validate() error {
	var errs []error
	errs = append(errs, o.Console.Validate()...)
	errs = append(errs, o.HTTP.Validate()...)
	if o.Console.TelemetryMode == options.TelemetryMQTT {
		errs = append(errs, o.MQTT.Validate()...)
	}
	errs = append(errs, o.TLS.Validate()...)
	errs = append(errs, o.Journal.Validate()...)
	errs = append(errs, o.Video.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errors.Join(errs...)
}
