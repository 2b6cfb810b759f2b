package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ConsoleOptions)(nil)

// Telemetry ingestion modes.
const (
	TelemetrySocket = "socket"
	TelemetryMQTT   = "mqtt"
	TelemetryPoll   = "poll"
)

// ConsoleOptions configures one teleoperation session.
type ConsoleOptions struct {
	// BackendURL is the base URL of the command/control HTTP API.
	BackendURL string `json:"backend-url" mapstructure:"backend-url"`
	// TelemetryURL is the telemetry websocket endpoint.
	TelemetryURL string `json:"telemetry-url" mapstructure:"telemetry-url"`
	// VideoURL is the video websocket endpoint. Empty disables video.
	VideoURL string `json:"video-url" mapstructure:"video-url"`

	// TelemetryMode is one of socket, mqtt or poll.
	TelemetryMode string `json:"telemetry-mode" mapstructure:"telemetry-mode"`

	RefreshPeriod     time.Duration `json:"refresh-period" mapstructure:"refresh-period"`
	UserPollInterval  time.Duration `json:"user-poll-interval" mapstructure:"user-poll-interval"`
	RequestTimeout    time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
	CloseFlushTimeout time.Duration `json:"close-flush-timeout" mapstructure:"close-flush-timeout"`

	// DefaultSpeed is the initial slider value, 0..100.
	DefaultSpeed int `json:"default-speed" mapstructure:"default-speed"`

	ReconnectInitial     time.Duration `json:"reconnect-initial" mapstructure:"reconnect-initial"`
	ReconnectMaxInterval time.Duration `json:"reconnect-max-interval" mapstructure:"reconnect-max-interval"`
	ReconnectMaxAttempts uint64        `json:"reconnect-max-attempts" mapstructure:"reconnect-max-attempts"`

	LogCapacity int `json:"log-capacity" mapstructure:"log-capacity"`
}

// NewConsoleOptions creates ConsoleOptions with default values.
func NewConsoleOptions() *ConsoleOptions {
	return &ConsoleOptions{
		BackendURL:           "http://127.0.0.1:5000",
		TelemetryURL:         "ws://127.0.0.1:5000/telemetry",
		VideoURL:             "",
		TelemetryMode:        TelemetrySocket,
		RefreshPeriod:        time.Second,
		UserPollInterval:     30 * time.Second,
		RequestTimeout:       5 * time.Second,
		CloseFlushTimeout:    2 * time.Second,
		DefaultSpeed:         50,
		ReconnectInitial:     500 * time.Millisecond,
		ReconnectMaxInterval: 10 * time.Second,
		ReconnectMaxAttempts: 10,
		LogCapacity:          500,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *ConsoleOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateURL("console.backend-url", o.BackendURL, "http", "https"); err != nil {
		errors = append(errors, err)
	}
	switch o.TelemetryMode {
	case TelemetrySocket:
		if err := ValidateURL("console.telemetry-url", o.TelemetryURL, "ws", "wss"); err != nil {
			errors = append(errors, err)
		}
	case TelemetryMQTT, TelemetryPoll:
	default:
		errors = append(errors, fmt.Errorf("console.telemetry-mode %q is not one of socket, mqtt, poll", o.TelemetryMode))
	}
	if o.VideoURL != "" {
		if err := ValidateURL("console.video-url", o.VideoURL, "ws", "wss"); err != nil {
			errors = append(errors, err)
		}
	}
	if o.RefreshPeriod <= 0 {
		errors = append(errors, fmt.Errorf("console.refresh-period must be positive"))
	}
	if o.DefaultSpeed < 0 || o.DefaultSpeed > 100 {
		errors = append(errors, fmt.Errorf("console.default-speed %d is outside 0..100", o.DefaultSpeed))
	}
	if o.ReconnectInitial <= 0 || o.ReconnectMaxInterval < o.ReconnectInitial {
		errors = append(errors, fmt.Errorf("console.reconnect-initial must be positive and not exceed console.reconnect-max-interval"))
	}

	return errors
}

// AddFlags adds flags for ConsoleOptions to the specified FlagSet.
func (o *ConsoleOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BackendURL, "console.backend-url", o.BackendURL, "Base URL of the vehicle backend HTTP API.")
	fs.StringVar(&o.TelemetryURL, "console.telemetry-url", o.TelemetryURL, "Telemetry websocket URL.")
	fs.StringVar(&o.VideoURL, "console.video-url", o.VideoURL, "Video websocket URL. Empty disables video.")
	fs.StringVar(&o.TelemetryMode, "console.telemetry-mode", o.TelemetryMode, "Telemetry ingestion: socket, mqtt or poll.")

	fs.DurationVar(&o.RefreshPeriod, "console.refresh-period", o.RefreshPeriod, "Keep-alive period for movement commands.")
	fs.DurationVar(&o.UserPollInterval, "console.user-poll-interval", o.UserPollInterval, "How often the active user count is polled. 0 polls only at startup.")
	fs.DurationVar(&o.RequestTimeout, "console.request-timeout", o.RequestTimeout, "Timeout of a single backend request.")
	fs.DurationVar(&o.CloseFlushTimeout, "console.close-flush-timeout", o.CloseFlushTimeout, "How long shutdown waits for the close announcement.")
	fs.IntVar(&o.DefaultSpeed, "console.default-speed", o.DefaultSpeed, "Initial speed slider value (0-100).")

	fs.DurationVar(&o.ReconnectInitial, "console.reconnect-initial", o.ReconnectInitial, "First socket reconnect delay.")
	fs.DurationVar(&o.ReconnectMaxInterval, "console.reconnect-max-interval", o.ReconnectMaxInterval, "Upper bound of the socket reconnect delay.")
	fs.Uint64Var(&o.ReconnectMaxAttempts, "console.reconnect-max-attempts", o.ReconnectMaxAttempts, "Consecutive failed reconnects before a channel gives up. 0 retries forever.")
	fs.IntVar(&o.LogCapacity, "console.log-capacity", o.LogCapacity, "Operator log entries kept in memory.")
}
