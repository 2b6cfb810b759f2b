package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/daohu527/vconsole/pkg/shadow"
)

var _ IOptions = (*SimulatorOptions)(nil)

// SimulatorOptions configures the simulated vehicle backend.
type SimulatorOptions struct {
	StartLatitude  float64 `json:"start-latitude" mapstructure:"start-latitude"`
	StartLongitude float64 `json:"start-longitude" mapstructure:"start-longitude"`
	Voltage        float64 `json:"voltage" mapstructure:"voltage"`

	// PublishHz is the telemetry broadcast rate.
	PublishHz float64 `json:"publish-hz" mapstructure:"publish-hz"`
	// PublishMQTT also relays telemetry frames to the MQTT broker.
	PublishMQTT bool `json:"publish-mqtt" mapstructure:"publish-mqtt"`

	// VideoFile is streamed in ChunkSize pieces over the video socket.
	VideoFile     string        `json:"video-file" mapstructure:"video-file"`
	ChunkSize     int           `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkInterval time.Duration `json:"chunk-interval" mapstructure:"chunk-interval"`
}

func NewSimulatorOptions() *SimulatorOptions {
	return &SimulatorOptions{
		StartLatitude:  shadow.DefaultPosition.Latitude,
		StartLongitude: shadow.DefaultPosition.Longitude,
		Voltage:        24.4,
		PublishHz:      1,
		ChunkSize:      4096,
		ChunkInterval:  40 * time.Millisecond,
	}
}

func (o *SimulatorOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.PublishHz <= 0 || o.PublishHz > 50 {
		errs = append(errs, fmt.Errorf("sim.publish-hz %v is outside (0, 50]", o.PublishHz))
	}
	if o.StartLatitude < -90 || o.StartLatitude > 90 {
		errs = append(errs, fmt.Errorf("sim.start-latitude %v is outside [-90, 90]", o.StartLatitude))
	}
	if o.StartLongitude < -180 || o.StartLongitude > 180 {
		errs = append(errs, fmt.Errorf("sim.start-longitude %v is outside [-180, 180]", o.StartLongitude))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("sim.chunk-size must be positive"))
	}
	return errs
}

func (o *SimulatorOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Float64Var(&o.StartLatitude, "sim.start-latitude", o.StartLatitude, "Initial vehicle latitude.")
	fs.Float64Var(&o.StartLongitude, "sim.start-longitude", o.StartLongitude, "Initial vehicle longitude.")
	fs.Float64Var(&o.Voltage, "sim.voltage", o.Voltage, "Reported battery voltage.")
	fs.Float64Var(&o.PublishHz, "sim.publish-hz", o.PublishHz, "Telemetry broadcast rate.")
	fs.BoolVar(&o.PublishMQTT, "sim.publish-mqtt", o.PublishMQTT, "Also publish telemetry to the MQTT broker.")
	fs.StringVar(&o.VideoFile, "sim.video-file", o.VideoFile, "H.264 file streamed over the video socket.")
	fs.IntVar(&o.ChunkSize, "sim.chunk-size", o.ChunkSize, "Bytes per video frame message.")
	fs.DurationVar(&o.ChunkInterval, "sim.chunk-interval", o.ChunkInterval, "Delay between video frame messages.")
}
