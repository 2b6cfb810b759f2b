package app

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daohu527/vconsole/cmd/vsim/app/options"
	"github.com/daohu527/vconsole/pkg/log"
	genericoptions "github.com/daohu527/vconsole/pkg/options"
	"github.com/daohu527/vconsole/pkg/security"
	"github.com/daohu527/vconsole/pkg/shadow"
	"github.com/daohu527/vconsole/pkg/simulator"
)

const commandDesc = `vsim serves the vehicle backend API on a simulated boat: move and navigation
commands, the live control grant, presence counting, a telemetry socket and an
optional looped video stream. Telemetry can also be relayed to an MQTT broker.`

// NewSimulatorCommand creates the vsim command.
func NewSimulatorCommand(ctx context.Context) *cobra.Command {
	var configFile string
	opts := options.NewSimulatorOptions()
	cmd := &cobra.Command{
		Use:          "vsim",
		Short:        "Simulated vehicle backend",
		Long:         commandDesc,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := genericoptions.NewLoader("VSIM", configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := loader.Unmarshal(opts); err != nil {
				return fmt.Errorf("decode options: %w", err)
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			log.Init(opts.Log)
			return run(ctx, opts)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Read options from a YAML, JSON or TOML file.")
	opts.AddFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, opts *options.SimulatorOptions) error {
	logger := log.WithName("vsim")

	var publisher *simulator.Publisher
	if opts.Sim.PublishMQTT {
		var brokerTLS *tls.Config
		if files := opts.TLS.Files(); files.Enabled() {
			c, err := security.ClientTLSConfig(files)
			if err != nil {
				return err
			}
			brokerTLS = c
		}
		publisher = simulator.NewPublisher(simulator.PublisherConfig{
			BrokerURL: opts.MQTT.Broker,
			ClientID:  opts.MQTT.ClientID,
			Username:  opts.MQTT.Username,
			Password:  opts.MQTT.Password,
			VehicleID: opts.MQTT.VehicleID,
			TLS:       brokerTLS,
		}, logger)
		if err := publisher.Connect(); err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer publisher.Disconnect()
	}

	var serverTLS security.Files
	if files := opts.TLS.Files(); files.CertFile != "" {
		serverTLS = files
	}
	sim := simulator.New(simulator.Config{
		Addr:          opts.HTTP.Addr,
		TLS:           serverTLS,
		Start:         shadow.Position{Latitude: opts.Sim.StartLatitude, Longitude: opts.Sim.StartLongitude},
		Voltage:       opts.Sim.Voltage,
		PublishHz:     opts.Sim.PublishHz,
		VideoFile:     opts.Sim.VideoFile,
		ChunkSize:     opts.Sim.ChunkSize,
		ChunkInterval: opts.Sim.ChunkInterval,
	}, publisher, logger)

	logger.Info("simulator started", "addr", opts.HTTP.Addr, "mqtt", opts.Sim.PublishMQTT)
	err := sim.Run(ctx)
	logger.Info("simulator stopped")
	return err
}
