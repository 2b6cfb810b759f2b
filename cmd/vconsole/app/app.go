package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/daohu527/vconsole/cmd/vconsole/app/options"
	"github.com/daohu527/vconsole/pkg/api"
	"github.com/daohu527/vconsole/pkg/journal"
	"github.com/daohu527/vconsole/pkg/log"
	genericoptions "github.com/daohu527/vconsole/pkg/options"
	"github.com/daohu527/vconsole/pkg/oplog"
	"github.com/daohu527/vconsole/pkg/security"
	"github.com/daohu527/vconsole/pkg/session"
	"github.com/daohu527/vconsole/pkg/shadow"
	"github.com/daohu527/vconsole/pkg/telemetry"
	"github.com/daohu527/vconsole/pkg/transport"
	"github.com/daohu527/vconsole/pkg/video"
)

const (
	commandName = "vconsole"
	commandDesc = `vconsole is the operator console of a remotely piloted vehicle. It keeps one
teleoperation session with the vehicle backend, fuses its telemetry and serves
the console API used by the operator front end.`

	envPrefix = "VCONSOLE"
)

// NewConsoleCommand creates the vconsole root command.
func NewConsoleCommand(ctx context.Context) *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:          commandName,
		Short:        "Teleoperation console for a remote vehicle",
		Long:         commandDesc,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Read options from a YAML, JSON or TOML file.")
	cmd.AddCommand(newRunCommand(ctx, &configFile), newStatusCommand(ctx, &configFile))
	return cmd
}

func newRunCommand(ctx context.Context, configFile *string) *cobra.Command {
	opts := options.NewConsoleOptions()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open a session and serve the console API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := genericoptions.NewLoader(envPrefix, *configFile, cmd.Flags())
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
			loader.Watch(func(e fsnotify.Event) {
				level := loader.GetString("log.level")
				if log.SetLevel(level) {
					log.Info("log level reloaded", "file", e.Name, "level", level)
				}
			})

			return run(ctx, opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, opts *options.ConsoleOptions) error {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	logger := log.WithValues("session", opts.SessionID)

	clientTLS, err := clientTLSConfig(opts.TLS)
	if err != nil {
		return err
	}

	client, err := transport.NewClient(transport.Config{
		BaseURL:   opts.Console.BackendURL,
		SessionID: opts.SessionID,
		Timeout:   opts.Console.RequestTimeout,
		TLS:       clientTLS,
	}, logger)
	if err != nil {
		return err
	}

	opLog := oplog.New(opts.Console.LogCapacity, logger)
	if opts.Journal.Path != "" {
		j, err := journal.Open(opts.Journal.Path, opts.SessionID, logger)
		if err != nil {
			return err
		}
		defer j.Close()
		opLog.Register(j.Listener())
	}

	source, err := newTelemetrySource(opts, client, clientTLS, logger)
	if err != nil {
		return err
	}
	var receiver session.Subscription
	if opts.Console.VideoURL != "" {
		r, err := newVideoReceiver(opts, clientTLS, logger)
		if err != nil {
			return err
		}
		receiver = r
	}

	store := shadow.NewStore(shadow.VehicleSnapshot{Position: shadow.DefaultPosition})
	sess := session.New(session.Config{
		ID:               opts.SessionID,
		RefreshPeriod:    opts.Console.RefreshPeriod,
		UserPollInterval: opts.Console.UserPollInterval,
		RequestTimeout:   opts.Console.RequestTimeout,
		DefaultSpeed:     opts.Console.DefaultSpeed,
		Telemetry:        source,
		Video:            receiver,
	}, client, store, opLog, logger)

	// The API serves TLS only with a key pair; a CA alone just verifies the backend.
	var apiTLS security.Files
	if files := opts.TLS.Files(); files.CertFile != "" {
		apiTLS = files
	}
	srv := api.New(api.Config{
		Addr:    opts.HTTP.Addr,
		Timeout: opts.HTTP.Timeout,
		TLS:     apiTLS,
	}, sess, logger)

	logger.Info("console started", "backend", opts.Console.BackendURL, "telemetry", source.Name(), "api", opts.HTTP.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sess.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error { return srv.Run(gctx) })
	err = g.Wait()

	if !client.Flush(opts.Console.CloseFlushTimeout) {
		logger.Warn("close announcement still in flight at exit", "timeout", opts.Console.CloseFlushTimeout)
	}
	logger.Info("console stopped")
	return err
}

func clientTLSConfig(o *genericoptions.TLSOptions) (*tls.Config, error) {
	files := o.Files()
	if !files.Enabled() {
		return nil, nil
	}
	return security.ClientTLSConfig(files)
}

func newTelemetrySource(opts *options.ConsoleOptions, client *transport.Client, clientTLS *tls.Config, logger log.Logger) (telemetry.Source, error) {
	switch opts.Console.TelemetryMode {
	case genericoptions.TelemetrySocket:
		return telemetry.NewSocketSource(transport.SocketConfig{
			Channel:   "telemetry",
			URL:       opts.Console.TelemetryURL,
			SessionID: opts.SessionID,
			TLS:       clientTLS,
			Reconnect: reconnectPolicy(opts.Console),
		}, logger), nil
	case genericoptions.TelemetryMQTT:
		m := opts.MQTT
		return telemetry.NewMQTTSource(telemetry.MQTTConfig{
			BrokerURL:      m.Broker,
			ClientID:       m.ClientID,
			Username:       m.Username,
			Password:       m.Password,
			VehicleID:      m.VehicleID,
			KeepAlive:      m.KeepAlive,
			ConnectTimeout: m.ConnectTimeout,
			RetryInterval:  m.RetryInterval,
			TLS:            clientTLS,
		}, logger), nil
	case genericoptions.TelemetryPoll:
		return telemetry.NewPollSource(client, opts.Console.RefreshPeriod, logger), nil
	}
	return nil, fmt.Errorf("unknown telemetry mode %q", opts.Console.TelemetryMode)
}

func newVideoReceiver(opts *options.ConsoleOptions, clientTLS *tls.Config, logger log.Logger) (*video.Receiver, error) {
	var decoder video.Decoder = video.Discard{}
	if opts.Video.RecordPath != "" {
		rec, err := video.NewFileRecorder(opts.Video.RecordPath)
		if err != nil {
			return nil, err
		}
		decoder = rec
	}
	return video.NewReceiver(transport.SocketConfig{
		Channel:   "video",
		URL:       opts.Console.VideoURL,
		SessionID: opts.SessionID,
		TLS:       clientTLS,
		Reconnect: reconnectPolicy(opts.Console),
		ReadLimit: opts.Video.MaxFrameBytes,
	}, decoder, logger), nil
}

func reconnectPolicy(o *genericoptions.ConsoleOptions) transport.ReconnectPolicy {
	return transport.ReconnectPolicy{
		Initial:     o.ReconnectInitial,
		MaxInterval: o.ReconnectMaxInterval,
		MaxAttempts: o.ReconnectMaxAttempts,
	}
}
