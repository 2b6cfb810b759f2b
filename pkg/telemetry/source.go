// Package telemetry provides the ingestion sources that feed raw telemetry
// frames into a console session. Exactly one source runs per session,
// selected by configuration; all of them deliver the same JSON frames to a
// single Sink.
package telemetry

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/transport"
)

// Sink receives one raw telemetry frame.
type Sink func(raw []byte)

// Source delivers telemetry frames to sink until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

// SocketSource reads frames from the backend telemetry websocket.
type SocketSource struct {
	cfg    transport.SocketConfig
	logger log.Logger
}

// NewSocketSource creates a SocketSource. cfg.Channel defaults to "telemetry".
func NewSocketSource(cfg transport.SocketConfig, logger log.Logger) *SocketSource {
	if cfg.Channel == "" {
		cfg.Channel = "telemetry"
	}
	if logger == nil {
		logger = log.Std()
	}
	return &SocketSource{cfg: cfg, logger: logger}
}

func (s *SocketSource) Name() string { return "socket" }

// Run subscribes to the socket. Binary messages are not telemetry and are
// dropped.
func (s *SocketSource) Run(ctx context.Context, sink Sink) error {
	err := transport.Subscribe(ctx, s.cfg, func(mt int, data []byte) {
		if mt != websocket.TextMessage {
			s.logger.Debug("ignoring non-text telemetry message", "type", mt)
			return
		}
		sink(data)
	}, s.logger)
	if err != nil {
		return fmt.Errorf("telemetry socket: %w", err)
	}
	return nil
}
