// Package video receives encoded frames from the backend video socket and
// hands them, uninterpreted, to a Decoder.
package video

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/metrics"
	"github.com/daohu527/vconsole/pkg/transport"
)

// Decoder consumes raw encoded frames. Implementations live outside the
// console; frame contents are opaque here.
type Decoder interface {
	Decode(frame []byte) error
	Close() error
}

// Discard drops every frame.
type Discard struct{}

func (Discard) Decode([]byte) error { return nil }
func (Discard) Close() error        { return nil }

// FileRecorder appends every frame to a file, producing a raw elementary
// stream that external players can open.
type FileRecorder struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileRecorder opens path for appending, creating it if needed.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("video recorder: %w", err)
	}
	return &FileRecorder{f: f}, nil
}

func (r *FileRecorder) Decode(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.f.Write(frame)
	return err
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// Receiver pumps frames from the video socket into a Decoder.
type Receiver struct {
	cfg     transport.SocketConfig
	decoder Decoder
	logger  log.Logger
}

// NewReceiver creates a Receiver. cfg.Channel defaults to "video".
func NewReceiver(cfg transport.SocketConfig, decoder Decoder, logger log.Logger) *Receiver {
	if cfg.Channel == "" {
		cfg.Channel = "video"
	}
	if decoder == nil {
		decoder = Discard{}
	}
	if logger == nil {
		logger = log.Std()
	}
	return &Receiver{cfg: cfg, decoder: decoder, logger: logger.WithName("video")}
}

// Run receives frames until ctx is cancelled, then closes the decoder.
// Decoder errors are logged and the frame is dropped.
func (r *Receiver) Run(ctx context.Context) error {
	defer func() {
		if err := r.decoder.Close(); err != nil {
			r.logger.Error(err, "closing decoder")
		}
	}()

	return transport.Subscribe(ctx, r.cfg, func(mt int, data []byte) {
		if mt != websocket.BinaryMessage {
			return
		}
		metrics.VideoFramesTotal.Inc()
		metrics.VideoBytesTotal.Add(float64(len(data)))
		if err := r.decoder.Decode(data); err != nil {
			r.logger.Warn("decoder rejected frame", "error", err.Error(), "bytes", len(data))
		}
	}, r.logger)
}
