package telemetry

import (
	"context"
	"time"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/protocol"
)

// Poller is the part of the backend client the poll fallback needs.
type Poller interface {
	Coordinates(ctx context.Context) (protocol.Coordinates, error)
	Direction(ctx context.Context) (float64, error)
	NumUsers(ctx context.Context) (uint, error)
}

// PollSource is the fallback used when no telemetry socket is available.
// Every period it queries the backend over HTTP and synthesizes the same
// frames the socket would have carried.
type PollSource struct {
	backend Poller
	period  time.Duration
	logger  log.Logger
}

func NewPollSource(backend Poller, period time.Duration, logger log.Logger) *PollSource {
	if period <= 0 {
		period = time.Second
	}
	if logger == nil {
		logger = log.Std()
	}
	return &PollSource{backend: backend, period: period, logger: logger.WithName("poll")}
}

func (p *PollSource) Name() string { return "poll" }

func (p *PollSource) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	p.poll(ctx, sink)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx, sink)
		}
	}
}

func (p *PollSource) poll(ctx context.Context, sink Sink) {
	pos, err := p.backend.Coordinates(ctx)
	if err != nil {
		p.logger.Warn("coordinates poll failed", "error", err.Error())
	} else if heading, err := p.backend.Direction(ctx); err != nil {
		p.logger.Warn("direction poll failed", "error", err.Error())
	} else {
		p.emit(sink, protocol.GPSFrame{
			Type:      protocol.FrameGPS,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Heading:   heading,
		})
	}

	n, err := p.backend.NumUsers(ctx)
	if err != nil {
		p.logger.Warn("user count poll failed", "error", err.Error())
		return
	}
	p.emit(sink, protocol.NumUsersFrame{Type: protocol.FrameNumUsers, NumUsers: n})
}

func (p *PollSource) emit(sink Sink, frame any) {
	data, err := protocol.Marshal(frame)
	if err != nil {
		p.logger.Error(err, "encoding synthesized frame")
		return
	}
	sink(data)
}
