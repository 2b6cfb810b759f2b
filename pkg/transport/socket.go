package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/metrics"
	"github.com/daohu527/vconsole/pkg/protocol"
)

// ErrRetriesExhausted is returned by Subscribe when the reconnect budget runs
// out. The channel stays down afterwards.
var ErrRetriesExhausted = errors.New("transport: reconnect attempts exhausted")

// ReconnectPolicy bounds socket reconnection.
type ReconnectPolicy struct {
	Initial     time.Duration
	MaxInterval time.Duration
	// MaxAttempts is the number of consecutive failed attempts before giving
	// up. Zero retries forever.
	MaxAttempts uint64
}

// DefaultReconnectPolicy is used when a SocketConfig carries a zero policy.
var DefaultReconnectPolicy = ReconnectPolicy{
	Initial:     500 * time.Millisecond,
	MaxInterval: 10 * time.Second,
	MaxAttempts: 10,
}

func (p ReconnectPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	if p.Initial <= 0 {
		p = DefaultReconnectPolicy
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts)
	}
	return backoff.WithContext(b, ctx)
}

// Handler receives every socket message. messageType is
// websocket.TextMessage or websocket.BinaryMessage.
type Handler func(messageType int, data []byte)

// SocketConfig describes one backend socket channel.
type SocketConfig struct {
	// Channel names the socket in logs and metrics ("telemetry", "video").
	Channel   string
	URL       string
	SessionID string
	TLS       *tls.Config
	Reconnect ReconnectPolicy
	// ReadLimit caps a single message. Zero leaves the gorilla default.
	ReadLimit int64
	// OnState, when set, is told about every connect and disconnect.
	OnState func(connected bool)
}

// Subscribe connects to cfg.URL and hands every message to handle until ctx
// is cancelled. A dropped connection is redialled with exponential backoff;
// a successful connection resets the budget. Subscribe returns nil on
// cancellation and ErrRetriesExhausted when the budget is spent.
func Subscribe(ctx context.Context, cfg SocketConfig, handle Handler, logger log.Logger) error {
	if logger == nil {
		logger = log.Std()
	}
	logger = logger.WithName("socket").WithValues("channel", cfg.Channel)

	target, err := socketURL(cfg.URL, cfg.SessionID)
	if err != nil {
		return err
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  cfg.TLS,
	}
	header := http.Header{}
	if cfg.SessionID != "" {
		header.Set(protocol.HeaderSession, cfg.SessionID)
	}

	b := cfg.Reconnect.newBackOff(ctx)
	for {
		conn, _, err := dialer.DialContext(ctx, target, header)
		if err == nil {
			b.Reset()
			logger.Info("connected", "url", cfg.URL)
			setState(cfg, true)
			err = readLoop(ctx, conn, cfg.ReadLimit, handle)
			setState(cfg, false)
		}
		if ctx.Err() != nil {
			return nil
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			logger.Error(err, "giving up on socket")
			return fmt.Errorf("%s: %w: %v", cfg.Channel, ErrRetriesExhausted, err)
		}
		metrics.SocketReconnectsTotal.WithLabelValues(cfg.Channel).Inc()
		logger.Warn("socket down, retrying", "error", err.Error(), "wait", wait.String())

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, limit int64, handle Handler) error {
	if limit > 0 {
		conn.SetReadLimit(limit)
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(mt, data)
	}
}

func setState(cfg SocketConfig, connected bool) {
	metrics.SocketConnected.WithLabelValues(cfg.Channel).Set(metrics.Bool(connected))
	if cfg.OnState != nil {
		cfg.OnState(connected)
	}
}

func socketURL(raw, sessionID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("transport: socket url: %w", err)
	}
	if sessionID != "" {
		q := u.Query()
		q.Set(protocol.QuerySession, sessionID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
