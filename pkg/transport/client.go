// Package transport is the send/receive boundary between a console session
// and the vehicle backend: HTTP POST requests for commands and the two
// websocket channels for telemetry and video.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/metrics"
	"github.com/daohu527/vconsole/pkg/protocol"
)

// TransportError reports a failed backend request. Status is zero when no
// HTTP response was received.
type TransportError struct {
	Command string
	Status  int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s failed: %d %v", e.Command, e.Status, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config holds the HTTP client configuration.
type Config struct {
	// BaseURL is the backend address, e.g. "http://127.0.0.1:5000".
	BaseURL string
	// SessionID is sent in protocol.HeaderSession on every request.
	SessionID string
	// Timeout bounds one request. Zero means no client-side timeout.
	Timeout time.Duration
	// TLS is used for https URLs when set.
	TLS *tls.Config
}

// Client issues backend commands.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger log.Logger

	// beacons tracks in-flight fire-and-forget requests.
	beacons sync.WaitGroup
}

// NewClient creates a Client for cfg.BaseURL.
func NewClient(cfg Config, logger log.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: backend url: %w", err)
	}
	if logger == nil {
		logger = log.Std()
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLS != nil {
		tr.TLSClientConfig = cfg.TLS
	}
	return &Client{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{Transport: tr, Timeout: cfg.Timeout},
		logger: logger.WithName("transport"),
	}, nil
}

// Move sends a direction command with a speed fraction in [0,1].
func (c *Client) Move(ctx context.Context, cmd protocol.Command, speed float64) (string, error) {
	body, err := protocol.MarshalRequest(protocol.MoveRequest{Command: cmd, Speed: speed})
	if err != nil {
		return "", err
	}
	return c.post(ctx, protocol.EndpointMove, string(cmd), "application/json", body)
}

// GoToCoordinates sends a one-shot navigation target as signed decimal strings.
func (c *Client) GoToCoordinates(ctx context.Context, lat, long string) (string, error) {
	body, err := protocol.MarshalRequest(protocol.GoToRequest{Latitude: lat, Longitude: long})
	if err != nil {
		return "", err
	}
	return c.post(ctx, protocol.EndpointGoTo, protocol.EndpointGoTo, "application/json", body)
}

// SwitchMotor selects the propulsion motor by name.
func (c *Client) SwitchMotor(ctx context.Context, motor string) (string, error) {
	return c.post(ctx, protocol.EndpointSwitchMotor, protocol.EndpointSwitchMotor, "text/plain", []byte(motor))
}

// RequestLiveControl asks the backend to grant or release exclusive control.
func (c *Client) RequestLiveControl(ctx context.Context, enable bool) error {
	body, err := protocol.Marshal(protocol.LiveControlRequest{Enable: enable})
	if err != nil {
		return err
	}
	_, err = c.post(ctx, protocol.EndpointLiveControl, protocol.EndpointLiveControl, "application/json", body)
	return err
}

// OpenWindow announces this session to the backend.
func (c *Client) OpenWindow(ctx context.Context) error {
	_, err := c.post(ctx, protocol.EndpointOpenWindow, protocol.EndpointOpenWindow, "", nil)
	return err
}

// CloseWindow announces the end of this session as a beacon: the request is
// started in the background and CloseWindow returns at once. Use Flush to
// give outstanding beacons a bounded chance to complete before exit.
func (c *Client) CloseWindow() {
	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()
		ctx := context.Background()
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
		if _, err := c.post(ctx, protocol.EndpointCloseWindow, protocol.EndpointCloseWindow, "", nil); err != nil {
			c.logger.Debug("close beacon not delivered", "error", err.Error())
		}
	}()
}

// Flush waits up to timeout for outstanding beacons. It reports whether all
// of them finished.
func (c *Client) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// NumUsers returns the backend's count of open console sessions.
func (c *Client) NumUsers(ctx context.Context) (uint, error) {
	text, err := c.post(ctx, protocol.EndpointNumUsers, protocol.EndpointNumUsers, "", nil)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return 0, &TransportError{Command: protocol.EndpointNumUsers, Status: http.StatusOK, Err: err}
	}
	return uint(n), nil
}

// Direction returns the vehicle heading in degrees.
func (c *Client) Direction(ctx context.Context) (float64, error) {
	text, err := c.post(ctx, protocol.EndpointGetDirection, protocol.EndpointGetDirection, "application/json", nil)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, &TransportError{Command: protocol.EndpointGetDirection, Status: http.StatusOK, Err: err}
	}
	return v, nil
}

// Coordinates returns the vehicle position.
func (c *Client) Coordinates(ctx context.Context) (protocol.Coordinates, error) {
	var out protocol.Coordinates
	text, err := c.post(ctx, protocol.EndpointGetCoordinates, protocol.EndpointGetCoordinates, "application/json", nil)
	if err != nil {
		return out, err
	}
	if err := protocol.Unmarshal([]byte(text), &out); err != nil {
		return out, &TransportError{Command: protocol.EndpointGetCoordinates, Status: http.StatusOK, Err: err}
	}
	return out, nil
}

// post sends one request and returns the response body as text. Non-2xx
// replies become a *TransportError carrying the body as its message.
func (c *Client) post(ctx context.Context, endpoint, command, contentType string, body []byte) (string, error) {
	start := time.Now()
	text, err := c.do(ctx, endpoint, command, contentType, body)

	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.CommandSentTotal.WithLabelValues(command, status).Inc()
	metrics.CommandLatency.WithLabelValues(command).Observe(time.Since(start).Seconds())
	return text, err
}

func (c *Client) do(ctx context.Context, endpoint, command, contentType string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(endpoint).String(), bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Command: command, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cfg.SessionID != "" {
		req.Header.Set(protocol.HeaderSession, c.cfg.SessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Command: command, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransportError{Command: command, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &TransportError{Command: command, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	return string(data), nil
}
