// Package simulator is a stand-in for the vehicle backend. It serves the
// command endpoints the console posts to, enforces live-control exclusivity
// across sessions, broadcasts telemetry over a websocket (and optionally
// MQTT) and streams a video file over a second websocket.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/protocol"
	"github.com/daohu527/vconsole/pkg/security"
	"github.com/daohu527/vconsole/pkg/shadow"
)

// Socket paths.
const (
	PathTelemetry = "/telemetry"
	PathVideo     = "/video"
)

// Config holds the simulator configuration.
type Config struct {
	Addr      string
	TLS       security.Files
	Start     shadow.Position
	Voltage   float64
	PublishHz float64

	VideoFile     string
	ChunkSize     int
	ChunkInterval time.Duration
}

// Simulator is the simulated vehicle backend.
type Simulator struct {
	cfg       Config
	vehicle   *vehicle
	telemetry *clients
	video     *clients
	publisher *Publisher
	logger    log.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New creates a Simulator. publisher may be nil.
func New(cfg Config, publisher *Publisher, logger log.Logger) *Simulator {
	if cfg.PublishHz <= 0 {
		cfg.PublishHz = 1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 40 * time.Millisecond
	}
	if logger == nil {
		logger = log.Std()
	}
	return &Simulator{
		cfg:       cfg,
		vehicle:   newVehicle(cfg.Start, cfg.Voltage),
		telemetry: newClients(),
		video:     newClients(),
		publisher: publisher,
		logger:    logger.WithName("simulator"),
		quit:      make(chan struct{}),
	}
}

// Router returns the backend routes.
func (s *Simulator) Router() http.Handler {
	r := mux.NewRouter()
	post := func(endpoint string, h http.HandlerFunc) {
		r.HandleFunc("/"+endpoint, h).Methods(http.MethodPost)
	}
	post(protocol.EndpointMove, s.move)
	post(protocol.EndpointGoTo, s.goTo)
	post(protocol.EndpointSwitchMotor, s.switchMotor)
	post(protocol.EndpointLiveControl, s.liveControl)
	post(protocol.EndpointOpenWindow, s.openWindow)
	post(protocol.EndpointCloseWindow, s.closeWindow)
	post(protocol.EndpointNumUsers, s.numUsers)
	post(protocol.EndpointGetDirection, s.direction)
	post(protocol.EndpointGetCoordinates, s.coordinates)

	r.HandleFunc(PathTelemetry, s.telemetrySocket).Methods(http.MethodGet)
	r.HandleFunc(PathVideo, s.videoSocket).Methods(http.MethodGet)
	return r
}

// Run serves the backend and broadcasts telemetry until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	defer s.stop()

	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	if s.cfg.TLS.Enabled() {
		tlsCfg, err := security.ServerTLSConfig(s.cfg.TLS)
		if err != nil {
			return fmt.Errorf("simulator tls config: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("simulator listening", "addr", s.cfg.Addr, "tls", s.cfg.TLS.Enabled())
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		s.stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.broadcastLoop(ctx)
		return nil
	})
	return g.Wait()
}

func (s *Simulator) stop() {
	s.quitOnce.Do(func() {
		close(s.quit)
		s.telemetry.closeAll()
		s.video.closeAll()
	})
}

func (s *Simulator) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.PublishHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.vehicle.step()
			for _, frame := range s.vehicle.frames() {
				s.emit(frame)
			}
		}
	}
}

// emit sends one frame to every telemetry subscriber and the MQTT relay.
func (s *Simulator) emit(frame any) {
	data, err := protocol.Marshal(frame)
	if err != nil {
		s.logger.Warn("encode frame", "error", err.Error())
		return
	}
	s.telemetry.broadcast(data)
	if s.publisher != nil {
		if err := s.publisher.Publish(frame); err != nil {
			s.logger.Warn("mqtt publish failed", "error", err.Error())
		}
	}
}

func (s *Simulator) emitTo(session string, frame any) {
	data, err := protocol.Marshal(frame)
	if err != nil {
		return
	}
	s.telemetry.sendTo(session, data)
}

// --- command endpoints ---

func sessionID(r *http.Request) string {
	if id := r.Header.Get(protocol.HeaderSession); id != "" {
		return id
	}
	return r.URL.Query().Get(protocol.QuerySession)
}

func reply(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, text)
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, 1<<16))
}

func (s *Simulator) move(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		reply(w, http.StatusBadRequest, err.Error())
		return
	}
	var req protocol.MoveRequest
	if err := protocol.UnmarshalRequest(body, &req); err != nil {
		reply(w, http.StatusBadRequest, "Invalid move request")
		return
	}
	if !req.Command.Valid() {
		reply(w, http.StatusBadRequest, fmt.Sprintf("Unknown command %q", req.Command))
		return
	}
	if !s.vehicle.move(sessionID(r), req.Command) {
		reply(w, http.StatusForbidden, msgNotHolder)
		return
	}
	reply(w, http.StatusOK, "Robot "+string(req.Command))
}

func (s *Simulator) goTo(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		reply(w, http.StatusBadRequest, err.Error())
		return
	}
	var req protocol.GoToRequest
	if err := protocol.UnmarshalRequest(body, &req); err != nil {
		reply(w, http.StatusBadRequest, "Invalid latitude and longitude")
		return
	}
	lat, latOK := parseCoordinate(req.Latitude, 90)
	long, longOK := parseCoordinate(req.Longitude, 180)
	switch {
	case !latOK && !longOK:
		reply(w, http.StatusBadRequest, "Invalid latitude and longitude")
		return
	case !latOK:
		reply(w, http.StatusBadRequest, "Invalid latitude")
		return
	case !longOK:
		reply(w, http.StatusBadRequest, "Invalid longitude")
		return
	}
	s.vehicle.goTo(shadow.Position{Latitude: lat, Longitude: long})
	reply(w, http.StatusOK, fmt.Sprintf("Robot moving to (%s, %s)", formatRounded(lat), formatRounded(long)))
}

func (s *Simulator) switchMotor(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		reply(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(string(body))
	if name != protocol.MotorWaveGlider && name != protocol.MotorHeavePlate {
		reply(w, http.StatusBadRequest, fmt.Sprintf("Unknown motor %q", name))
		return
	}
	s.vehicle.switchMotor(name)
	reply(w, http.StatusOK, "Switched to "+name)
}

func (s *Simulator) liveControl(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		reply(w, http.StatusBadRequest, "Missing session id")
		return
	}
	body, err := readBody(r)
	if err != nil {
		reply(w, http.StatusBadRequest, err.Error())
		return
	}
	var req protocol.LiveControlRequest
	if err := protocol.Unmarshal(body, &req); err != nil {
		reply(w, http.StatusBadRequest, "Invalid live control request")
		return
	}
	if !s.vehicle.requestControl(id, req.Enable) {
		s.logger.Info("live control denied", "session", id)
		s.emitTo(id, protocol.ControlDeniedFrame{Type: protocol.FrameControlDenied, Reason: "held by another console"})
		reply(w, http.StatusConflict, msgControlled)
		return
	}
	if req.Enable {
		s.logger.Info("live control granted", "session", id)
		reply(w, http.StatusOK, "Requesting live control...")
		return
	}
	reply(w, http.StatusOK, "Halting live control...")
}

func (s *Simulator) openWindow(w http.ResponseWriter, r *http.Request) {
	n := s.vehicle.open()
	s.logger.Debug("window opened", "session", sessionID(r), "users", n)
	s.emit(protocol.NumUsersFrame{Type: protocol.FrameNumUsers, NumUsers: n})
	reply(w, http.StatusOK, strconv.FormatUint(uint64(n), 10))
}

func (s *Simulator) closeWindow(w http.ResponseWriter, r *http.Request) {
	n := s.vehicle.close(sessionID(r))
	s.logger.Debug("window closed", "session", sessionID(r), "users", n)
	s.emit(protocol.NumUsersFrame{Type: protocol.FrameNumUsers, NumUsers: n})
	reply(w, http.StatusOK, strconv.FormatUint(uint64(n), 10))
}

func (s *Simulator) numUsers(w http.ResponseWriter, _ *http.Request) {
	_, _, n := s.vehicle.snapshot()
	reply(w, http.StatusOK, strconv.FormatUint(uint64(n), 10))
}

func (s *Simulator) direction(w http.ResponseWriter, _ *http.Request) {
	_, heading, _ := s.vehicle.snapshot()
	reply(w, http.StatusOK, strconv.FormatFloat(heading, 'f', -1, 64))
}

func (s *Simulator) coordinates(w http.ResponseWriter, _ *http.Request) {
	pos, _, _ := s.vehicle.snapshot()
	data, err := protocol.Marshal(protocol.Coordinates{Latitude: pos.Latitude, Longitude: pos.Longitude})
	if err != nil {
		reply(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// parseCoordinate accepts a signed decimal string within [-limit, limit].
func parseCoordinate(raw string, limit float64) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
		return 0, false
	}
	return v, true
}

func formatRounded(v float64) string {
	return strconv.FormatFloat(shadow.Round(v, 4), 'f', -1, 64)
}

// --- sockets ---

func (s *Simulator) upgrade(w http.ResponseWriter, r *http.Request, set *clients) *client {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("socket upgrade failed", "error", err.Error())
		return nil
	}
	c := &client{conn: conn, session: sessionID(r)}
	set.add(c)
	return c
}

// readUntilClosed discards client messages and returns once the peer is gone.
func readUntilClosed(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Simulator) telemetrySocket(w http.ResponseWriter, r *http.Request) {
	c := s.upgrade(w, r, s.telemetry)
	if c == nil {
		return
	}
	go func() {
		readUntilClosed(c)
		s.telemetry.remove(c)
		c.conn.Close()
	}()
}

func (s *Simulator) videoSocket(w http.ResponseWriter, r *http.Request) {
	c := s.upgrade(w, r, s.video)
	if c == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		readUntilClosed(c)
		close(done)
	}()
	go func() {
		defer func() {
			s.video.remove(c)
			c.conn.Close()
		}()
		if err := s.streamVideo(c, done); err != nil {
			s.logger.Warn("video stream stopped", "error", err.Error())
		}
	}()
}

// streamVideo sends the video file in ChunkSize binary messages, looping at
// EOF, until the client goes away or the simulator stops. Without a file it
// only holds the connection open.
func (s *Simulator) streamVideo(c *client, done <-chan struct{}) error {
	if s.cfg.VideoFile == "" {
		select {
		case <-done:
		case <-s.quit:
		}
		return nil
	}
	f, err := os.Open(s.cfg.VideoFile)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, s.cfg.ChunkSize)
	ticker := time.NewTicker(s.cfg.ChunkInterval)
	defer ticker.Stop()
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if werr := c.send(websocket.BinaryMessage, buf[:n]); werr != nil {
				return nil
			}
		}
		switch {
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		select {
		case <-done:
			return nil
		case <-s.quit:
			return nil
		case <-ticker.C:
		}
	}
}
