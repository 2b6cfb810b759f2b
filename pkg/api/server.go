// Package api serves the local console API: the HTTP surface the operator UI
// drives the session through, and a websocket stream pushing log entries and
// views back to it.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/metrics"
	"github.com/daohu527/vconsole/pkg/oplog"
	"github.com/daohu527/vconsole/pkg/security"
	"github.com/daohu527/vconsole/pkg/session"
	"github.com/daohu527/vconsole/pkg/shadow"
)

// Console is the part of a session the API drives.
type Console interface {
	View() session.View
	Log() *oplog.Log
	OnEdge(e session.Edge) error
	SetSpeed(v int) error
	ToggleControl() (bool, error)
	ClickMap(p shadow.Position) (session.WaypointFields, error)
	ConfirmWaypoint(rawLat, rawLong string, latH, longH session.Hemisphere) error
	DeleteWaypoint() error
	SwitchMotor(motor string) error
}

var _ Console = (*session.Session)(nil)

// Config holds the API server configuration.
type Config struct {
	Addr    string
	Timeout time.Duration
	// StreamPeriod is how often the current view is pushed to stream clients.
	StreamPeriod time.Duration
	TLS          security.Files
}

// Server is the local console API server.
type Server struct {
	cfg     Config
	console Console
	hub     *hub
	logger  log.Logger
}

// New creates a Server and subscribes it to the console's operator log.
func New(cfg Config, console Console, logger log.Logger) *Server {
	if cfg.StreamPeriod <= 0 {
		cfg.StreamPeriod = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Std()
	}
	logger = logger.WithName("api")
	s := &Server{
		cfg:     cfg,
		console: console,
		hub:     newHub(logger),
		logger:  logger,
	}
	console.Log().Register(func(e oplog.Entry) {
		s.hub.publish(StreamMessage{Kind: "log", Entry: &e})
	})
	return s
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withLogging)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/view", s.getView).Methods(http.MethodGet)
	v1.HandleFunc("/snapshot", s.getSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/log", s.getLog).Methods(http.MethodGet)
	v1.HandleFunc("/input", s.postInput).Methods(http.MethodPost)
	v1.HandleFunc("/speed", s.putSpeed).Methods(http.MethodPut)
	v1.HandleFunc("/control/toggle", s.toggleControl).Methods(http.MethodPost)
	v1.HandleFunc("/waypoint/click", s.clickMap).Methods(http.MethodPost)
	v1.HandleFunc("/waypoint/confirm", s.confirmWaypoint).Methods(http.MethodPost)
	v1.HandleFunc("/waypoint", s.deleteWaypoint).Methods(http.MethodDelete)
	v1.HandleFunc("/motor", s.switchMotor).Methods(http.MethodPost)
	v1.HandleFunc("/stream", s.stream).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: s.cfg.Timeout,
	}
	if s.cfg.TLS.Enabled() {
		tlsCfg, err := security.ServerTLSConfig(s.cfg.TLS)
		if err != nil {
			return fmt.Errorf("api tls config: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}

	go s.hub.run(ctx)
	go s.pushViews(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.cfg.Addr, "tls", s.cfg.TLS.Enabled())
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		errc <- err
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) pushViews(ctx context.Context) {
	t := time.NewTicker(s.cfg.StreamPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.hub.count() == 0 {
				continue
			}
			v := s.console.View()
			s.hub.publish(StreamMessage{Kind: "view", View: &v})
		}
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// --- handlers ---

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) getView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.console.View())
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.console.View().Vehicle)
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.console.Log().Entries(limit))
}

type inputRequest struct {
	Source string `json:"source"`
	Key    int    `json:"key"`
	Phase  string `json:"phase"`
}

func (s *Server) postInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if !decode(w, r, &req) {
		return
	}
	src, err := session.ParseSource(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	phase, err := session.ParsePhase(req.Phase)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.console.OnEdge(session.Edge{Source: src, Key: req.Key, Phase: phase}); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.console.View().Intent)
}

func (s *Server) putSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value *int `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	if err := s.console.SetSpeed(*req.Value); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"value": s.console.View().Speed})
}

func (s *Server) toggleControl(w http.ResponseWriter, _ *http.Request) {
	held, err := s.console.ToggleControl()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"control_held": held})
}

func (s *Server) clickMap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	fields, err := s.console.ClickMap(shadow.Position{Latitude: *req.Lat, Longitude: *req.Lng})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) confirmWaypoint(w http.ResponseWriter, r *http.Request) {
	var req session.WaypointFields
	if !decode(w, r, &req) {
		return
	}
	err := s.console.ConfirmWaypoint(req.Latitude, req.Longitude,
		session.ParseHemisphere(string(req.LatHemisphere)), session.ParseHemisphere(string(req.LongHemisphere)))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.console.View().Waypoint)
}

func (s *Server) deleteWaypoint(w http.ResponseWriter, _ *http.Request) {
	if err := s.console.DeleteWaypoint(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.console.View().Waypoint)
}

func (s *Server) switchMotor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.console.SwitchMotor(req.Name); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", "error", err.Error())
		return
	}
	v := s.console.View()
	data, err := jsonMessage(StreamMessage{Kind: "view", View: &v})
	if err == nil {
		err = write(conn, data)
	}
	if err != nil {
		conn.Close()
		return
	}
	s.hub.add(conn)
	go s.hub.readPump(conn)
}
