// Package session implements the teleoperation session protocol of the
// console: input debouncing with a keep-alive cadence, the live-control
// grant, telemetry fusion, presence announcements and the waypoint editor.
//
// A Session owns all of its mutable state on a single event-loop goroutine.
// Public methods post closures onto that loop; network requests run on
// their own goroutines and post their completions back. Readers get a
// coherent View that is swapped in after every loop step.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/oplog"
	"github.com/daohu527/vconsole/pkg/protocol"
	"github.com/daohu527/vconsole/pkg/shadow"
	"github.com/daohu527/vconsole/pkg/telemetry"
	"github.com/daohu527/vconsole/pkg/transport"
)

// Backend is the command side of the transport.
type Backend interface {
	Move(ctx context.Context, cmd protocol.Command, speed float64) (string, error)
	GoToCoordinates(ctx context.Context, lat, long string) (string, error)
	SwitchMotor(ctx context.Context, motor string) (string, error)
	RequestLiveControl(ctx context.Context, enable bool) error
	OpenWindow(ctx context.Context) error
	// CloseWindow must not block.
	CloseWindow()
	NumUsers(ctx context.Context) (uint, error)
}

// Subscription is a receiver that runs for the life of the session.
type Subscription interface {
	Run(ctx context.Context) error
}

// Config holds the session configuration.
type Config struct {
	ID string
	// RefreshPeriod is the keep-alive cadence of movement commands.
	RefreshPeriod time.Duration
	// UserPollInterval re-polls the active user count. Zero polls only once.
	UserPollInterval time.Duration
	// RequestTimeout bounds each backend request.
	RequestTimeout time.Duration
	// DefaultSpeed is the initial slider value, 0..100.
	DefaultSpeed int

	// Telemetry feeds frames into the fuser. Optional.
	Telemetry telemetry.Source
	// Video is detached together with Telemetry. Optional.
	Video Subscription
}

// SessionState is everything the loop owns.
type SessionState struct {
	Debouncer Debouncer
	Arbiter   *Arbiter
	Waypoints WaypointEditor
	Speed     int
	opened    bool
	closed    bool
}

// View is a coherent, read-only picture of the session for rendering.
type View struct {
	SessionID   string                 `json:"session_id"`
	Intent      MotionIntent           `json:"intent"`
	Speed       int                    `json:"speed"`
	PressedKey  int                    `json:"pressed_key,omitempty"`
	ControlHeld bool                   `json:"control_held"`
	Waypoint    WaypointView           `json:"waypoint"`
	Vehicle     shadow.VehicleSnapshot `json:"vehicle"`
}

// Session coordinates one console's teleoperation session.
type Session struct {
	cfg     Config
	backend Backend
	store   *shadow.Store
	fuser   *Fuser
	oplog   *oplog.Log
	logger  log.Logger

	state SessionState

	events  chan func()
	stopped chan struct{}
	sender  *sender
	view    atomic.Pointer[View]

	// synchronous runs posts and requests inline; used by tests.
	synchronous bool
	syncMu      sync.Mutex
}

// New creates a Session. store and opLog may be shared with other readers.
func New(cfg Config, backend Backend, store *shadow.Store, opLog *oplog.Log, logger log.Logger) *Session {
	if cfg.RefreshPeriod <= 0 {
		cfg.RefreshPeriod = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Std()
	}
	if store == nil {
		store = shadow.NewStore(shadow.VehicleSnapshot{Position: shadow.DefaultPosition})
	}
	if opLog == nil {
		opLog = oplog.New(oplog.DefaultCapacity, logger)
	}
	logger = logger.WithName("session").WithValues("session", cfg.ID)

	s := &Session{
		cfg:     cfg,
		backend: backend,
		store:   store,
		fuser:   NewFuser(store, logger),
		oplog:   opLog,
		logger:  logger,
		state: SessionState{
			Arbiter: NewArbiter(logger),
			Speed:   clampSpeed(cfg.DefaultSpeed),
		},
		events:  make(chan func(), 64),
		stopped: make(chan struct{}),
		sender:  newSender(),
	}
	s.publishView()
	return s
}

// Log returns the operator log.
func (s *Session) Log() *oplog.Log { return s.oplog }

// View returns the latest published view.
func (s *Session) View() View { return *s.view.Load() }

// Run drives the session until ctx is cancelled. It announces the session,
// starts the subscriptions and the refresh cadence, and on the way out
// announces the close before detaching the subscriptions.
func (s *Session) Run(ctx context.Context) error {
	subCtx, detach := context.WithCancel(context.Background())
	defer detach()

	go s.sender.run(s.execute)

	var g errgroup.Group
	if src := s.cfg.Telemetry; src != nil {
		g.Go(func() error {
			s.supervise("telemetry/"+src.Name(), src.Run(subCtx, s.telemetrySink))
			return nil
		})
	}
	if v := s.cfg.Video; v != nil {
		g.Go(func() error {
			s.supervise("video", v.Run(subCtx))
			return nil
		})
	}

	s.announceOpen()
	s.refreshUserCount()
	s.publishView()

	refresh := time.NewTicker(s.cfg.RefreshPeriod)
	defer refresh.Stop()
	var users <-chan time.Time
	if s.cfg.UserPollInterval > 0 {
		t := time.NewTicker(s.cfg.UserPollInterval)
		defer t.Stop()
		users = t.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case fn := <-s.events:
			fn()
		case <-refresh.C:
			s.tick()
		case <-users:
			s.refreshUserCount()
		}
		s.publishView()
	}

	// Completions of queued requests are dropped from here on.
	close(s.stopped)
	s.sender.close()
	s.sender.wait()

	s.teardown()
	detach()
	return g.Wait()
}

func (s *Session) supervise(name string, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		s.post(func() { s.oplog.Errorf("%s stopped: %v", name, err) })
	}
}

func (s *Session) telemetrySink(raw []byte) {
	s.post(func() { s.onTelemetry(raw) })
}

// teardown runs on the loop goroutine once the sender has drained. The stop
// is sent inline so that it reaches the backend before the close beacon.
func (s *Session) teardown() {
	if s.state.Debouncer.ForceIdle() && s.state.Arbiter.Held() {
		s.oplog.Sent("%s", Idle.sentMessage())
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		if _, err := s.backend.Move(ctx, protocol.CommandStop, s.speedFraction()); err != nil {
			s.logger.Warn("final stop failed", "error", err.Error())
		}
		cancel()
	}
	s.announceClose()
	s.publishView()
}

// --- loop plumbing ---

// post queues fn on the loop without waiting. After the loop exited fn is
// dropped.
func (s *Session) post(fn func()) {
	if s.synchronous {
		s.syncMu.Lock()
		defer s.syncMu.Unlock()
		fn()
		s.publishView()
		return
	}
	select {
	case s.events <- fn:
	case <-s.stopped:
	}
}

// call runs fn on the loop and waits for it.
func (s *Session) call(fn func()) error {
	if s.synchronous {
		s.post(fn)
		return nil
	}
	done := make(chan struct{})
	select {
	case s.events <- func() { fn(); close(done) }:
	case <-s.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrClosed
	}
}

// request runs send off the loop and delivers its result to done on the loop.
func (s *Session) request(send func(ctx context.Context) error, done func(error)) {
	run := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		defer cancel()
		return send(ctx)
	}
	if s.synchronous {
		err := run()
		if done != nil {
			done(err)
		}
		return
	}
	go func() {
		err := run()
		if done != nil {
			s.post(func() { done(err) })
		}
	}()
}

// ordered sends through the sender, behind every request pushed before it.
// Pass move for movement commands so a stale pending move can be replaced.
func (s *Session) ordered(send func(ctx context.Context) error, done func(error), move bool) {
	if s.synchronous {
		s.request(send, done)
		return
	}
	s.sender.push(sendJob{send: send, done: done, move: move})
}

func (s *Session) execute(j sendJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	err := j.send(ctx)
	cancel()
	if j.done != nil {
		s.post(func() { j.done(err) })
	}
}

func (s *Session) publishView() {
	v := View{
		SessionID: s.cfg.ID,
		Intent: MotionIntent{
			Direction:     s.state.Debouncer.Direction(),
			SpeedFraction: s.speedFraction(),
		},
		Speed:       s.state.Speed,
		PressedKey:  s.state.Debouncer.PressedKey(),
		ControlHeld: s.state.Arbiter.Held(),
		Waypoint:    s.state.Waypoints.View(),
		Vehicle:     s.store.Load(),
	}
	s.view.Store(&v)
}

func (s *Session) speedFraction() float64 {
	return float64(s.state.Speed) / SpeedMax
}

// failureText renders err as "<what> failed: <status> <error>".
func failureText(what string, err error) string {
	var te *transport.TransportError
	if errors.As(err, &te) {
		if te.Status == 0 {
			return fmt.Sprintf("%s failed: %v", what, te.Err)
		}
		return fmt.Sprintf("%s failed: %d %v", what, te.Status, te.Err)
	}
	return fmt.Sprintf("%s failed: %v", what, err)
}
