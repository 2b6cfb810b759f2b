package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/oplog"
	"github.com/daohu527/vconsole/pkg/protocol"
	"github.com/daohu527/vconsole/pkg/shadow"
	"github.com/daohu527/vconsole/pkg/transport"
)

type moveCall struct {
	Command protocol.Command
	Speed   float64
}

// fakeBackend records every request. Fields ending in Err make the matching
// request fail.
type fakeBackend struct {
	mu sync.Mutex

	moves    []moveCall
	gotos    [][2]string
	motors   []string
	controls []bool
	calls    []string
	opens    int
	closes   int
	users    uint

	moveErr    error
	gotoErr    error
	controlErr error

	// delay holds a command in flight before it is recorded.
	delay map[protocol.Command]time.Duration
}

func (f *fakeBackend) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeBackend) Move(_ context.Context, cmd protocol.Command, speed float64) (string, error) {
	if d := f.delay[cmd]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("move:" + string(cmd))
	f.moves = append(f.moves, moveCall{cmd, speed})
	return "ok", f.moveErr
}

func (f *fakeBackend) GoToCoordinates(_ context.Context, lat, long string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("goto")
	f.gotos = append(f.gotos, [2]string{lat, long})
	if f.gotoErr != nil {
		return "", f.gotoErr
	}
	return "Robot moving to (" + lat + ", " + long + ")", nil
}

func (f *fakeBackend) SwitchMotor(_ context.Context, motor string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("motor")
	f.motors = append(f.motors, motor)
	return "Switched to " + motor, nil
}

func (f *fakeBackend) RequestLiveControl(_ context.Context, enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("control")
	f.controls = append(f.controls, enable)
	return f.controlErr
}

func (f *fakeBackend) OpenWindow(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("open")
	f.opens++
	return nil
}

func (f *fakeBackend) CloseWindow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close")
	f.closes++
}

func (f *fakeBackend) NumUsers(context.Context) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, nil
}

func (f *fakeBackend) moveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moves)
}

func (f *fakeBackend) lastMove() moveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moves[len(f.moves)-1]
}

func (f *fakeBackend) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func serverError(cmd string) error {
	return &transport.TransportError{Command: cmd, Status: 500, Err: errors.New("boom")}
}

// newTestSession returns a session whose posts and requests run inline.
func newTestSession(t *testing.T, b *fakeBackend) *Session {
	t.Helper()
	s := New(Config{ID: "test", DefaultSpeed: 50}, b,
		shadow.NewStore(shadow.VehicleSnapshot{Position: shadow.DefaultPosition}),
		oplog.New(100, log.NewNopLogger()), log.NewNopLogger())
	s.synchronous = true
	return s
}

func lastEntry(s *Session) oplog.Entry {
	entries := s.Log().Entries(1)
	if len(entries) == 0 {
		return oplog.Entry{}
	}
	return entries[0]
}

// fileLogger returns a debug-level JSON logger and a func reading back the
// lines it wrote.
func fileLogger(t *testing.T) (log.Logger, func() []string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.log")
	l := log.NewLogger(&log.Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	return l, func() []string {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		var lines []string
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		return lines
	}
}
