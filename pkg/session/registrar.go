package session

import (
	"context"
)

// Presence announcements. The backend turns open/close into a counter; the
// console never retries a close, so a lost close under-counts at worst.

func (s *Session) announceOpen() {
	if s.state.opened {
		return
	}
	s.state.opened = true
	s.request(func(ctx context.Context) error {
		return s.backend.OpenWindow(ctx)
	}, func(err error) {
		if err != nil {
			s.oplog.Errorf("%s", failureText("Open window", err))
		}
	})
}

// announceClose fires the close beacon once. It does not wait for delivery.
func (s *Session) announceClose() {
	if !s.state.opened || s.state.closed {
		return
	}
	s.state.closed = true
	s.backend.CloseWindow()
}

// refreshUserCount polls the count independently of the telemetry socket.
func (s *Session) refreshUserCount() {
	var n uint
	s.request(func(ctx context.Context) (err error) {
		n, err = s.backend.NumUsers(ctx)
		return err
	}, func(err error) {
		if err != nil {
			s.logger.Warn("user count poll failed", "error", err.Error())
			return
		}
		s.fuser.SetUserCount(n)
	})
}

// AnnounceOpen sends the open announcement if it was not sent yet. Run does
// this itself; the method exists for callers that drive the loop manually.
func (s *Session) AnnounceOpen() error {
	return s.call(s.announceOpen)
}

// AnnounceClose fires the close beacon if the session was announced.
func (s *Session) AnnounceClose() error {
	return s.call(s.announceClose)
}

// RefreshUserCount polls the active user count now.
func (s *Session) RefreshUserCount() error {
	return s.call(s.refreshUserCount)
}
