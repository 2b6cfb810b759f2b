package session

import (
	"context"
	"strings"

	"github.com/daohu527/vconsole/pkg/protocol"
	"github.com/daohu527/vconsole/pkg/shadow"
)

// OnEdge feeds one input edge to the debouncer.
func (s *Session) OnEdge(e Edge) error {
	return s.call(func() { s.onEdge(e) })
}

// SetSpeed moves the speed slider. The value takes effect on the next
// publish.
func (s *Session) SetSpeed(v int) error {
	return s.call(func() { s.state.Speed = clampSpeed(v) })
}

// ToggleControl requests or releases live control and returns the new
// local grant.
func (s *Session) ToggleControl() (bool, error) {
	var held bool
	err := s.call(func() { held = s.toggleControl() })
	return held, err
}

// ClickMap places the pending waypoint.
func (s *Session) ClickMap(p shadow.Position) (WaypointFields, error) {
	var fields WaypointFields
	err := s.call(func() { fields = s.state.Waypoints.OnMapClick(p) })
	return fields, err
}

// ConfirmWaypoint validates the form and sends a go-to command. Invalid
// input returns a *ValidationError and sends nothing.
func (s *Session) ConfirmWaypoint(rawLat, rawLong string, latH, longH Hemisphere) error {
	var verr error
	if err := s.call(func() { verr = s.confirmWaypoint(rawLat, rawLong, latH, longH) }); err != nil {
		return err
	}
	return verr
}

// DeleteWaypoint removes the pending waypoint.
func (s *Session) DeleteWaypoint() error {
	return s.call(func() { s.state.Waypoints.OnDelete(s.store.Load().Position) })
}

// SwitchMotor selects the propulsion motor.
func (s *Session) SwitchMotor(motor string) error {
	motor = strings.TrimSpace(motor)
	if motor == "" {
		return &ValidationError{Field: "motor", Value: motor, Reason: "empty"}
	}
	return s.call(func() {
		var reply string
		s.request(func(ctx context.Context) (err error) {
			reply, err = s.backend.SwitchMotor(ctx, motor)
			return err
		}, func(err error) {
			if err != nil {
				s.oplog.Errorf("%s", failureText("Switch motor", err))
				return
			}
			s.oplog.Received("%s", reply)
		})
	})
}

// OnTelemetry applies one telemetry frame. A *DecodeError is returned for a
// malformed frame; nothing changes in that case.
func (s *Session) OnTelemetry(raw []byte) error {
	var derr error
	if err := s.call(func() { derr = s.onTelemetry(raw) }); err != nil {
		return err
	}
	return derr
}

// --- loop side ---

// onEdge drops edges while control is released, so nothing pressed in that
// window is carried into the next grant.
func (s *Session) onEdge(e Edge) {
	if !s.state.Arbiter.Held() {
		if dir, ok := edgeDirection(e); ok && e.Phase == Down {
			s.oplog.Info("%s not sent: %s", dir.Command(), ErrControlNotHeld)
		}
		return
	}
	dir, publish := s.state.Debouncer.OnEdge(e)
	if publish {
		s.publishMove(dir, true)
	}
}

func (s *Session) tick() {
	if dir, publish := s.state.Debouncer.Tick(); publish {
		s.publishMove(dir, false)
	}
}

// publishMove sends dir with the speed read now. Nothing reaches the
// backend unless control is held. A failed move forces the intent to Idle.
func (s *Session) publishMove(dir Direction, edge bool) {
	if !s.state.Arbiter.Held() {
		return
	}
	cmd, speed := dir.Command(), s.speedFraction()
	if edge {
		s.oplog.Sent("%s", dir.sentMessage())
	}
	s.ordered(func(ctx context.Context) error {
		_, err := s.backend.Move(ctx, cmd, speed)
		return err
	}, func(err error) {
		if err == nil {
			return
		}
		s.oplog.Errorf("%s", failureText(string(cmd), err))
		s.state.Debouncer.ForceIdle()
	}, true)
}

func (s *Session) toggleControl() bool {
	if s.state.Arbiter.Held() {
		if s.state.Debouncer.ForceIdle() {
			s.publishMove(Idle, true)
		}
		s.oplog.Sent("Halting live control...")
	} else {
		s.state.Debouncer.Reset()
		s.oplog.Sent("Requesting live control...")
	}
	held := s.state.Arbiter.Toggle()

	s.ordered(func(ctx context.Context) error {
		return s.backend.RequestLiveControl(ctx, held)
	}, func(err error) {
		// The grant stays optimistic; only a control-denied frame revokes it.
		if err != nil {
			s.oplog.Errorf("%s", failureText("Live control request", err))
		}
	}, false)
	return held
}

func (s *Session) confirmWaypoint(rawLat, rawLong string, latH, longH Hemisphere) error {
	target, err := s.state.Waypoints.OnConfirm(rawLat, rawLong, latH, longH)
	if err != nil {
		s.oplog.Errorf("Coordinates not sent: %v", err)
		return err
	}
	s.oplog.Sent("Coordinates sent")
	s.state.Waypoints.Sent()

	var reply string
	s.ordered(func(ctx context.Context) (err error) {
		reply, err = s.backend.GoToCoordinates(ctx, target.Latitude, target.Longitude)
		return err
	}, func(err error) {
		if err != nil {
			s.oplog.Errorf("%s", failureText("Go to coordinates", err))
			s.state.Debouncer.ForceIdle()
			return
		}
		s.oplog.Received("%s", reply)
	}, false)
	return nil
}

func (s *Session) onTelemetry(raw []byte) error {
	notice, err := s.fuser.OnMessage(raw)
	if err != nil {
		return err
	}
	if notice == nil {
		return nil
	}

	switch notice.Type {
	case protocol.FrameMessage:
		s.oplog.Received("%s", notice.Text)
	case protocol.FrameControlDenied:
		if s.state.Arbiter.Deny() {
			s.state.Debouncer.ForceIdle()
			reason := notice.Text
			if reason == "" {
				reason = "held by another console"
			}
			s.oplog.Errorf("Live control denied: %s", reason)
		}
	}
	return nil
}
