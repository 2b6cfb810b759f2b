package simulator

import (
	"math"
	"sync"

	"github.com/daohu527/vconsole/pkg/protocol"
	"github.com/daohu527/vconsole/pkg/shadow"
)

const (
	turnStep     = 5.0   // degrees per turn command
	moveStep     = 0.005 // degrees per forward/backward command
	navStep      = 0.001 // degrees per broadcast tick while navigating
	drainPerTick = 0.0005
	minVoltage   = 23.8
)

// Operational state labels reported in state frames.
const (
	StateIdle       = "idle"
	StateManual     = "manual"
	StateNavigating = "navigating"
)

// Replies for refused commands.
const (
	msgNotHolder  = "Live control not held"
	msgControlled = "Live control held by another console"
)

// vehicle is the simulated boat. All methods are safe for concurrent use.
type vehicle struct {
	mu sync.Mutex

	pos     shadow.Position
	heading float64
	voltage float64
	state   string
	motor   string
	target  *shadow.Position

	users  uint
	holder string
}

func newVehicle(start shadow.Position, voltage float64) *vehicle {
	return &vehicle{
		pos:     start,
		voltage: voltage,
		state:   StateIdle,
		motor:   protocol.MotorWaveGlider,
	}
}

// move applies one direction command from session id. It reports false
// when id does not hold live control.
func (v *vehicle) move(id string, cmd protocol.Command) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.holder == "" || v.holder != id {
		return false
	}
	v.target = nil
	switch cmd {
	case protocol.CommandTurnLeft:
		v.heading = normalizeHeading(v.heading - turnStep)
	case protocol.CommandTurnRight:
		v.heading = normalizeHeading(v.heading + turnStep)
	case protocol.CommandMoveForward:
		v.pos.Latitude += moveStep
		v.pos.Longitude += moveStep
	case protocol.CommandMoveBackward:
		v.pos.Latitude -= moveStep
		v.pos.Longitude -= moveStep
	}
	if cmd == protocol.CommandStop {
		v.state = StateIdle
	} else {
		v.state = StateManual
	}
	return true
}

func (v *vehicle) goTo(p shadow.Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.target = &p
	v.state = StateNavigating
}

func (v *vehicle) switchMotor(name string) {
	v.mu.Lock()
	v.motor = name
	v.mu.Unlock()
}

// requestControl grants control to id if nobody else holds it and reports
// whether the request was honoured. A release from a non-holder is a no-op.
func (v *vehicle) requestControl(id string, enable bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !enable {
		if v.holder == id {
			v.holder = ""
		}
		return true
	}
	if v.holder != "" && v.holder != id {
		return false
	}
	v.holder = id
	return true
}

func (v *vehicle) open() uint {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.users++
	return v.users
}

// close decrements the user count, never below zero, and releases control
// held by id.
func (v *vehicle) close(id string) uint {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.users > 0 {
		v.users--
	}
	if v.holder == id {
		v.holder = ""
	}
	return v.users
}

// step advances navigation and battery drain by one broadcast tick.
func (v *vehicle) step() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.voltage = math.Max(minVoltage, v.voltage-drainPerTick)
	if v.target == nil {
		return
	}
	dLat := v.target.Latitude - v.pos.Latitude
	dLong := v.target.Longitude - v.pos.Longitude
	if math.Abs(dLat) <= navStep && math.Abs(dLong) <= navStep {
		v.pos = *v.target
		v.target = nil
		v.state = StateIdle
		return
	}
	v.heading = normalizeHeading(math.Atan2(dLong, dLat) * 180 / math.Pi)
	v.pos.Latitude += clamp(dLat, navStep)
	v.pos.Longitude += clamp(dLong, navStep)
}

// frames returns the periodic telemetry frames for the current state.
func (v *vehicle) frames() []any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return []any{
		protocol.GPSFrame{Type: protocol.FrameGPS, Latitude: v.pos.Latitude, Longitude: v.pos.Longitude, Heading: v.heading},
		protocol.VoltageFrame{Type: protocol.FrameVoltage, Voltage: v.voltage},
		protocol.StateFrame{Type: protocol.FrameState, State: v.state},
		protocol.NumUsersFrame{Type: protocol.FrameNumUsers, NumUsers: v.users},
	}
}

func (v *vehicle) snapshot() (shadow.Position, float64, uint) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos, v.heading, v.users
}

func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

func clamp(d, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, d))
}
