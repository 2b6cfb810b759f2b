package session

import (
	"fmt"

	"github.com/daohu527/vconsole/pkg/protocol"
)

// Direction is the movement the operator currently requests. At most one
// non-Idle direction is active at a time.
type Direction int

const (
	Idle Direction = iota
	TurnLeft
	TurnRight
	Forward
	Backward
)

var directionNames = map[Direction]string{
	Idle:      "idle",
	TurnLeft:  "turnLeft",
	TurnRight: "turnRight",
	Forward:   "forward",
	Backward:  "backward",
}

func (d Direction) String() string {
	if s, ok := directionNames[d]; ok {
		return s
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	for dir, name := range directionNames {
		if name == string(b) {
			*d = dir
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", b)
}

// Command maps d to the backend move command.
func (d Direction) Command() protocol.Command {
	switch d {
	case TurnLeft:
		return protocol.CommandTurnLeft
	case TurnRight:
		return protocol.CommandTurnRight
	case Forward:
		return protocol.CommandMoveForward
	case Backward:
		return protocol.CommandMoveBackward
	}
	return protocol.CommandStop
}

// sentMessage is the operator log line written when d is published on an edge.
func (d Direction) sentMessage() string {
	switch d {
	case TurnLeft:
		return "Turn left command sent"
	case TurnRight:
		return "Turn right command sent"
	case Forward:
		return "Move forward command sent"
	case Backward:
		return "Move backward command sent"
	}
	return "Stop command sent"
}

// MotionIntent is what a move command carries.
type MotionIntent struct {
	Direction     Direction `json:"direction"`
	SpeedFraction float64   `json:"speed_fraction"`
}

// Slider bounds for the speed control.
const (
	SpeedMin     = 0
	SpeedMax     = 100
	DefaultSpeed = 50
)

func clampSpeed(v int) int {
	if v < SpeedMin {
		return SpeedMin
	}
	if v > SpeedMax {
		return SpeedMax
	}
	return v
}
