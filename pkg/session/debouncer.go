package session

import (
	"fmt"
	"strings"
)

// Source identifies where an input edge came from.
type Source int

const (
	SourceLeft Source = iota
	SourceRight
	SourceForward
	SourceBackward
	// SourceKey is a keyboard key; Edge.Key carries its code.
	SourceKey
)

// Phase is the edge polarity.
type Phase int

const (
	Down Phase = iota
	Up
)

// Arrow key codes.
const (
	KeyLeft  = 37
	KeyUp    = 38
	KeyRight = 39
	KeyDown  = 40
)

// Edge is one raw input transition.
type Edge struct {
	Source Source
	Key    int
	Phase  Phase
}

// ParseSource accepts left, right, forward, backward and key.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(s) {
	case "left":
		return SourceLeft, nil
	case "right":
		return SourceRight, nil
	case "forward":
		return SourceForward, nil
	case "backward":
		return SourceBackward, nil
	case "key":
		return SourceKey, nil
	}
	return 0, fmt.Errorf("unknown input source %q", s)
}

// ParsePhase accepts down and up.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(s) {
	case "down":
		return Down, nil
	case "up":
		return Up, nil
	}
	return 0, fmt.Errorf("unknown input phase %q", s)
}

func keyDirection(code int) (Direction, bool) {
	switch code {
	case KeyLeft:
		return TurnLeft, true
	case KeyRight:
		return TurnRight, true
	case KeyUp:
		return Forward, true
	case KeyDown:
		return Backward, true
	}
	return Idle, false
}

func buttonDirection(s Source) Direction {
	switch s {
	case SourceLeft:
		return TurnLeft
	case SourceRight:
		return TurnRight
	case SourceForward:
		return Forward
	case SourceBackward:
		return Backward
	}
	return Idle
}

// edgeDirection is the direction e asks for, if it names one.
func edgeDirection(e Edge) (Direction, bool) {
	if e.Source == SourceKey {
		return keyDirection(e.Key)
	}
	dir := buttonDirection(e.Source)
	return dir, dir != Idle
}

// Debouncer turns input edges into a direction. On-screen buttons toggle on
// press and ignore release; arrow keys are press-and-hold, and while one is
// held the other arrow keys are ignored.
type Debouncer struct {
	direction  Direction
	pressedKey int // 0 when no arrow key is held
}

// Direction returns the current direction.
func (d *Debouncer) Direction() Direction { return d.direction }

// PressedKey returns the held arrow key code, or 0.
func (d *Debouncer) PressedKey() int { return d.pressedKey }

// OnEdge applies e. When publish is true the caller must send the returned
// direction immediately.
func (d *Debouncer) OnEdge(e Edge) (dir Direction, publish bool) {
	if e.Source == SourceKey {
		return d.onKey(e.Key, e.Phase)
	}

	if e.Phase == Up {
		return d.direction, false
	}
	target := buttonDirection(e.Source)
	if target == d.direction {
		target = Idle
	}
	d.direction = target
	return d.direction, true
}

func (d *Debouncer) onKey(code int, phase Phase) (Direction, bool) {
	target, ok := keyDirection(code)
	if !ok {
		return d.direction, false
	}

	switch phase {
	case Down:
		if d.pressedKey != 0 {
			return d.direction, false
		}
		d.pressedKey = code
		d.direction = target
		return d.direction, true
	default:
		if code == d.pressedKey {
			d.pressedKey = 0
		}
		d.direction = Idle
		return Idle, true
	}
}

// Tick reports whether the current direction needs a keep-alive publish.
func (d *Debouncer) Tick() (Direction, bool) {
	return d.direction, d.direction != Idle
}

// ForceIdle resets the direction without touching the held key. It reports
// whether the direction changed.
func (d *Debouncer) ForceIdle() bool {
	changed := d.direction != Idle
	d.direction = Idle
	return changed
}

// Reset drops the direction and any held arrow key.
func (d *Debouncer) Reset() {
	d.direction = Idle
	d.pressedKey = 0
}
