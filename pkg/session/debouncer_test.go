package session

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func button(s Source, p Phase) Edge { return Edge{Source: s, Phase: p} }
func key(code int, p Phase) Edge    { return Edge{Source: SourceKey, Key: code, Phase: p} }

func TestButtonTogglesOnPress(t *testing.T) {
	var d Debouncer

	dir, publish := d.OnEdge(button(SourceLeft, Down))
	assert.True(t, publish)
	assert.Equal(t, TurnLeft, dir)

	dir, publish = d.OnEdge(button(SourceLeft, Up))
	assert.False(t, publish)
	assert.Equal(t, TurnLeft, dir)

	dir, publish = d.OnEdge(button(SourceLeft, Down))
	assert.True(t, publish)
	assert.Equal(t, Idle, dir)
}

func TestButtonSwitchesDirection(t *testing.T) {
	var d Debouncer
	d.OnEdge(button(SourceForward, Down))

	dir, publish := d.OnEdge(button(SourceBackward, Down))
	assert.True(t, publish)
	assert.Equal(t, Backward, dir)
}

func TestButtonIdleIffPressCountEven(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sources := []Source{SourceLeft, SourceRight, SourceForward, SourceBackward}

	for trial := 0; trial < 200; trial++ {
		src := sources[rng.Intn(len(sources))]
		var d Debouncer
		downs := 0
		for i := rng.Intn(20); i > 0; i-- {
			p := Phase(rng.Intn(2))
			if p == Down {
				downs++
			}
			d.OnEdge(button(src, p))
		}
		assert.Equal(t, downs%2 == 0, d.Direction() == Idle, "trial %d: %d presses", trial, downs)
	}
}

func TestKeyPressAndHold(t *testing.T) {
	var d Debouncer

	dir, publish := d.OnEdge(key(KeyUp, Down))
	require.True(t, publish)
	assert.Equal(t, Forward, dir)
	assert.Equal(t, KeyUp, d.PressedKey())

	// key repeat
	_, publish = d.OnEdge(key(KeyUp, Down))
	assert.False(t, publish)

	dir, publish = d.OnEdge(key(KeyUp, Up))
	assert.True(t, publish)
	assert.Equal(t, Idle, dir)
	assert.Zero(t, d.PressedKey())
}

func TestKeySuppressesOtherArrowsWhileHeld(t *testing.T) {
	var d Debouncer
	d.OnEdge(key(KeyLeft, Down))

	dir, publish := d.OnEdge(key(KeyRight, Down))
	assert.False(t, publish)
	assert.Equal(t, TurnLeft, dir)

	// any arrow release stops, but the held key stays latched
	dir, publish = d.OnEdge(key(KeyRight, Up))
	assert.True(t, publish)
	assert.Equal(t, Idle, dir)
	assert.Equal(t, KeyLeft, d.PressedKey())

	_, publish = d.OnEdge(key(KeyDown, Down))
	assert.False(t, publish)

	d.OnEdge(key(KeyLeft, Up))
	dir, publish = d.OnEdge(key(KeyDown, Down))
	assert.True(t, publish)
	assert.Equal(t, Backward, dir)
}

func TestKeyDownDoesNotToggle(t *testing.T) {
	var d Debouncer
	d.OnEdge(button(SourceForward, Down))

	dir, publish := d.OnEdge(key(KeyUp, Down))
	assert.True(t, publish)
	assert.Equal(t, Forward, dir)
}

func TestKeyBalancedSequences(t *testing.T) {
	tests := []struct {
		name  string
		edges []Phase
		want  Direction
	}{
		{"press", []Phase{Down}, TurnRight},
		{"press release", []Phase{Down, Up}, Idle},
		{"twice", []Phase{Down, Up, Down, Up}, Idle},
		{"repeat then release", []Phase{Down, Down, Down, Up}, Idle},
		{"release then press", []Phase{Up, Down}, TurnRight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Debouncer
			for _, p := range tt.edges {
				d.OnEdge(key(KeyRight, p))
			}
			assert.Equal(t, tt.want, d.Direction())
		})
	}
}

func TestNonArrowKeyIgnored(t *testing.T) {
	var d Debouncer
	_, publish := d.OnEdge(key(65, Down))
	assert.False(t, publish)
	_, publish = d.OnEdge(key(65, Up))
	assert.False(t, publish)
	assert.Zero(t, d.PressedKey())
}

func TestTickAndForceIdle(t *testing.T) {
	var d Debouncer
	_, publish := d.Tick()
	assert.False(t, publish)

	d.OnEdge(key(KeyLeft, Down))
	dir, publish := d.Tick()
	assert.True(t, publish)
	assert.Equal(t, TurnLeft, dir)

	assert.True(t, d.ForceIdle())
	assert.False(t, d.ForceIdle())
	assert.Equal(t, KeyLeft, d.PressedKey())

	d.Reset()
	assert.Zero(t, d.PressedKey())
	dir, publish = d.OnEdge(key(KeyRight, Down))
	assert.True(t, publish)
	assert.Equal(t, TurnRight, dir)
}

func TestEdgeDirection(t *testing.T) {
	dir, ok := edgeDirection(button(SourceBackward, Down))
	assert.True(t, ok)
	assert.Equal(t, Backward, dir)

	dir, ok = edgeDirection(key(KeyUp, Up))
	assert.True(t, ok)
	assert.Equal(t, Forward, dir)

	_, ok = edgeDirection(key(65, Down))
	assert.False(t, ok)
}

func TestParseInput(t *testing.T) {
	src, err := ParseSource("Forward")
	require.NoError(t, err)
	assert.Equal(t, SourceForward, src)
	_, err = ParseSource("sideways")
	assert.Error(t, err)

	p, err := ParsePhase("up")
	require.NoError(t, err)
	assert.Equal(t, Up, p)
	_, err = ParsePhase("held")
	assert.Error(t, err)
}

func TestDirectionCommand(t *testing.T) {
	assert.Equal(t, "stop", string(Idle.Command()))
	assert.Equal(t, "moveBackward", string(Backward.Command()))
	assert.Equal(t, "turnLeft", TurnLeft.String())
	text, err := Forward.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "forward", string(text))
}
