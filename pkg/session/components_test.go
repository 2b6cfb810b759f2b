package session

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/protocol"
	"github.com/daohu527/vconsole/pkg/shadow"
)

// --- arbiter ---

func TestArbiterToggleIsInvolution(t *testing.T) {
	a := NewArbiter(log.NewNopLogger())
	start := a.Held()

	a.Toggle()
	assert.NotEqual(t, start, a.Held())
	a.Toggle()
	assert.Equal(t, start, a.Held())
}

func TestArbiterDeny(t *testing.T) {
	a := NewArbiter(log.NewNopLogger())
	assert.False(t, a.Deny())

	require.True(t, a.Toggle())
	assert.True(t, a.Deny())
	assert.False(t, a.Held())
}

func TestArbiterLogsRejectedTransition(t *testing.T) {
	logger, lines := fileLogger(t)
	a := NewArbiter(logger)

	a.fire(EventRelease)

	assert.False(t, a.Held())
	got := lines()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "grant transition failed")
	assert.Contains(t, got[0], `"event":"release"`)
	assert.Contains(t, got[0], `"state":"released"`)
}

// --- fuser ---

func newTestFuser() (*Fuser, *shadow.Store) {
	store := shadow.NewStore(shadow.VehicleSnapshot{Position: shadow.DefaultPosition})
	return NewFuser(store, log.NewNopLogger()), store
}

func TestFuserPoseRounding(t *testing.T) {
	f, store := newTestFuser()

	notice, err := f.OnMessage([]byte(`{"type":"gps","lat":37.228449,"long":-80.423412,"heading":123.456}`))
	require.NoError(t, err)
	assert.Nil(t, notice)

	got := store.Load()
	assert.Equal(t, shadow.Position{Latitude: 37.2284, Longitude: -80.4234}, got.Position)
	assert.Equal(t, 123.46, got.Heading)
}

func TestFuserBattery(t *testing.T) {
	tests := []struct {
		voltage float64
		percent float64
	}{
		{23.8, 0},
		{25.0, 100},
		{24.2, 25},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.voltage), func(t *testing.T) {
			f, store := newTestFuser()
			_, err := f.OnMessage([]byte(fmt.Sprintf(`{"type":"voltage","voltage":%v}`, tt.voltage)))
			require.NoError(t, err)
			assert.Equal(t, tt.voltage, store.Load().BatteryVoltage)
			assert.InDelta(t, tt.percent, store.Load().BatteryPercent, 1e-9)
		})
	}
}

func TestFuserFieldsAreIndependent(t *testing.T) {
	f, store := newTestFuser()

	for _, frame := range []string{
		`{"type":"state","state":"navigating"}`,
		`{"type":"num-users","num_users":4}`,
		`{"type":"gps","lat":1,"long":2,"heading":3}`,
		`{"type":"state","state":"idle"}`,
	} {
		_, err := f.OnMessage([]byte(frame))
		require.NoError(t, err)
	}

	got := store.Load()
	want := shadow.VehicleSnapshot{
		Position:         shadow.Position{Latitude: 1, Longitude: 2},
		Heading:          3,
		OperationalState: "idle",
		ActiveUserCount:  4,
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(shadow.VehicleSnapshot{}, "UpdatedAt")); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestFuserUnknownTypeIsDropped(t *testing.T) {
	f, store := newTestFuser()
	before := store.Load()

	notice, err := f.OnMessage([]byte(`{"type":"sonar","depth":12}`))
	assert.NoError(t, err)
	assert.Nil(t, notice)
	assert.Equal(t, before, store.Load())
}

func TestFuserMalformedFrames(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"lat":1}`,
		`{"type":"gps","lat":"north"}`,
		`{"type":"num-users","num_users":-1}`,
	} {
		t.Run(raw, func(t *testing.T) {
			f, store := newTestFuser()
			before := store.Load()

			_, err := f.OnMessage([]byte(raw))
			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, before, store.Load())
		})
	}
}

func TestFuserNotices(t *testing.T) {
	f, _ := newTestFuser()

	n, err := f.OnMessage([]byte(`{"type":"message","message":"Robot stop"}`))
	require.NoError(t, err)
	assert.Equal(t, &Notice{Type: protocol.FrameMessage, Text: "Robot stop"}, n)

	n, err = f.OnMessage([]byte(`{"type":"control-denied","reason":"held by 7f3a"}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.FrameControlDenied, n.Type)
}

func TestFuserAcceptsAliases(t *testing.T) {
	f, store := newTestFuser()
	_, err := f.OnMessage([]byte(`{"type":"battery","voltage":25}`))
	require.NoError(t, err)
	assert.Equal(t, 100.0, store.Load().BatteryPercent)
}

// --- waypoint editor ---

func TestWaypointHemisphereNormalization(t *testing.T) {
	var w WaypointEditor

	target, err := w.OnConfirm("37.5", "80.0", South, West)
	require.NoError(t, err)
	assert.Equal(t, -37.5, target.Position.Latitude)
	assert.Equal(t, -80.0, target.Position.Longitude)
	assert.Equal(t, "-37.5", target.Latitude)
	assert.Equal(t, "-80.0", target.Longitude)

	target, err = w.OnConfirm(" 37.5 ", "80.0", North, East)
	require.NoError(t, err)
	assert.Equal(t, "37.5", target.Latitude)
	assert.Equal(t, 80.0, target.Position.Longitude)
}

func TestWaypointClickConfirmRoundTrip(t *testing.T) {
	coords := []shadow.Position{
		{Latitude: 37.228449, Longitude: -80.423412},
		{Latitude: -33.868820, Longitude: 151.209296},
		{Latitude: 0, Longitude: 0},
		{Latitude: -0.000001, Longitude: 179.999999},
		{Latitude: 89.1234567, Longitude: -179.9876543},
	}
	for _, c := range coords {
		t.Run(fmt.Sprintf("%v,%v", c.Latitude, c.Longitude), func(t *testing.T) {
			var w WaypointEditor
			fields := w.OnMapClick(c)

			target, err := w.OnConfirm(fields.Latitude, fields.Longitude, fields.LatHemisphere, fields.LongHemisphere)
			require.NoError(t, err)
			assert.InDelta(t, c.Latitude, target.Position.Latitude, 5e-7)
			assert.InDelta(t, c.Longitude, target.Position.Longitude, 5e-7)

			// the wire string parses back to the same value
			lat, err := strconv.ParseFloat(target.Latitude, 64)
			require.NoError(t, err)
			assert.Equal(t, target.Position.Latitude, lat)
		})
	}
}

func TestWaypointClickFillsForm(t *testing.T) {
	var w WaypointEditor
	fields := w.OnMapClick(shadow.Position{Latitude: -12.5, Longitude: 45.25})

	assert.Equal(t, WaypointFields{
		Latitude:       "12.500000",
		Longitude:      "45.250000",
		LatHemisphere:  South,
		LongHemisphere: East,
	}, fields)
	v := w.View()
	assert.True(t, v.DeleteVisible)
	require.NotNil(t, v.Pending)
	assert.Equal(t, -12.5, v.Pending.Latitude)
}

func TestWaypointValidation(t *testing.T) {
	tests := []struct {
		name        string
		lat, long   string
		latH, longH Hemisphere
	}{
		{"non numeric", "abc", "80", North, East},
		{"empty", "", "80", North, East},
		{"signed", "-37.5", "80", North, East},
		{"latitude range", "90.5", "80", North, East},
		{"longitude range", "37", "181", North, East},
		{"nan", "NaN", "80", North, East},
		{"inf", "37", "Inf", North, East},
		{"bad hemisphere", "37", "80", East, East},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w WaypointEditor
			w.OnMapClick(shadow.Position{Latitude: 1, Longitude: 2})
			before := w.View()

			_, err := w.OnConfirm(tt.lat, tt.long, tt.latH, tt.longH)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, before, w.View())
		})
	}
}

func TestWaypointDelete(t *testing.T) {
	var w WaypointEditor
	w.OnMapClick(shadow.Position{Latitude: 10, Longitude: 20})

	vehicle := shadow.Position{Latitude: 37.2284, Longitude: -80.4234}
	w.OnDelete(vehicle)

	v := w.View()
	assert.Nil(t, v.Pending)
	assert.False(t, v.DeleteVisible)
	assert.Equal(t, WaypointFields{}, v.Fields)
	require.NotNil(t, v.Bounds)
	assert.Equal(t, vehicle, *v.Bounds)
}

func TestWaypointSentKeepsForm(t *testing.T) {
	var w WaypointEditor
	fields := w.OnMapClick(shadow.Position{Latitude: 10, Longitude: 20})
	_, err := w.OnConfirm(fields.Latitude, fields.Longitude, fields.LatHemisphere, fields.LongHemisphere)
	require.NoError(t, err)

	w.Sent()
	v := w.View()
	assert.Nil(t, v.Pending)
	assert.True(t, v.DeleteVisible)
	assert.Equal(t, fields, v.Fields)
}

func TestParseHemisphere(t *testing.T) {
	assert.Equal(t, South, ParseHemisphere("south"))
	assert.Equal(t, West, ParseHemisphere(" w "))
	assert.Equal(t, Hemisphere("Q"), ParseHemisphere("Q"))
}
