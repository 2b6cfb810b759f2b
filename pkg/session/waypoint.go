package session

import (
	"math"
	"strconv"
	"strings"

	"github.com/daohu527/vconsole/pkg/shadow"
)

// Hemisphere is the radio selection next to a coordinate field.
type Hemisphere string

const (
	North Hemisphere = "N"
	South Hemisphere = "S"
	East  Hemisphere = "E"
	West  Hemisphere = "W"
)

// ParseHemisphere accepts the single letter or the full word, any case.
func ParseHemisphere(s string) Hemisphere {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NORTH":
		return North
	case "S", "SOUTH":
		return South
	case "E", "EAST":
		return East
	case "W", "WEST":
		return West
	}
	return Hemisphere(s)
}

// coordinatePrecision is the number of decimals shown in the fields.
const coordinatePrecision = 6

// WaypointFields is the operator-facing form: sign-stripped values plus
// hemisphere selections.
type WaypointFields struct {
	Latitude       string     `json:"lat"`
	Longitude      string     `json:"long"`
	LatHemisphere  Hemisphere `json:"lat_dir"`
	LongHemisphere Hemisphere `json:"long_dir"`
}

// Target is a validated go-to command.
type Target struct {
	Position shadow.Position
	// Latitude and Longitude are the signed decimal strings sent on the wire.
	Latitude  string
	Longitude string
}

// WaypointView is what the UI shows for the waypoint form.
type WaypointView struct {
	Pending       *shadow.Position `json:"pending,omitempty"`
	Fields        WaypointFields   `json:"fields"`
	DeleteVisible bool             `json:"delete_visible"`
	// Bounds, when set, is the single point the map view is fitted to.
	Bounds *shadow.Position `json:"bounds,omitempty"`
}

// WaypointEditor owns the single pending waypoint.
type WaypointEditor struct {
	pending       *shadow.Position
	fields        WaypointFields
	deleteVisible bool
	bounds        *shadow.Position
}

// OnMapClick places the pending waypoint at p and fills the form.
func (w *WaypointEditor) OnMapClick(p shadow.Position) WaypointFields {
	pos := p
	w.pending = &pos
	w.fields = WaypointFields{
		Latitude:       strconv.FormatFloat(math.Abs(p.Latitude), 'f', coordinatePrecision, 64),
		Longitude:      strconv.FormatFloat(math.Abs(p.Longitude), 'f', coordinatePrecision, 64),
		LatHemisphere:  North,
		LongHemisphere: East,
	}
	if p.Latitude < 0 {
		w.fields.LatHemisphere = South
	}
	if p.Longitude < 0 {
		w.fields.LongHemisphere = West
	}
	w.deleteVisible = true
	w.bounds = nil
	return w.fields
}

// OnConfirm validates the form and turns it into a signed target. Nothing
// changes on a validation failure.
func (w *WaypointEditor) OnConfirm(rawLat, rawLong string, latH, longH Hemisphere) (Target, error) {
	lat, latText, err := parseCoordinate("latitude", rawLat, 90, latH, North, South)
	if err != nil {
		return Target{}, err
	}
	long, longText, err := parseCoordinate("longitude", rawLong, 180, longH, East, West)
	if err != nil {
		return Target{}, err
	}
	w.fields = WaypointFields{
		Latitude:       strings.TrimSpace(rawLat),
		Longitude:      strings.TrimSpace(rawLong),
		LatHemisphere:  latH,
		LongHemisphere: longH,
	}
	return Target{
		Position:  shadow.Position{Latitude: lat, Longitude: long},
		Latitude:  latText,
		Longitude: longText,
	}, nil
}

// Sent clears the pending waypoint once its command went out. The form and
// the delete affordance stay until the operator deletes the marker.
func (w *WaypointEditor) Sent() {
	w.pending = nil
}

// OnDelete clears the waypoint and the form, and fits the view to the
// vehicle position.
func (w *WaypointEditor) OnDelete(vehicle shadow.Position) {
	w.pending = nil
	w.fields = WaypointFields{}
	w.deleteVisible = false
	pos := vehicle
	w.bounds = &pos
}

// View returns a copy of the editor state.
func (w *WaypointEditor) View() WaypointView {
	v := WaypointView{Fields: w.fields, DeleteVisible: w.deleteVisible}
	if w.pending != nil {
		p := *w.pending
		v.Pending = &p
	}
	if w.bounds != nil {
		b := *w.bounds
		v.Bounds = &b
	}
	return v
}

func parseCoordinate(field, raw string, limit float64, h, positive, negative Hemisphere) (float64, string, error) {
	text := strings.TrimPrefix(strings.TrimSpace(raw), "+")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, "", &ValidationError{Field: field, Value: raw, Reason: "not a number"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "", &ValidationError{Field: field, Value: raw, Reason: "not a finite number"}
	}
	if v < 0 || strings.HasPrefix(text, "-") {
		return 0, "", &ValidationError{Field: field, Value: raw, Reason: "use the hemisphere selector instead of a sign"}
	}
	if v > limit {
		return 0, "", &ValidationError{Field: field, Value: raw, Reason: "out of range"}
	}
	switch h {
	case positive:
		return v, text, nil
	case negative:
		if v == 0 {
			return 0, text, nil
		}
		return -v, "-" + text, nil
	}
	return 0, "", &ValidationError{Field: field + " hemisphere", Value: string(h), Reason: "must be " + string(positive) + " or " + string(negative)}
}
