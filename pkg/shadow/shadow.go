// Package shadow holds the console's replica of the vehicle state. The
// snapshot is immutable once published: writers build a modified copy and
// swap it in, so a reader always observes one coherent VehicleSnapshot.
package shadow

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Position is a signed decimal-degree coordinate, south and west negative.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// VehicleSnapshot is the last known vehicle state. Every field is replaced
// independently by the telemetry type that carries it.
type VehicleSnapshot struct {
	Position         Position  `json:"position"`
	Heading          float64   `json:"heading"`
	BatteryVoltage   float64   `json:"battery_voltage"`
	BatteryPercent   float64   `json:"battery_percent"`
	OperationalState string    `json:"operational_state"`
	ActiveUserCount  uint      `json:"active_user_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultPosition is shown until the first pose arrives.
var DefaultPosition = Position{Latitude: 37.2284, Longitude: -80.4234}

// Store publishes VehicleSnapshot values.
type Store struct {
	mu  sync.Mutex // serialises writers
	cur atomic.Pointer[VehicleSnapshot]
}

// NewStore creates a Store seeded with initial.
func NewStore(initial VehicleSnapshot) *Store {
	s := &Store{}
	s.cur.Store(&initial)
	return s
}

// Load returns the current snapshot by value.
func (s *Store) Load() VehicleSnapshot {
	return *s.cur.Load()
}

// Update applies fn to a copy of the current snapshot and publishes the copy.
// Readers never see the copy before fn returns.
func (s *Store) Update(fn func(*VehicleSnapshot)) VehicleSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur.Load()
	fn(&next)
	next.UpdatedAt = time.Now()
	s.cur.Store(&next)
	return next
}

// Age reports how long ago the snapshot was last updated. A snapshot that
// was never updated has an age of zero.
func (s *Store) Age() time.Duration {
	at := s.cur.Load().UpdatedAt
	if at.IsZero() {
		return 0
	}
	return time.Since(at)
}

// BatteryPercent maps a pack voltage to a displayable charge percentage
// using the fixed linear model 62.5*v - 1487.5, clamped to [0, 100].
func BatteryPercent(voltage float64) float64 {
	p := 62.5*voltage - 1487.5
	return math.Max(0, math.Min(100, p))
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
