// Package protocol defines the wire messages exchanged between the console
// and the vehicle backend: HTTP request bodies, telemetry frames and the MQTT
// topic used when telemetry is relayed through a broker.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Command is the direction string carried by a move request.
type Command string

const (
	CommandStop         Command = "stop"
	CommandTurnLeft     Command = "turnLeft"
	CommandTurnRight    Command = "turnRight"
	CommandMoveForward  Command = "moveForward"
	CommandMoveBackward Command = "moveBackward"
)

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	switch c {
	case CommandStop, CommandTurnLeft, CommandTurnRight, CommandMoveForward, CommandMoveBackward:
		return true
	}
	return false
}

// Backend endpoint names, relative to the backend base URL.
const (
	EndpointMove           = "move"
	EndpointGoTo           = "goToCoordinates"
	EndpointSwitchMotor    = "switchMotor"
	EndpointLiveControl    = "reqLiveControl"
	EndpointOpenWindow     = "openWindow"
	EndpointCloseWindow    = "closeWindow"
	EndpointNumUsers       = "getNumUsers"
	EndpointGetDirection   = "getDirection"
	EndpointGetCoordinates = "getCoordinates"
)

// HeaderSession identifies the console session on every backend request.
// Socket subscriptions carry the same id in the QuerySession parameter.
const (
	HeaderSession = "X-Vconsole-Session"
	QuerySession  = "session"
)

// Known motor names accepted by switchMotor.
const (
	MotorWaveGlider = "Wave-Glider"
	MotorHeavePlate = "Heave-Plate"
)

// MoveRequest is the body of POST move.
type MoveRequest struct {
	Command Command `json:"command"`
	Speed   float64 `json:"speed"` // 0..1
}

// GoToRequest is the body of POST goToCoordinates. Coordinates are signed
// decimal strings, south and west negative.
type GoToRequest struct {
	Latitude  string `json:"lat_py"`
	Longitude string `json:"long_py"`
}

// LiveControlRequest is the body of POST reqLiveControl.
type LiveControlRequest struct {
	Enable bool `json:"enable"`
}

// Coordinates is the response of POST getCoordinates.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"long"`
}

// FrameType discriminates telemetry frames.
type FrameType string

const (
	FrameGPS           FrameType = "gps"
	FrameState         FrameType = "state"
	FrameVoltage       FrameType = "voltage"
	FrameMessage       FrameType = "message"
	FrameNumUsers      FrameType = "num-users"
	FrameControlDenied FrameType = "control-denied"
)

// Envelope carries only the discriminator of a telemetry frame.
type Envelope struct {
	Type FrameType `json:"type"`
}

// GPSFrame reports the vehicle pose.
type GPSFrame struct {
	Type      FrameType `json:"type"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"long"`
	Heading   float64   `json:"heading"` // degrees 0-360
}

// VoltageFrame reports the battery voltage.
type VoltageFrame struct {
	Type    FrameType `json:"type"`
	Voltage float64   `json:"voltage"`
}

// StateFrame carries a backend-defined operational state label.
type StateFrame struct {
	Type  FrameType `json:"type"`
	State string    `json:"state"`
}

// MessageFrame is a free-text message for the operator log.
type MessageFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
}

// NumUsersFrame reports the number of open console sessions.
type NumUsersFrame struct {
	Type     FrameType `json:"type"`
	NumUsers uint      `json:"num_users"`
}

// ControlDeniedFrame tells a client that its live-control grant was refused
// or revoked by the backend.
type ControlDeniedFrame struct {
	Type   FrameType `json:"type"`
	Reason string    `json:"reason,omitempty"`
}

// Marshal serialises a message to JSON bytes.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserialises JSON bytes into the target struct.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// MarshalRequest encodes a request body the way the backend expects it: a
// JSON array holding the single request object.
func MarshalRequest(v any) ([]byte, error) {
	return json.Marshal([]any{v})
}

// UnmarshalRequest decodes a body produced by MarshalRequest.
func UnmarshalRequest(data []byte, v any) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if len(items) != 1 {
		return fmt.Errorf("protocol: expected one request object, got %d", len(items))
	}
	return json.Unmarshal(items[0], v)
}

// --- MQTT topic helpers ---

const topicPrefix = "v1/vehicle"

// TelemetryTopic returns the topic a vehicle relays telemetry frames on.
//
//	v1/vehicle/{id}/telemetry
func TelemetryTopic(vehicleID string) string {
	return fmt.Sprintf("%s/%s/telemetry", topicPrefix, vehicleID)
}

// WildcardTelemetryTopic matches the telemetry topic of every vehicle.
func WildcardTelemetryTopic() string {
	return fmt.Sprintf("%s/+/telemetry", topicPrefix)
}
