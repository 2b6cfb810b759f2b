package session

import (
	"errors"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/metrics"
	"github.com/daohu527/vconsole/pkg/protocol"
	"github.com/daohu527/vconsole/pkg/shadow"
)

// frameAliases maps alternative discriminators onto the wire names.
var frameAliases = map[protocol.FrameType]protocol.FrameType{
	"pose":     protocol.FrameGPS,
	"battery":  protocol.FrameVoltage,
	"numUsers": protocol.FrameNumUsers,
}

// Notice is a decoded frame that concerns the session rather than the
// vehicle snapshot.
type Notice struct {
	Type protocol.FrameType
	Text string
}

// Fuser applies telemetry frames to the vehicle snapshot. Each frame type
// replaces only its own fields; the last frame of a type wins.
type Fuser struct {
	store  *shadow.Store
	logger log.Logger
}

func NewFuser(store *shadow.Store, logger log.Logger) *Fuser {
	if logger == nil {
		logger = log.Std()
	}
	return &Fuser{store: store, logger: logger.WithName("fuser")}
}

// OnMessage decodes raw and applies it. Frames of an unknown type are logged
// and dropped without error. message and control-denied frames do not touch
// the snapshot and are returned as a Notice.
func (f *Fuser) OnMessage(raw []byte) (*Notice, error) {
	var env protocol.Envelope
	if err := protocol.Unmarshal(raw, &env); err != nil {
		return nil, f.decodeError("", err)
	}
	if env.Type == "" {
		return nil, f.decodeError("", errors.New("missing type discriminator"))
	}
	typ := env.Type
	if alias, ok := frameAliases[typ]; ok {
		typ = alias
	}

	switch typ {
	case protocol.FrameGPS:
		var fr protocol.GPSFrame
		if err := protocol.Unmarshal(raw, &fr); err != nil {
			return nil, f.decodeError(typ, err)
		}
		f.store.Update(func(v *shadow.VehicleSnapshot) {
			v.Position = shadow.Position{
				Latitude:  shadow.Round(fr.Latitude, 4),
				Longitude: shadow.Round(fr.Longitude, 4),
			}
			v.Heading = shadow.Round(fr.Heading, 2)
		})

	case protocol.FrameVoltage:
		var fr protocol.VoltageFrame
		if err := protocol.Unmarshal(raw, &fr); err != nil {
			return nil, f.decodeError(typ, err)
		}
		f.store.Update(func(v *shadow.VehicleSnapshot) {
			v.BatteryVoltage = fr.Voltage
			v.BatteryPercent = shadow.BatteryPercent(fr.Voltage)
		})

	case protocol.FrameState:
		var fr protocol.StateFrame
		if err := protocol.Unmarshal(raw, &fr); err != nil {
			return nil, f.decodeError(typ, err)
		}
		f.store.Update(func(v *shadow.VehicleSnapshot) { v.OperationalState = fr.State })

	case protocol.FrameNumUsers:
		var fr protocol.NumUsersFrame
		if err := protocol.Unmarshal(raw, &fr); err != nil {
			return nil, f.decodeError(typ, err)
		}
		f.SetUserCount(fr.NumUsers)

	case protocol.FrameMessage:
		var fr protocol.MessageFrame
		if err := protocol.Unmarshal(raw, &fr); err != nil {
			return nil, f.decodeError(typ, err)
		}
		metrics.TelemetryFramesTotal.WithLabelValues(string(typ)).Inc()
		return &Notice{Type: typ, Text: fr.Message}, nil

	case protocol.FrameControlDenied:
		var fr protocol.ControlDeniedFrame
		if err := protocol.Unmarshal(raw, &fr); err != nil {
			return nil, f.decodeError(typ, err)
		}
		metrics.TelemetryFramesTotal.WithLabelValues(string(typ)).Inc()
		return &Notice{Type: typ, Text: fr.Reason}, nil

	default:
		f.logger.Warn("dropping telemetry frame of unknown type", "type", string(env.Type))
		return nil, nil
	}

	metrics.TelemetryFramesTotal.WithLabelValues(string(typ)).Inc()
	return nil, nil
}

// SetUserCount replaces the active user count.
func (f *Fuser) SetUserCount(n uint) {
	f.store.Update(func(v *shadow.VehicleSnapshot) { v.ActiveUserCount = n })
	metrics.ActiveUsers.Set(float64(n))
}

func (f *Fuser) decodeError(typ protocol.FrameType, err error) error {
	metrics.DecodeErrorsTotal.Inc()
	de := &DecodeError{Type: string(typ), Err: err}
	f.logger.Warn("dropping malformed telemetry frame", "error", de.Error())
	return de
}
