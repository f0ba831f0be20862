// Package model holds the value types shared across the telemetry
// pipeline: samples produced by ingress drivers, the crank/wheel event
// counters consumed by the GATT encoders, and the small state machines
// that track connection and bike-client lifecycle.
package model

import (
	"errors"
	"time"
)

// BikeSample is one normalized reading from a bike ingress driver.
// Power and cadence are always present; speed is only populated for
// sources that natively report it (IC4/IC5).
type BikeSample struct {
	PowerW    uint16
	CadenceRPM uint16
	SpeedMps  float32
	HasSpeed  bool
	T         time.Time
}

// HrSample is a single heart-rate reading.
type HrSample struct {
	Bpm uint8
}

// CrankEvent is the 1/1024s-wrapped crank counter pair used by both
// CPS and CSC. Revolutions wraps at 2^16, LastEventTime wraps every
// ~64s; consumers must use WrapDelta16, never raw subtraction.
type CrankEvent struct {
	Revolutions    uint16
	LastEventTime  uint16 // 1/1024s units
}

// WheelEvent is the 32-bit-counter analogue of CrankEvent.
type WheelEvent struct {
	Revolutions   uint32
	LastEventTime uint16 // 1/1024s units
}

// CalibratedSample is the post dropout/calibrate/smooth snapshot fed
// to both the GATT encoders and the ANT+ broadcaster.
type CalibratedSample struct {
	PowerW     int32
	CadenceRPM uint16
	T          time.Time
}

// WrapDelta16 returns (b - a) mod 2^16, the correct delta for any
// 16-bit wrapping counter (crank revolutions, event-time tick, ANT+
// message sequence).
func WrapDelta16(a, b uint16) uint16 {
	return uint16(uint32(b) - uint32(a))
}

// WrapDelta32 is the 32-bit analogue, used for wheel revolutions.
func WrapDelta32(a, b uint32) uint32 {
	return b - a
}

// AdapterRoleKind tags the role an adapter plays in the topology.
type AdapterRoleKind int

const (
	RoleBike AdapterRoleKind = iota
	RoleServer
	RoleHeartRate
)

// AdapterRole is a tagged variant: at most one Bike role, 1..N Server
// roles, 0..1 HeartRate role. Validate with Roles.Check.
type AdapterRole struct {
	Kind      AdapterRoleKind
	Name      string
	IsPrimary bool // only meaningful for RoleServer
}

// Roles is the validated set of adapter roles for one process.
type Roles []AdapterRole

// ErrDuplicateBikeRole is returned when more than one Bike role is present.
var ErrDuplicateBikeRole = errors.New("model: at most one bike role is allowed")

// ErrDuplicateHeartRateRole is returned when more than one HeartRate role is present.
var ErrDuplicateHeartRateRole = errors.New("model: at most one heart-rate role is allowed")

// ErrNoServerRole is returned when no server role is configured.
var ErrNoServerRole = errors.New("model: at least one server role is required")

// ErrBikeReusedAsServer is returned when a single adapter is assigned
// both the Bike role and a Server role without the radio being
// declared multi-role-capable.
var ErrBikeReusedAsServer = errors.New("model: bike adapter cannot double as a server adapter unless multi-role-capable")

// Check validates the role set per spec.md §3's AdapterRole invariant.
// multiRoleCapable reports whether the radio shared between bike and server
// names has been probed as multi-role-capable.
func (r Roles) Check(multiRoleCapable func(adapterName string) bool) error {
	var bikeCount, hrCount, serverCount int
	var bikeName string
	bikeNameSet := false

	for _, role := range r {
		switch role.Kind {
		case RoleBike:
			bikeCount++
			bikeName = role.Name
			bikeNameSet = true
		case RoleHeartRate:
			hrCount++
		case RoleServer:
			serverCount++
		}
	}

	if bikeCount > 1 {
		return ErrDuplicateBikeRole
	}
	if hrCount > 1 {
		return ErrDuplicateHeartRateRole
	}
	if serverCount == 0 {
		return ErrNoServerRole
	}

	if bikeNameSet {
		for _, role := range r {
			if role.Kind == RoleServer && role.Name == bikeName {
				if multiRoleCapable == nil || !multiRoleCapable(bikeName) {
					return ErrBikeReusedAsServer
				}
			}
		}
	}

	return nil
}

// ConnectionState is the lifecycle of a single BLE peripheral
// connection. Transitions outside the table below are fatal.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

var validConnTransitions = map[ConnectionState][]ConnectionState{
	Disconnected:  {Connecting},
	Connecting:    {Connected, Disconnected},
	Connected:     {Disconnecting, Disconnected},
	Disconnecting: {Disconnected},
}

// ErrIllegalTransition is returned by ConnectionFSM.To for a transition
// not present in the table; spec.md calls this fatal.
var ErrIllegalTransition = errors.New("model: illegal connection state transition")

// ConnectionFSM tracks ConnectionState for one peripheral.
type ConnectionFSM struct {
	state ConnectionState
}

// NewConnectionFSM returns an FSM starting Disconnected.
func NewConnectionFSM() *ConnectionFSM {
	return &ConnectionFSM{state: Disconnected}
}

// State returns the current state.
func (f *ConnectionFSM) State() ConnectionState { return f.state }

// To attempts a transition, returning ErrIllegalTransition if not allowed.
func (f *ConnectionFSM) To(next ConnectionState) error {
	for _, allowed := range validConnTransitions[f.state] {
		if allowed == next {
			f.state = next
			return nil
		}
	}
	return ErrIllegalTransition
}

// BikeClientState extends ConnectionState with Reconnecting, used by
// beacon-type sources (Keiser) that never hold a persistent link.
type BikeClientState int

const (
	BikeDisconnected BikeClientState = iota
	BikeConnecting
	BikeConnected
	BikeDisconnecting
	BikeReconnecting
)

func (s BikeClientState) String() string {
	switch s {
	case BikeDisconnected:
		return "disconnected"
	case BikeConnecting:
		return "connecting"
	case BikeConnected:
		return "connected"
	case BikeDisconnecting:
		return "disconnecting"
	case BikeReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
