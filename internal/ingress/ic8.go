package ingress

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"tinygo.org/x/bluetooth"

	"gymnasticon/internal/calibrator"
	"gymnasticon/internal/model"
	"gymnasticon/internal/smoother"
)

var (
	cscServiceUUID        = bluetooth.New16BitUUID(0x1816)
	cscMeasurementUUID    = bluetooth.New16BitUUID(0x2a5b)
	ic8ResistanceUUID     = bluetooth.New16BitUUID(0xfff2)
)

const (
	cscFlagWheelRevData = 1 << 0
	cscFlagCrankRevData = 1 << 1
)

// ic8PowerSmootherAlpha is the driver-private EWMA coefficient applied
// to the estimated power before it leaves the driver (spec.md §4.1),
// distinct from the global C4 smoother applied downstream.
const ic8PowerSmootherAlpha = 0.25

// ParseIC8CSCFrame extracts cumulative crank revolutions and last
// crank event time from a CSC Measurement payload, per the flags byte
// layout shared with internal/gatt. Returns ok=false when the crank
// bit is clear.
func ParseIC8CSCFrame(frame []byte) (crankRevs uint16, crankEventTime1024 uint16, ok bool, err error) {
	if len(frame) < 1 {
		return 0, 0, false, fmt.Errorf("%w: empty csc frame", model.ErrParseFrame)
	}
	flags := frame[0]
	offset := 1
	if flags&cscFlagWheelRevData != 0 {
		offset += 6
	}
	if flags&cscFlagCrankRevData == 0 {
		return 0, 0, false, nil
	}
	if len(frame) < offset+4 {
		return 0, 0, false, fmt.Errorf("%w: csc frame too short for crank block", model.ErrParseFrame)
	}
	crankRevs = binary.LittleEndian.Uint16(frame[offset : offset+2])
	crankEventTime1024 = binary.LittleEndian.Uint16(frame[offset+2 : offset+4])
	return crankRevs, crankEventTime1024, true, nil
}

// ClampResistance scales a raw 0..100 resistance byte to the 0..1
// fraction used by EstimatePower.
func ClampResistance(raw uint8) float64 {
	r := raw
	if r > 100 {
		r = 100
	}
	return float64(r) / 100
}

// EstimatePower computes the IC8/Bowflex C6 estimated-power formula
// from instantaneous cadence (RPM) and resistance fraction (0..1):
// P = 0.35 · RPM^1.75 · (0.4 + 0.6·R).
func EstimatePower(rpm float64, resistance float64) float64 {
	if rpm <= 0 {
		return 0
	}
	return 0.35 * math.Pow(rpm, 1.75) * (0.4 + 0.6*resistance)
}

// crankCadenceTracker converts successive (revolutions, eventTime)
// pairs into instantaneous RPM using 16-bit wrap-safe deltas.
type crankCadenceTracker struct {
	have     bool
	lastRevs uint16
	lastTime uint16
}

// Update returns the RPM implied by the delta since the previous
// reading, or 0 with ok=false on the very first reading (no delta
// available yet) or when the event-time delta is zero (duplicate
// notification).
func (c *crankCadenceTracker) Update(revs, eventTime1024 uint16) (rpm float64, ok bool) {
	if !c.have {
		c.have = true
		c.lastRevs, c.lastTime = revs, eventTime1024
		return 0, false
	}
	dRevs := model.WrapDelta16(c.lastRevs, revs)
	dTime := model.WrapDelta16(c.lastTime, eventTime1024)
	c.lastRevs, c.lastTime = revs, eventTime1024
	if dTime == 0 {
		return 0, false
	}
	seconds := float64(dTime) / 1024
	rpm = float64(dRevs) / seconds * 60
	return rpm, true
}

// IC8Driver ingests CSC crank events plus vendor resistance
// notifications from an IC8/Bowflex C6 console, estimating power
// locally since the console reports neither wattage nor a power
// service.
type IC8Driver struct {
	*base
	adapter *bluetooth.Adapter
	onLog   func(format string, args ...any)

	device    *bluetooth.Device
	connected bool

	tracker    crankCadenceTracker
	cal        *calibrator.Calibrator
	smooth     *smoother.Smoother
	resistance float64
}

// NewIC8Driver returns a driver bound to adapter, applying cal to the
// estimated power before the driver-private EWMA smoother.
func NewIC8Driver(adapter *bluetooth.Adapter, cal *calibrator.Calibrator, onLog func(string, ...any)) *IC8Driver {
	if onLog == nil {
		onLog = func(string, ...any) {}
	}
	if cal == nil {
		cal = calibrator.New(1.0, 0.0)
	}
	return &IC8Driver{
		base:    newBase(""),
		adapter: adapter,
		onLog:   onLog,
		cal:     cal,
		smooth:  smoother.New(ic8PowerSmootherAlpha),
	}
}

// Connect connects to the peripheral at d.address (bound via
// SetAddress; no scan is done here) and subscribes to CSC Measurement
// and (when present) the vendor resistance characteristic.
func (d *IC8Driver) Connect(ctx context.Context) error {
	addr, err := bluetooth.ParseMAC(d.address)
	if err != nil {
		return fmt.Errorf("%w: bad address %q: %v", model.ErrConnectFailed, d.address, err)
	}
	device, err := d.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: addr}}, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrConnectFailed, err)
	}
	d.device = &device

	services, err := device.DiscoverServices([]bluetooth.UUID{cscServiceUUID})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("%w: csc service not found", model.ErrConnectFailed)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{cscMeasurementUUID, ic8ResistanceUUID})
	if err != nil || len(chars) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("%w: csc measurement characteristic not found", model.ErrConnectFailed)
	}

	var foundMeasurement bool
	for _, c := range chars {
		switch c.UUID() {
		case cscMeasurementUUID:
			if err := c.EnableNotifications(d.onCSCNotify); err != nil {
				_ = device.Disconnect()
				return fmt.Errorf("%w: %v", model.ErrConnectFailed, err)
			}
			foundMeasurement = true
		case ic8ResistanceUUID:
			if err := c.EnableNotifications(d.onResistanceNotify); err != nil {
				d.onLog("ic8: resistance characteristic present but notify failed: %v", err)
			}
		}
	}
	if !foundMeasurement {
		_ = device.Disconnect()
		return fmt.Errorf("%w: csc measurement characteristic not present", model.ErrConnectFailed)
	}

	d.connected = true
	return nil
}

func (d *IC8Driver) onResistanceNotify(value []byte) {
	if len(value) < 1 {
		return
	}
	d.resistance = ClampResistance(value[0])
}

func (d *IC8Driver) onCSCNotify(value []byte) {
	revs, eventTime, ok, err := ParseIC8CSCFrame(value)
	if err != nil {
		d.onLog("ic8: %v", err)
		return
	}
	if !ok {
		return
	}
	rpm, ok := d.tracker.Update(revs, eventTime)
	if !ok {
		return
	}
	cadence := uint16(math.Round(rpm))
	rawPower := EstimatePower(rpm, d.resistance)
	calibrated := d.cal.Apply(int32(math.Round(rawPower)))
	smoothed := d.smooth.Apply(calibrated)

	d.emitMasked(smoothed, cadence, 0, false, model.BikeSample{T: time.Now()})
}

// Disconnect tears down the BLE connection, idempotent.
func (d *IC8Driver) Disconnect() {
	if d.connected && d.device != nil {
		_ = d.device.Disconnect()
		d.connected = false
	}
	d.closeOnce()
}
