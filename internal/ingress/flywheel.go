package ingress

import (
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"time"

	"tinygo.org/x/bluetooth"

	"gymnasticon/internal/model"
)

// Flywheel uses the Nordic UART service as its transport; the power
// measurement characteristic is the UART TX (notify) characteristic.
var (
	nordicUARTServiceUUID = bluetooth.NewUUID([16]byte{
		0x6e, 0x40, 0x00, 0x01, 0xb5, 0xa3, 0xf3, 0x93,
		0xe0, 0xa9, 0xe5, 0x0e, 0x24, 0xdc, 0xca, 0x9e,
	})
	nordicUARTTXUUID = bluetooth.NewUUID([16]byte{
		0x6e, 0x40, 0x00, 0x03, 0xb5, 0xa3, 0xf3, 0x93,
		0xe0, 0xa9, 0xe5, 0x0e, 0x24, 0xdc, 0xca, 0x9e,
	})
)

var flywheelNamePrefix = regexp.MustCompile(`(?i)^flywheel`)

// flywheelMagic is the leading byte every Flywheel UART notification
// this driver accepts must start with.
const flywheelMagic = 0xfe

// MatchesFlywheel reports whether an advertisement is a Flywheel bike,
// by local name prefix or by the caller-supplied address filter.
func MatchesFlywheel(localName string, addr string, addrFilter string) bool {
	if addrFilter != "" {
		return canonicalAddress(addr) == canonicalAddress(addrFilter)
	}
	return flywheelNamePrefix.MatchString(localName)
}

// ParseFlywheelFrame decodes a Flywheel UART notification: leading
// magic byte 0xfe, power u16 LE at offset 3, cadence u16 LE at offset
// 6. Frames with a different magic are ignored rather than rejected,
// since the UART channel also carries unrelated console chatter.
func ParseFlywheelFrame(frame []byte) (power uint16, cadence uint16, ok bool, err error) {
	if len(frame) < 8 {
		return 0, 0, false, fmt.Errorf("%w: flywheel frame too short", model.ErrParseFrame)
	}
	if frame[0] != flywheelMagic {
		return 0, 0, false, nil
	}
	power = binary.LittleEndian.Uint16(frame[3:5])
	cadence = binary.LittleEndian.Uint16(frame[6:8])
	return power, cadence, true, nil
}

// FlywheelDriver ingests power+cadence notifications from a Flywheel
// bike's Nordic UART TX characteristic.
type FlywheelDriver struct {
	*base
	adapter *bluetooth.Adapter
	onLog   func(format string, args ...any)

	device    *bluetooth.Device
	connected bool
}

// NewFlywheelDriver returns a driver bound to adapter.
func NewFlywheelDriver(adapter *bluetooth.Adapter, onLog func(string, ...any)) *FlywheelDriver {
	if onLog == nil {
		onLog = func(string, ...any) {}
	}
	return &FlywheelDriver{base: newBase(""), adapter: adapter, onLog: onLog}
}

// Connect connects to the peripheral at d.address (bound via
// SetAddress; no scan is done here) and subscribes to its UART TX
// characteristic.
func (d *FlywheelDriver) Connect(ctx context.Context) error {
	addr, err := bluetooth.ParseMAC(d.address)
	if err != nil {
		return fmt.Errorf("%w: bad address %q: %v", model.ErrConnectFailed, d.address, err)
	}
	device, err := d.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: addr}}, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrConnectFailed, err)
	}
	d.device = &device

	services, err := device.DiscoverServices([]bluetooth.UUID{nordicUARTServiceUUID})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("%w: uart service not found", model.ErrConnectFailed)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{nordicUARTTXUUID})
	if err != nil || len(chars) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("%w: uart tx characteristic not found", model.ErrConnectFailed)
	}
	if err := chars[0].EnableNotifications(d.onNotify); err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("%w: %v", model.ErrConnectFailed, err)
	}

	d.connected = true
	return nil
}

func (d *FlywheelDriver) onNotify(value []byte) {
	power, cadence, ok, err := ParseFlywheelFrame(value)
	if err != nil {
		d.onLog("flywheel: %v", err)
		return
	}
	if !ok {
		return
	}
	d.emitMasked(power, cadence, 0, false, model.BikeSample{T: time.Now()})
}

// Disconnect tears down the BLE connection, idempotent.
func (d *FlywheelDriver) Disconnect() {
	if d.connected && d.device != nil {
		_ = d.device.Disconnect()
		d.connected = false
	}
	d.closeOnce()
}
