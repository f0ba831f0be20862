package ingress

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"tinygo.org/x/bluetooth"

	"gymnasticon/internal/model"
)

// IC4/IC5 FTMS service and characteristic UUIDs (spec.md §4.1/§6).
var (
	ftmsServiceUUID         = bluetooth.New16BitUUID(0x1826)
	indoorBikeDataCharUUID  = bluetooth.New16BitUUID(0x2ad2)
)

// ic4Magic is the leading two bytes every Indoor Bike Data frame this
// driver accepts must start with.
var ic4Magic = [2]byte{0x44, 0x02}

// ParseIC4Frame decodes an Indoor Bike Data frame per spec.md §4.1/§8
// invariant 1: power == raw i16 LE at offset 6; cadence ==
// round(u16 LE at offset 4 / 2); speed (0.01 km/h units at offset 2)
// is converted to m/s and reported only when nonzero.
func ParseIC4Frame(frame []byte) (power int16, cadence uint16, speedMps float32, hasSpeed bool, err error) {
	if len(frame) < 8 || frame[0] != ic4Magic[0] || frame[1] != ic4Magic[1] {
		return 0, 0, 0, false, fmt.Errorf("%w: ic4 frame missing magic", model.ErrParseFrame)
	}

	rawSpeed := binary.LittleEndian.Uint16(frame[2:4])
	rawCadence := binary.LittleEndian.Uint16(frame[4:6])
	rawPower := int16(binary.LittleEndian.Uint16(frame[6:8]))

	cadence = uint16(math.Round(float64(rawCadence) / 2))
	power = rawPower

	if rawSpeed != 0 {
		kmh := float64(rawSpeed) * 0.01
		speedMps = float32(kmh / 3.6)
		hasSpeed = true
	}
	return power, cadence, speedMps, hasSpeed, nil
}

// IC4Driver ingests Indoor Bike Data notifications from an IC4/IC5
// console over BLE FTMS, applying the descriptor-write workaround for
// consoles that do not answer the spec-compliant subscribe handshake.
type IC4Driver struct {
	*base
	adapter *bluetooth.Adapter
	onLog   func(format string, args ...any)

	device     *bluetooth.Device
	connected  bool
}

// NewIC4Driver returns a driver bound to adapter; the target peripheral
// address is bound with SetAddress before Connect.
func NewIC4Driver(adapter *bluetooth.Adapter, onLog func(string, ...any)) *IC4Driver {
	if onLog == nil {
		onLog = func(string, ...any) {}
	}
	return &IC4Driver{base: newBase(""), adapter: adapter, onLog: onLog}
}

// Connect connects to and subscribes to the peripheral at d.address
// (bound via SetAddress; no scan is done here).
func (d *IC4Driver) Connect(ctx context.Context) error {
	addr, err := bluetooth.ParseMAC(d.address)
	if err != nil {
		return fmt.Errorf("%w: bad address %q: %v", model.ErrConnectFailed, d.address, err)
	}

	device, err := d.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: addr}}, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrConnectFailed, err)
	}
	d.device = &device

	services, err := device.DiscoverServices([]bluetooth.UUID{ftmsServiceUUID})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("%w: ftms service not found", model.ErrConnectFailed)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{indoorBikeDataCharUUID})
	if err != nil || len(chars) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("%w: indoor bike data characteristic not found", model.ErrConnectFailed)
	}
	char := chars[0]

	if err := char.EnableNotifications(d.onNotify); err != nil {
		// Workaround (spec.md §4.1): some consoles never ack the
		// portable subscribe path. Retry once by writing the CCCD
		// directly when the platform characteristic exposes that
		// capability; descriptors are not discovered here.
		d.onLog("ic4: EnableNotifications failed (%v), retrying via explicit CCCD write", err)
		if cw, ok := any(char).(cccdWriter); ok {
			if werr := cw.WriteClientCharacteristicConfig([]byte{0x01, 0x00}); werr != nil {
				_ = device.Disconnect()
				return fmt.Errorf("%w: %v", model.ErrConnectFailed, werr)
			}
		} else {
			_ = device.Disconnect()
			return fmt.Errorf("%w: %v", model.ErrConnectFailed, err)
		}
	}

	d.connected = true
	return nil
}

// cccdWriter is satisfied by platform characteristic implementations
// that expose a direct Client Characteristic Configuration descriptor
// write (UUID 0x2902), used as the IC4 compliance workaround.
type cccdWriter interface {
	WriteClientCharacteristicConfig([]byte) error
}

func (d *IC4Driver) onNotify(value []byte) {
	power, cadence, speed, hasSpeed, err := ParseIC4Frame(value)
	if err != nil {
		d.onLog("ic4: %v", err)
		return
	}
	d.emitMasked(clampPower(power), cadence, speed, hasSpeed, model.BikeSample{T: time.Now()})
}

func clampPower(p int16) uint16 {
	if p < 0 {
		return 0
	}
	return uint16(p)
}

// Disconnect tears down the BLE connection, idempotent.
func (d *IC4Driver) Disconnect() {
	if d.connected && d.device != nil {
		_ = d.device.Disconnect()
		d.connected = false
	}
	d.closeOnce()
}
