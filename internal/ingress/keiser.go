package ingress

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"gymnasticon/internal/model"
)

// KeiserBikeTimeout is the no-valid-beacon window after which the
// driver emits its terminal disconnect (spec.md §4.1).
const KeiserBikeTimeout = 60 * time.Second

var keiserNamePrefix = regexp.MustCompile(`(?i)^m3`)

// keiserMagic is the manufacturer-data prefix matched when the console
// has stopped advertising a cached local name.
var keiserMagic = [2]byte{0x02, 0x01}

// MatchesKeiser reports whether an advertisement is a Keiser M-series
// beacon, by local name prefix or manufacturer-data magic.
func MatchesKeiser(localName string, manufacturerData []byte) bool {
	if keiserNamePrefix.MatchString(localName) {
		return true
	}
	return len(manufacturerData) >= 2 && manufacturerData[0] == keiserMagic[0] && manufacturerData[1] == keiserMagic[1]
}

func bcdDigit(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

// KeiserVersion describes the parsed firmware identifier of a Keiser
// beacon and the stats-timeout that applies for that firmware.
type KeiserVersion struct {
	Version string
	Timeout time.Duration
}

// ParseKeiserVersion decodes the BCD-encoded major/minor version at
// offsets 2,3 and selects the per-firmware stats-timeout (spec.md
// §4.1: pre-6.30 -> 30s, >=6.30 -> 20s).
func ParseKeiserVersion(frame []byte) (KeiserVersion, error) {
	if len(frame) < 4 {
		return KeiserVersion{}, fmt.Errorf("%w: keiser frame too short for version", model.ErrParseFrame)
	}
	major := bcdDigit(frame[2])
	minor := bcdDigit(frame[3])
	timeout := 30 * time.Second
	if major > 6 || (major == 6 && minor >= 30) {
		timeout = 20 * time.Second
	}
	return KeiserVersion{Version: fmt.Sprintf("%d.%02d", major, minor), Timeout: timeout}, nil
}

// ParseKeiserFrame decodes a Keiser beacon manufacturer-data payload
// per spec.md §4.1/§8: cadence in 0.1 RPM units at offset 6 (u16 LE),
// power in watts at offset 10 (u16 LE). realtime (offset 4) must be 0
// or in (128, 255) to be considered valid; an invalid realtime byte
// means the beacon carries stale/averaged data and should be ignored.
func ParseKeiserFrame(frame []byte) (power uint16, cadence uint16, valid bool, err error) {
	if len(frame) < 12 || frame[0] != keiserMagic[0] || frame[1] != keiserMagic[1] {
		return 0, 0, false, fmt.Errorf("%w: keiser frame missing magic", model.ErrParseFrame)
	}
	realtime := frame[4]
	if !(realtime == 0 || (realtime > 128 && realtime < 255)) {
		return 0, 0, false, nil
	}
	rawCadence := binary.LittleEndian.Uint16(frame[6:8])
	cadence = uint16(math.Round(float64(rawCadence) / 10))
	power = binary.LittleEndian.Uint16(frame[10:12])
	return power, cadence, true, nil
}

// KeiserDriver is a scan-only BikeClientState: Reconnecting driver
// (spec.md §3) that never holds a GATT link, instead tracking beacon
// freshness against a per-firmware stats-timeout and the overall
// KeiserBikeTimeout.
type KeiserDriver struct {
	*base
	adapter *bluetooth.Adapter
	onLog   func(format string, args ...any)

	mu            sync.Mutex
	statsTimeout  time.Duration
	statsTimer    *time.Timer
	overallTimer  *time.Timer
	cancelScan    func()
	scanning      bool
}

// NewKeiserDriver returns a scan-only driver bound to adapter.
func NewKeiserDriver(adapter *bluetooth.Adapter, onLog func(string, ...any)) *KeiserDriver {
	if onLog == nil {
		onLog = func(string, ...any) {}
	}
	return &KeiserDriver{
		base:         newBase(""),
		adapter:      adapter,
		onLog:        onLog,
		statsTimeout: 30 * time.Second,
	}
}

// Connect begins a continuous duplicate-allowing scan for Keiser
// beacons and returns immediately; samples stream asynchronously as
// beacons arrive.
func (d *KeiserDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	d.overallTimer = time.AfterFunc(KeiserBikeTimeout, d.onOverallTimeout)
	d.scanning = true
	d.cancelScan = func() { _ = d.adapter.StopScan() }
	d.mu.Unlock()

	// Adapter.Scan blocks until StopScan, so it runs on its own
	// goroutine; a scan failure is a terminal disconnect.
	go func() {
		err := d.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			d.onDiscover(result)
		})
		if err != nil {
			d.onLog("keiser: %v", fmt.Errorf("%w: %v", model.ErrConnectFailed, err))
			d.Disconnect()
		}
	}()
	return nil
}

func (d *KeiserDriver) onDiscover(result bluetooth.ScanResult) {
	var payload []byte
	for _, entry := range result.ManufacturerData() {
		payload = entry.Data
		break
	}
	if !MatchesKeiser(result.LocalName(), payload) {
		return
	}
	if len(payload) < 12 {
		return
	}

	ver, err := ParseKeiserVersion(payload)
	if err != nil {
		d.onLog("keiser: %v", err)
		return
	}
	power, cadence, valid, err := ParseKeiserFrame(payload)
	if err != nil {
		d.onLog("keiser: %v", err)
		return
	}
	if !valid {
		return
	}

	d.mu.Lock()
	d.address = canonicalAddress(result.Address.String())
	d.statsTimeout = ver.Timeout
	d.resetStatsTimerLocked()
	if d.overallTimer != nil {
		d.overallTimer.Reset(KeiserBikeTimeout)
	}
	d.mu.Unlock()

	d.emitMasked(power, cadence, 0, false, model.BikeSample{T: time.Now()})
}

func (d *KeiserDriver) resetStatsTimerLocked() {
	if d.statsTimer != nil {
		d.statsTimer.Stop()
	}
	d.statsTimer = time.AfterFunc(d.statsTimeout, d.onStatsTimeout)
}

// onStatsTimeout zeroes power/cadence, matching Peloton's stats-stale
// reset, without tearing down the driver (a fresh beacon un-zeroes).
func (d *KeiserDriver) onStatsTimeout() {
	d.emit(0, 0, 0, false, model.BikeSample{T: time.Now()})
}

func (d *KeiserDriver) onOverallTimeout() {
	d.Disconnect()
}

// Disconnect stops the scan and cancels all timers, idempotent.
func (d *KeiserDriver) Disconnect() {
	d.mu.Lock()
	if d.statsTimer != nil {
		d.statsTimer.Stop()
	}
	if d.overallTimer != nil {
		d.overallTimer.Stop()
	}
	if d.scanning && d.cancelScan != nil {
		d.cancelScan()
		d.scanning = false
	}
	d.mu.Unlock()
	d.closeOnce()
}
