// Package gatt implements C7: bit-exact GATT characteristic payload
// encoders for the Cycling Power (0x1818), Cycling Speed and Cadence
// (0x1816) and Heart Rate (0x180d) services, plus the EIR advertising
// structure builder for C8.
package gatt

import "encoding/binary"

// Cycling Power Service UUIDs (spec.md §4.6 / §6).
const (
	CyclingPowerServiceUUID        = 0x1818
	CyclingPowerMeasurementUUID    = 0x2a63
	CyclingPowerFeatureUUID        = 0x2a65
	SensorLocationUUID             = 0x2a5d
)

// cpsFlagCrankRevolutionData is bit 5 of the CPS Measurement flags
// field: crank revolution data present.
const cpsFlagCrankRevolutionData = 1 << 5

// CyclingPowerFeatureValue is the fixed read-only value for the
// Cycling Power Feature characteristic: bit 3 (crank revolution data
// supported) set, everything else clear.
var CyclingPowerFeatureValue = []byte{0x08, 0x00, 0x00, 0x00}

// SensorLocationValue is the fixed read-only Sensor Location value:
// 0x0d = rear hub.
var SensorLocationValue = []byte{0x0d}

// EncodeCyclingPowerMeasurement builds the CPS Measurement payload:
// flags(u16 LE) | instantaneous_power(i16 LE) | crank_revs(u16 LE) |
// last_crank_event_time(u16 LE, 1/1024s). Always 8 bytes: gymnasticon
// always asserts the crank-revolution-data flag.
func EncodeCyclingPowerMeasurement(powerW int16, crank uint16, crankEventTime1024 uint16) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], cpsFlagCrankRevolutionData)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(powerW))
	binary.LittleEndian.PutUint16(buf[4:6], crank)
	binary.LittleEndian.PutUint16(buf[6:8], crankEventTime1024)
	return buf
}

// DecodeCyclingPowerMeasurement parses a payload built by
// EncodeCyclingPowerMeasurement, used by tests to assert round-trip
// behavior (spec.md §8).
func DecodeCyclingPowerMeasurement(buf []byte) (powerW int16, crank uint16, crankEventTime1024 uint16, ok bool) {
	if len(buf) < 8 {
		return 0, 0, 0, false
	}
	powerW = int16(binary.LittleEndian.Uint16(buf[2:4]))
	crank = binary.LittleEndian.Uint16(buf[4:6])
	crankEventTime1024 = binary.LittleEndian.Uint16(buf[6:8])
	return powerW, crank, crankEventTime1024, true
}
