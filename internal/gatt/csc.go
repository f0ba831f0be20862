package gatt

import "encoding/binary"

// Cycling Speed and Cadence Service UUIDs.
const (
	CyclingSpeedCadenceServiceUUID = 0x1816
	CSCMeasurementUUID             = 0x2a5b
	CSCFeatureUUID                 = 0x2a5c
)

const (
	cscFlagWheelRevolutionData = 1 << 0
	cscFlagCrankRevolutionData = 1 << 1
)

// CSCFeatureCrankOnly is the initial CSC Feature value: crank-data
// support only (bit 1), no wheel data, no multiple sensor locations.
var CSCFeatureCrankOnly = []byte{0x02, 0x00}

// CSCFeatureWheelAndCrank is the dynamically-updated value once wheel
// data becomes available (bit 0 + bit 1).
var CSCFeatureWheelAndCrank = []byte{0x03, 0x00}

// CSCInput is the set of optional fields for one CSC Measurement.
type CSCInput struct {
	HasWheel             bool
	WheelRevolutions     uint32
	WheelEventTime1024   uint16
	HasCrank             bool
	CrankRevolutions     uint16
	CrankEventTime1024   uint16
}

// EncodeCSCMeasurement builds the CSC Measurement payload: a flags
// byte followed by only the populated wheel/crank blocks, per
// spec.md §4.6/§6. When only crank is populated the result is exactly
// 5 bytes (1 flags + 2 crank-revs + 2 crank-time).
func EncodeCSCMeasurement(in CSCInput) []byte {
	size := 1
	if in.HasWheel {
		size += 6
	}
	if in.HasCrank {
		size += 4
	}
	buf := make([]byte, size)

	var flags byte
	if in.HasWheel {
		flags |= cscFlagWheelRevolutionData
	}
	if in.HasCrank {
		flags |= cscFlagCrankRevolutionData
	}
	buf[0] = flags

	off := 1
	if in.HasWheel {
		binary.LittleEndian.PutUint32(buf[off:off+4], in.WheelRevolutions)
		binary.LittleEndian.PutUint16(buf[off+4:off+6], in.WheelEventTime1024)
		off += 6
	}
	if in.HasCrank {
		binary.LittleEndian.PutUint16(buf[off:off+2], in.CrankRevolutions)
		binary.LittleEndian.PutUint16(buf[off+2:off+4], in.CrankEventTime1024)
		off += 4
	}
	return buf
}

// DecodeCSCMeasurement parses a payload built by EncodeCSCMeasurement.
func DecodeCSCMeasurement(buf []byte) (CSCInput, bool) {
	if len(buf) < 1 {
		return CSCInput{}, false
	}
	var out CSCInput
	flags := buf[0]
	off := 1

	if flags&cscFlagWheelRevolutionData != 0 {
		if len(buf) < off+6 {
			return CSCInput{}, false
		}
		out.HasWheel = true
		out.WheelRevolutions = binary.LittleEndian.Uint32(buf[off : off+4])
		out.WheelEventTime1024 = binary.LittleEndian.Uint16(buf[off+4 : off+6])
		off += 6
	}
	if flags&cscFlagCrankRevolutionData != 0 {
		if len(buf) < off+4 {
			return CSCInput{}, false
		}
		out.HasCrank = true
		out.CrankRevolutions = binary.LittleEndian.Uint16(buf[off : off+2])
		out.CrankEventTime1024 = binary.LittleEndian.Uint16(buf[off+2 : off+4])
		off += 4
	}
	return out, true
}
