package gatt

import "fmt"

// MaxAdvertisingPayload is the hard 31-byte ceiling on a BLE
// advertising payload (the scan-response packet is a separate 31-byte
// budget, used here to carry a complete name that would not fit in
// the primary advertisement).
const MaxAdvertisingPayload = 31

// eirFlags, eirComplete16BitUUIDs, etc. are EIR structure type octets
// per spec.md §4.7/§6.
const (
	eirFlags               = 0x01
	eirComplete16BitUUIDs  = 0x03
	eirComplete32BitUUIDs  = 0x05
	eirComplete128BitUUIDs = 0x07
	eirManufacturerData    = 0xff
	eirShortLocalName      = 0x08
	eirCompleteLocalName   = 0x09

	// flagsLEGeneralDiscoverableNoBREDR is the standard flags value
	// for an LE-only peripheral in general discoverable mode.
	flagsLEGeneralDiscoverableNoBREDR = 0x06
)

// EIRBuilder assembles an advertising payload and, when the complete
// name does not fit, a companion scan-response payload carrying the
// complete name, per spec.md §4.7.
type EIRBuilder struct {
	Name             string
	UUIDs16          [][2]byte
	UUIDs32          [][4]byte
	UUIDs128         [][16]byte
	ManufacturerData []byte
}

func appendStruct(buf []byte, typ byte, value []byte) []byte {
	buf = append(buf, byte(len(value)+1), typ)
	buf = append(buf, value...)
	return buf
}

// BuildAdvertisement returns the primary advertisement payload and,
// if the complete name did not fit within MaxAdvertisingPayload, a
// companion scan-response payload carrying it. The name is fitted into
// whatever room is left in the advertisement; the flags, UUID and
// manufacturer-data structures are appended without a length check.
func (b *EIRBuilder) BuildAdvertisement() (adv []byte, scanResp []byte, err error) {
	adv = appendStruct(adv, eirFlags, []byte{flagsLEGeneralDiscoverableNoBREDR})

	if len(b.UUIDs16) > 0 {
		value := make([]byte, 0, len(b.UUIDs16)*2)
		for _, u := range b.UUIDs16 {
			value = append(value, u[0], u[1])
		}
		adv = appendStruct(adv, eirComplete16BitUUIDs, value)
	}
	if len(b.UUIDs32) > 0 {
		value := make([]byte, 0, len(b.UUIDs32)*4)
		for _, u := range b.UUIDs32 {
			value = append(value, u[:]...)
		}
		adv = appendStruct(adv, eirComplete32BitUUIDs, value)
	}
	if len(b.UUIDs128) > 0 {
		value := make([]byte, 0, len(b.UUIDs128)*16)
		for _, u := range b.UUIDs128 {
			value = append(value, u[:]...)
		}
		adv = appendStruct(adv, eirComplete128BitUUIDs, value)
	}
	if len(b.ManufacturerData) > 0 {
		adv = appendStruct(adv, eirManufacturerData, b.ManufacturerData)
	}

	if b.Name != "" {
		nameBytes := []byte(b.Name)
		completeLen := len(nameBytes) + 2 // length octet + type octet
		if len(adv)+completeLen <= MaxAdvertisingPayload {
			adv = appendStruct(adv, eirCompleteLocalName, nameBytes)
			return adv, nil, nil
		}

		// Complete name won't fit: shorten it to whatever room
		// remains in the advertisement and carry the complete name in
		// the scan response instead.
		remaining := MaxAdvertisingPayload - len(adv) - 2
		if remaining > 0 {
			short := nameBytes
			if len(short) > remaining {
				short = short[:remaining]
			}
			adv = appendStruct(adv, eirShortLocalName, short)
		}
		scanResp = appendStruct(scanResp, eirCompleteLocalName, nameBytes)
		if len(scanResp) > MaxAdvertisingPayload {
			return nil, nil, fmt.Errorf("gatt: complete name %q does not fit scan response", b.Name)
		}
		return adv, scanResp, nil
	}

	return adv, nil, nil
}
