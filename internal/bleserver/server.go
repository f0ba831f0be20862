// Package bleserver implements C8: a BLE peripheral server per
// outbound adapter, holding the CPS/CSC/HR GATT tree and delivering
// characteristic notifications, plus MultiBleServer fan-out across
// several adapters with partial-success semantics.
package bleserver

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"gymnasticon/internal/gatt"
	"gymnasticon/internal/model"
)

var (
	cyclingPowerServiceUUID     = bluetooth.New16BitUUID(gatt.CyclingPowerServiceUUID)
	cyclingPowerMeasurementUUID = bluetooth.New16BitUUID(gatt.CyclingPowerMeasurementUUID)
	cyclingPowerFeatureUUID     = bluetooth.New16BitUUID(gatt.CyclingPowerFeatureUUID)
	sensorLocationUUID          = bluetooth.New16BitUUID(gatt.SensorLocationUUID)

	cscServiceUUID     = bluetooth.New16BitUUID(gatt.CyclingSpeedCadenceServiceUUID)
	cscMeasurementUUID = bluetooth.New16BitUUID(gatt.CSCMeasurementUUID)
	cscFeatureUUID     = bluetooth.New16BitUUID(gatt.CSCFeatureUUID)

	heartRateServiceUUID     = bluetooth.New16BitUUID(gatt.HeartRateServiceUUID)
	heartRateMeasurementUUID = bluetooth.New16BitUUID(gatt.HeartRateMeasurementUUID)
)

// Server holds one adapter's GATT tree and advertisement state.
type Server struct {
	adapter *bluetooth.Adapter
	name    string

	mu          sync.Mutex
	started     bool
	cscHasWheel bool

	cpsMeasurement bluetooth.Characteristic
	cscMeasurement bluetooth.Characteristic
	cscFeature     bluetooth.Characteristic
	hrMeasurement  bluetooth.Characteristic
}

// New constructs a server bound to adapter, not yet started.
func New(adapter *bluetooth.Adapter, name string) *Server {
	return &Server{adapter: adapter, name: name}
}

// Start registers the CPS, CSC, and HR GATT services and begins
// advertising. Calling Start twice is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: adapter enable: %v", model.ErrAdapterUnavailable, err)
	}

	if err := s.adapter.AddService(&bluetooth.Service{
		UUID: cyclingPowerServiceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &s.cpsMeasurement,
				UUID:   cyclingPowerMeasurementUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission,
			},
			{
				UUID:  cyclingPowerFeatureUUID,
				Flags: bluetooth.CharacteristicReadPermission,
				Value: gatt.CyclingPowerFeatureValue,
			},
			{
				UUID:  sensorLocationUUID,
				Flags: bluetooth.CharacteristicReadPermission,
				Value: gatt.SensorLocationValue,
			},
		},
	}); err != nil {
		return fmt.Errorf("%w: add cps service: %v", model.ErrAdapterUnavailable, err)
	}

	if err := s.adapter.AddService(&bluetooth.Service{
		UUID: cscServiceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &s.cscMeasurement,
				UUID:   cscMeasurementUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission,
			},
			{
				Handle: &s.cscFeature,
				UUID:   cscFeatureUUID,
				Flags:  bluetooth.CharacteristicReadPermission,
				Value:  gatt.CSCFeatureCrankOnly,
			},
		},
	}); err != nil {
		return fmt.Errorf("%w: add csc service: %v", model.ErrAdapterUnavailable, err)
	}

	if err := s.adapter.AddService(&bluetooth.Service{
		UUID: heartRateServiceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &s.hrMeasurement,
				UUID:   heartRateMeasurementUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission,
			},
		},
	}); err != nil {
		return fmt.Errorf("%w: add hr service: %v", model.ErrAdapterUnavailable, err)
	}

	// tinygo's portable AdvertisementOptions assembles EIR structures
	// internally and accepts no raw payload, so gatt.EIRBuilder can't
	// be handed to Configure directly; it is used here as a preflight
	// budget check (spec.md §4.7's 31-byte ceiling) to decide whether
	// the complete name needs shortening before Configure is called.
	advName := s.name
	builder := &gatt.EIRBuilder{
		Name: s.name,
		UUIDs16: [][2]byte{
			to16(gatt.CyclingPowerServiceUUID),
			to16(gatt.CyclingSpeedCadenceServiceUUID),
			to16(gatt.HeartRateServiceUUID),
		},
	}
	if _, scanResp, err := builder.BuildAdvertisement(); err != nil || len(scanResp) > 0 {
		// complete name didn't fit the primary payload (or not even a
		// scan response); tinygo has no scan-response hook in the
		// portable API, so fall back to the name cut by shortenName to
		// MaxAdvertisingPayload-2 bytes. The room taken by the flags and
		// UUID structures is not subtracted from that budget.
		advName = shortenName(s.name, gatt.MaxAdvertisingPayload)
	}

	advertisement := s.adapter.DefaultAdvertisement()
	if err := advertisement.Configure(bluetooth.AdvertisementOptions{
		LocalName:    advName,
		ServiceUUIDs: []bluetooth.UUID{cyclingPowerServiceUUID, cscServiceUUID, heartRateServiceUUID},
	}); err != nil {
		return fmt.Errorf("%w: configure advertisement: %v", model.ErrAdapterUnavailable, err)
	}
	if err := advertisement.Start(); err != nil {
		return fmt.Errorf("%w: start advertisement: %v", model.ErrAdapterUnavailable, err)
	}

	s.started = true
	return nil
}

// NotifyPower writes the Cycling Power Measurement characteristic
// with a CPS payload carrying the crank revolution block.
func (s *Server) NotifyPower(powerW int16, crankRevs uint16, crankEventTime1024 uint16) error {
	payload := gatt.EncodeCyclingPowerMeasurement(powerW, crankRevs, crankEventTime1024)
	_, err := s.cpsMeasurement.Write(payload)
	return err
}

// NotifyCSC writes the CSC Measurement characteristic. Wheel data is
// included only when in.HasWheel is set.
func (s *Server) NotifyCSC(in gatt.CSCInput) error {
	payload := gatt.EncodeCSCMeasurement(in)
	_, err := s.cscMeasurement.Write(payload)
	return err
}

// EnsureCscCapabilities rewrites the CSC Feature characteristic from
// crank-only to wheel+crank the first time wheel data becomes
// available, per spec.md §4.7. Idempotent: a second call once already
// upgraded is a no-op.
func (s *Server) EnsureCscCapabilities() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cscHasWheel || !s.started {
		return nil
	}
	if _, err := s.cscFeature.Write(gatt.CSCFeatureWheelAndCrank); err != nil {
		return err
	}
	s.cscHasWheel = true
	return nil
}

// NotifyHeartRate writes the Heart Rate Measurement characteristic.
func (s *Server) NotifyHeartRate(bpm uint8) error {
	payload := gatt.EncodeHeartRateMeasurement(bpm)
	_, err := s.hrMeasurement.Write(payload)
	return err
}

// Stop tears down advertising. The underlying tinygo bluetooth API
// does not expose GATT service removal, matching the teacher's own
// peripheral lifecycle (services persist for the adapter's lifetime;
// only advertising is toggled).
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.adapter.DefaultAdvertisement().Stop()
}

func to16(uuid uint16) [2]byte {
	return [2]byte{byte(uuid), byte(uuid >> 8)}
}

// shortenName truncates name so a complete-local-name EIR structure
// for it fits within budget bytes.
func shortenName(name string, budget int) string {
	max := budget - 2
	if max <= 0 {
		return ""
	}
	if len(name) <= max {
		return name
	}
	return name[:max]
}
