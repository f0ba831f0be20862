// Package antplus implements C9: an ANT+ Bike Power broadcaster over a
// USB ANT+ stick, transmitting power pages on channel 0 at 4Hz.
package antplus

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"gymnasticon/internal/model"
)

// Recognized ANT+ USB stick vendor/product IDs (spec.md §6).
var knownDeviceIDs = []struct {
	vendor, product gousb.ID
}{
	{0x0fcf, 0x1008},
	{0x0fcf, 0x1009},
	{0x0fcf, 0x1006},
}

const (
	// BroadcastInterval is the ANT+ Bike Power channel period: 4Hz.
	BroadcastInterval = 250 * time.Millisecond

	antEndpointOut = 0x01
	antEndpointIn  = 0x81

	msgTxSync        = 0xa4
	msgIDResetSystem = 0x4a
	msgIDSetNetwork  = 0x46
	msgIDAssignCh    = 0x42
	msgIDChID        = 0x51
	msgIDChPeriod    = 0x43
	msgIDChFreq      = 0x45
	msgIDOpenCh      = 0x4b
	msgIDBroadcast   = 0x4e

	bikePowerDeviceType = 0x0b
	bikePowerChannelFreq = 0x39 // 2457 MHz, RF channel 57
	bikePowerChannelPeriod = 8182 // 8182/32768 s, ~4.00 Hz channel period for BP profile

	powerOnlyPage = 0x10
)

// Stick owns the USB ANT+ device for the process lifetime and is
// closed at most once.
type Stick struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	mu     sync.Mutex
	closed bool

	deviceID uint16

	stopCh chan struct{}
	wg     sync.WaitGroup

	mPower sync.Mutex
	power  int16

	eventCount uint8
}

// Open claims the first recognized ANT+ USB stick and assigns channel
// 0 to the Bike Power profile using deviceID as the ANT+ device
// number.
func Open(deviceID uint16) (*Stick, error) {
	ctx := gousb.NewContext()

	var device *gousb.Device
	var err error
	for _, id := range knownDeviceIDs {
		device, err = ctx.OpenDeviceWithVIDPID(id.vendor, id.product)
		if err == nil && device != nil {
			break
		}
	}
	if device == nil {
		ctx.Close()
		if err == nil {
			err = fmt.Errorf("no recognized ANT+ stick found")
		}
		return nil, fmt.Errorf("%w: %v", model.ErrFatalIO, err)
	}

	config, err := device.Config(1)
	if err != nil {
		_ = device.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: set config: %v", model.ErrFatalIO, err)
	}
	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		_ = device.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: claim interface: %v", model.ErrFatalIO, err)
	}
	epOut, err := intf.OutEndpoint(antEndpointOut)
	if err != nil {
		intf.Close()
		config.Close()
		_ = device.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: open OUT endpoint: %v", model.ErrFatalIO, err)
	}
	epIn, err := intf.InEndpoint(antEndpointIn)
	if err != nil {
		intf.Close()
		config.Close()
		_ = device.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: open IN endpoint: %v", model.ErrFatalIO, err)
	}

	s := &Stick{
		ctx:      ctx,
		device:   device,
		config:   config,
		intf:     intf,
		epOut:    epOut,
		epIn:     epIn,
		deviceID: deviceID,
	}
	if err := s.initChannel(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stick) send(msgID byte, payload []byte) error {
	buf := make([]byte, 0, len(payload)+4)
	buf = append(buf, msgTxSync, byte(len(payload)), msgID)
	buf = append(buf, payload...)
	buf = append(buf, checksum(buf))
	_, err := s.epOut.Write(buf)
	return err
}

func checksum(buf []byte) byte {
	var c byte
	for _, b := range buf {
		c ^= b
	}
	return c
}

// initChannel resets the stick, assigns network 0, configures channel
// 0 for the Bike Power device profile at deviceID, and opens it.
func (s *Stick) initChannel() error {
	if err := s.send(msgIDResetSystem, []byte{0x00}); err != nil {
		return fmt.Errorf("%w: reset: %v", model.ErrFatalIO, err)
	}
	time.Sleep(500 * time.Millisecond)

	if err := s.send(msgIDSetNetwork, []byte{0x00, 0, 0, 0, 0, 0, 0, 0, 0}); err != nil {
		return fmt.Errorf("%w: set network key: %v", model.ErrFatalIO, err)
	}
	if err := s.send(msgIDAssignCh, []byte{0x00, 0x10, 0x00}); err != nil {
		return fmt.Errorf("%w: assign channel: %v", model.ErrFatalIO, err)
	}

	idPayload := make([]byte, 5)
	binary.LittleEndian.PutUint16(idPayload[0:2], s.deviceID)
	idPayload[2] = bikePowerDeviceType
	idPayload[3] = 0x05 // transmission type, paired bit clear
	if err := s.send(msgIDChID, append([]byte{0x00}, idPayload...)); err != nil {
		return fmt.Errorf("%w: set channel id: %v", model.ErrFatalIO, err)
	}

	periodPayload := make([]byte, 2)
	binary.LittleEndian.PutUint16(periodPayload, bikePowerChannelPeriod)
	if err := s.send(msgIDChPeriod, append([]byte{0x00}, periodPayload...)); err != nil {
		return fmt.Errorf("%w: set channel period: %v", model.ErrFatalIO, err)
	}
	if err := s.send(msgIDChFreq, []byte{0x00, bikePowerChannelFreq}); err != nil {
		return fmt.Errorf("%w: set channel rf freq: %v", model.ErrFatalIO, err)
	}
	if err := s.send(msgIDOpenCh, []byte{0x00}); err != nil {
		return fmt.Errorf("%w: open channel: %v", model.ErrFatalIO, err)
	}
	return nil
}

// SetPower updates the power value broadcast on the next tick.
func (s *Stick) SetPower(powerW uint16) {
	s.mPower.Lock()
	s.power = int16(powerW)
	s.mPower.Unlock()
}

// Start begins broadcasting a power-only page at BroadcastInterval
// (4Hz) until Stop is called.
func (s *Stick) Start() {
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.broadcastLoop()
}

func (s *Stick) broadcastLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Stick) tick() {
	s.mPower.Lock()
	power := s.power
	s.mPower.Unlock()

	s.eventCount++
	payload := make([]byte, 8)
	payload[0] = powerOnlyPage
	payload[1] = s.eventCount
	payload[2] = 0xff // pedal power not used
	payload[3] = 0xff // instantaneous cadence not available
	binary.LittleEndian.PutUint16(payload[4:6], 0) // accumulated power, unused by power-only page
	binary.LittleEndian.PutUint16(payload[6:8], uint16(power))

	if err := s.send(msgIDBroadcast, append([]byte{0x00}, payload...)); err != nil {
		// best-effort: a single dropped broadcast tick is not fatal,
		// the next tick retries.
		return
	}
}

// Close disables broadcasting and releases the USB device, idempotent.
func (s *Stick) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.stopCh != nil {
		close(s.stopCh)
		s.wg.Wait()
	}
	if s.intf != nil {
		s.intf.Close()
	}
	if s.config != nil {
		s.config.Close()
	}
	if s.device != nil {
		_ = s.device.Close()
	}
	if s.ctx != nil {
		s.ctx.Close()
	}
	return nil
}
