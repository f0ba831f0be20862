// Package heartrate implements C2: a dedicated BLE heart-rate client
// that scans for any peripheral advertising service 0x180d, connects,
// subscribes to Heart Rate Measurement (0x2a37), and emits HrSample.
package heartrate

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"gymnasticon/internal/model"
)

var (
	heartRateServiceUUID     = bluetooth.New16BitUUID(0x180d)
	heartRateMeasurementUUID = bluetooth.New16BitUUID(0x2a37)
)

// Client scans for and connects to a heart-rate peripheral on the given
// adapter; it does not itself check whether that radio is
// multi-role-capable.
type Client struct {
	adapter       *bluetooth.Adapter
	nameSubstring string
	onLog         func(format string, args ...any)

	mu        sync.Mutex
	device    *bluetooth.Device
	connected bool

	samples      chan model.HrSample
	disconnected chan struct{}
	closeOnce    sync.Once
}

// New returns a heart-rate client bound to adapter. nameSubstring, if
// non-empty, additionally filters scan results by local name.
func New(adapter *bluetooth.Adapter, nameSubstring string, onLog func(string, ...any)) *Client {
	if onLog == nil {
		onLog = func(string, ...any) {}
	}
	return &Client{
		adapter:       adapter,
		nameSubstring: nameSubstring,
		onLog:         onLog,
		samples:       make(chan model.HrSample, 8),
		disconnected:  make(chan struct{}),
	}
}

// Samples returns the channel HrSample values are pushed to.
func (c *Client) Samples() <-chan model.HrSample { return c.samples }

// Disconnected returns a channel closed exactly once on terminal
// disconnect.
func (c *Client) Disconnected() <-chan struct{} { return c.disconnected }

// Connect scans for a peripheral advertising service 0x180d (further
// filtered by nameSubstring when set), connects, and subscribes.
func (c *Client) Connect(ctx context.Context) error {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(heartRateServiceUUID) {
				return
			}
			if c.nameSubstring != "" && !containsFold(result.LocalName(), c.nameSubstring) {
				return
			}
			_ = adapter.StopScan()
			select {
			case found <- result:
			default:
			}
		})
	}()

	select {
	case <-ctx.Done():
		_ = c.adapter.StopScan()
		return fmt.Errorf("%w: %v", model.ErrScanTimeout, ctx.Err())
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrAdapterUnavailable, err)
		}
		return fmt.Errorf("%w: scan ended without a match", model.ErrScanTimeout)
	case result := <-found:
		return c.connectTo(result)
	}
}

func (c *Client) connectTo(result bluetooth.ScanResult) error {
	device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrConnectFailed, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{heartRateServiceUUID})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("%w: heart rate service not found", model.ErrConnectFailed)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{heartRateMeasurementUUID})
	if err != nil || len(chars) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("%w: heart rate measurement characteristic not found", model.ErrConnectFailed)
	}
	if err := chars[0].EnableNotifications(c.onNotify); err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("%w: %v", model.ErrConnectFailed, err)
	}

	c.mu.Lock()
	c.device = &device
	c.connected = true
	c.mu.Unlock()
	return nil
}

// onNotify decodes the HR Measurement flags byte, always treating the
// value as an 8-bit reading on the ingress side (buf[1]) per spec.md
// §4.2.
func (c *Client) onNotify(buf []byte) {
	if len(buf) < 2 {
		return
	}
	select {
	case c.samples <- model.HrSample{Bpm: buf[1]}:
	default:
		select {
		case <-c.samples:
		default:
		}
		c.samples <- model.HrSample{Bpm: buf[1]}
	}
}

// Disconnect tears down the BLE connection, idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.connected && c.device != nil {
		_ = c.device.Disconnect()
		c.connected = false
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.disconnected) })
}

func containsFold(s, substr string) bool {
	sl, subl := len(s), len(substr)
	if subl == 0 {
		return true
	}
	for i := 0; i+subl <= sl; i++ {
		if equalFold(s[i:i+subl], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
