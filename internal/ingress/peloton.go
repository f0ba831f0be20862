package ingress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"gymnasticon/internal/model"
)

const (
	pelotonFrameDelimiter = 0xF6

	pelotonCmdCadence    = 0x41
	pelotonCmdPower      = 0x44
	pelotonCmdResistance = 0x4A

	// pelotonStatsTimeout resets cadence+power to 0 when no reply has
	// been decoded for this long (spec.md §4.1).
	pelotonStatsTimeout = 1 * time.Second

	pelotonPollInterval = 100 * time.Millisecond
)

// pelotonRequests holds the full F6-delimited request sequence for each
// of the three round-robin polled metrics.
var pelotonRequests = [][]byte{
	{0xF6, 0xF5, 0x41, 0x36},
	{0xF6, 0xF5, 0x44, 0x39},
	{0xF6, 0xF5, 0x4A, 0x3F},
}

// DecodeBCDDigits decodes a Peloton reply body of ASCII-coded decimal
// digits (digit = byte - 0x30), last byte as the ones place, into its
// plain integer value, e.g. "01234" -> 1234. Power replies carry
// an implicit one-decimal precision (the caller divides by 10);
// cadence replies do not.
func DecodeBCDDigits(body []byte) (digits int, err error) {
	if len(body) == 0 {
		return 0, fmt.Errorf("%w: empty peloton reply body", model.ErrParseFrame)
	}
	value := 0
	place := 1
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i]) - 0x30
		if d < 0 || d > 9 {
			return 0, fmt.Errorf("%w: non-digit byte 0x%02x in peloton reply", model.ErrParseFrame, body[i])
		}
		value += d * place
		place *= 10
	}
	return value, nil
}

// PelotonDriver polls a Peloton console over USB serial at 19200 8N1,
// round-robin requesting cadence, power, and resistance (resistance is
// parsed but not forwarded).
type PelotonDriver struct {
	*base
	path   string
	onLog  func(format string, args ...any)

	mu         sync.Mutex
	port       serial.Port
	stopPoll   chan struct{}
	statsTimer *time.Timer
}

// NewPelotonDriver returns a driver that will open path (e.g.
// "/dev/ttyUSB0") on Connect.
func NewPelotonDriver(path string, onLog func(string, ...any)) *PelotonDriver {
	if onLog == nil {
		onLog = func(string, ...any) {}
	}
	return &PelotonDriver{base: newBase(""), path: path, onLog: onLog}
}

// Connect opens the serial port and starts the round-robin poll loop.
func (d *PelotonDriver) Connect(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: 19200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.path, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", model.ErrConnectFailed, d.path, err)
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: set read timeout: %v", model.ErrConnectFailed, err)
	}
	d.mu.Lock()
	d.port = port
	d.stopPoll = make(chan struct{})
	d.statsTimer = time.AfterFunc(pelotonStatsTimeout, d.onStatsTimeout)
	d.mu.Unlock()

	go d.pollLoop()
	return nil
}

func (d *PelotonDriver) pollLoop() {
	ticker := time.NewTicker(pelotonPollInterval)
	defer ticker.Stop()

	reqIdx := 0
	buf := make([]byte, 64)
	for {
		select {
		case <-d.stopPoll:
			return
		case <-ticker.C:
			d.mu.Lock()
			port := d.port
			d.mu.Unlock()
			if port == nil {
				return
			}
			req := pelotonRequests[reqIdx]
			reqIdx = (reqIdx + 1) % len(pelotonRequests)
			if _, err := port.Write(req); err != nil {
				d.onLog("peloton: write failed: %v", err)
				continue
			}
			n, err := port.Read(buf)
			if err != nil {
				d.onLog("peloton: read failed: %v", err)
				continue
			}
			d.handleReply(req[2], buf[:n])
		}
	}
}

func (d *PelotonDriver) handleReply(cmd byte, reply []byte) {
	body := stripDelimiters(reply)
	if len(body) == 0 {
		return
	}
	digits, err := DecodeBCDDigits(body)
	if err != nil {
		d.onLog("peloton: %v", err)
		return
	}

	d.mu.Lock()
	if d.statsTimer != nil {
		d.statsTimer.Reset(pelotonStatsTimeout)
	}
	d.mu.Unlock()

	switch cmd {
	case pelotonCmdCadence:
		d.emit(0, uint16(digits), 0, false, model.BikeSample{T: time.Now()})
	case pelotonCmdPower:
		d.emit(uint16(digits/10), 0, 0, false, model.BikeSample{T: time.Now()})
	case pelotonCmdResistance:
		// parsed, not forwarded.
	}
}

// stripDelimiters trims the leading 0xF6 frame delimiter(s) from reply.
func stripDelimiters(reply []byte) []byte {
	i := 0
	for i < len(reply) && reply[i] == pelotonFrameDelimiter {
		i++
	}
	return reply[i:]
}

func (d *PelotonDriver) onStatsTimeout() {
	d.emit(0, 0, 0, false, model.BikeSample{T: time.Now()})
}

// Disconnect stops polling and closes the serial port, idempotent.
func (d *PelotonDriver) Disconnect() {
	d.mu.Lock()
	if d.stopPoll != nil {
		select {
		case <-d.stopPoll:
		default:
			close(d.stopPoll)
		}
	}
	if d.statsTimer != nil {
		d.statsTimer.Stop()
	}
	if d.port != nil {
		_ = d.port.Close()
		d.port = nil
	}
	d.mu.Unlock()
	d.closeOnce()
}
