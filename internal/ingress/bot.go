package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"gymnasticon/internal/model"
)

// botDatagram is the JSON shape a test harness sends: {"power": N,
// "cadence": N}. Missing fields default to 0.
type botDatagram struct {
	Power   uint16 `json:"power"`
	Cadence uint16 `json:"cadence"`
}

// BotDriver listens for UDP datagrams carrying {power, cadence} JSON
// payloads used by test harnesses. It has no retry state machine: a
// listen failure is terminal.
type BotDriver struct {
	*base
	host string
	port int

	conn *net.UDPConn
	stop chan struct{}
}

// NewBotDriver returns a driver that will listen on host:port on
// Connect.
func NewBotDriver(host string, port int) *BotDriver {
	return &BotDriver{base: newBase(""), host: host, port: port}
}

// Connect opens the UDP listener and starts the read loop.
func (d *BotDriver) Connect(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.ParseIP(d.host), Port: d.port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: listen %s:%d: %v", model.ErrConnectFailed, d.host, d.port, err)
	}
	d.conn = conn
	d.stop = make(chan struct{})
	go d.readLoop()
	return nil
}

func (d *BotDriver) readLoop() {
	buf := make([]byte, 512)
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		var dg botDatagram
		if err := json.Unmarshal(buf[:n], &dg); err != nil {
			continue
		}
		d.emit(dg.Power, dg.Cadence, 0, false, model.BikeSample{T: time.Now()})
	}
}

// Disconnect closes the UDP listener, idempotent.
func (d *BotDriver) Disconnect() {
	if d.stop != nil {
		select {
		case <-d.stop:
		default:
			close(d.stop)
		}
	}
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
	d.closeOnce()
}
