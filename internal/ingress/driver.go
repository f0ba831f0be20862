// Package ingress implements C1: one state machine per bike transport
// (Flywheel, IC4/IC5, IC8/Bowflex C6, Keiser, Peloton, Bot), each
// producing a BikeSample stream behind a common Driver contract.
package ingress

import (
	"context"

	"gymnasticon/internal/dropout"
	"gymnasticon/internal/model"
)

// Driver is the common contract every bike ingress driver satisfies,
// mirroring the teacher's Peer.Run/connectAndSubscribe/handleDisconnect
// shape: connect, subscribe, push samples on a channel, and disconnect
// exactly once on terminal failure.
type Driver interface {
	// Connect establishes the transport connection and starts pushing
	// samples to the channel returned by Samples(). It returns once
	// the initial connection is established (or failed).
	Connect(ctx context.Context) error

	// Disconnect tears down the connection. Idempotent: safe to call
	// multiple times and safe to call even if the peripheral already
	// vanished.
	Disconnect()

	// Samples returns the channel samples are pushed to, in source
	// order, for the lifetime of the driver.
	Samples() <-chan model.BikeSample

	// Disconnected returns a channel closed exactly once, when the
	// driver emits its terminal disconnect.
	Disconnected() <-chan struct{}

	// Address returns the canonical lowercase MAC form
	// "aa:bb:cc:dd:ee:ff" of the connected peripheral, or "" if not
	// applicable (e.g. the Bot driver).
	Address() string
}

// base gives every driver the shared plumbing: the sample channel, the
// disconnect-once guard, and the mandatory C3 dropout filter that every
// BLE-sourced driver pipes raw samples through before emitting.
type base struct {
	samples      chan model.BikeSample
	disconnected chan struct{}
	closeOnce    func()
	dropout      *dropout.Filter
	address      string
}

func newBase(address string) *base {
	closed := false
	ch := make(chan struct{})
	return &base{
		samples:      make(chan model.BikeSample, 16),
		disconnected: ch,
		dropout:      dropout.New(),
		address:      address,
		closeOnce: func() {
			if !closed {
				closed = true
				close(ch)
			}
		},
	}
}

func (b *base) Samples() <-chan model.BikeSample    { return b.samples }
func (b *base) Disconnected() <-chan struct{}       { return b.disconnected }
func (b *base) Address() string                     { return canonicalAddress(b.address) }

// SetAddress binds the peripheral address a subsequent Connect targets.
// Drivers that resolve their own peripheral via a dedicated scan
// (Keiser, Peloton, Bot) never need this; drivers that connect
// directly to a known address (Flywheel, IC4/IC5, IC8) require it to
// be called with the address a prior autodetect scan resolved.
func (b *base) SetAddress(addr string) { b.address = addr }

// emit pushes a sample as-is. power/cadence are raw units (watts,
// RPM); speed passes through untouched. BLE-sourced drivers must
// apply the dropout mask (via emitMasked) before calling this.
func (b *base) emit(power, cadence uint16, speedMps float32, hasSpeed bool, t model.BikeSample) {
	t.PowerW = power
	t.CadenceRPM = cadence
	t.SpeedMps = speedMps
	t.HasSpeed = hasSpeed
	select {
	case b.samples <- t:
	default:
		// backpressure: drop the oldest-pending sample rather than
		// block the ingress read loop.
		select {
		case <-b.samples:
		default:
		}
		b.samples <- t
	}
}

// emitMasked applies the C3 dropout mask before pushing. Every
// BLE-sourced driver (spec.md §4.1: "All BLE drivers pipe their raw
// samples through C3 before emitting") calls this instead of emit.
func (b *base) emitMasked(power, cadence uint16, speedMps float32, hasSpeed bool, t model.BikeSample) {
	p, c := b.dropout.Apply(power, cadence)
	b.emit(p, c, speedMps, hasSpeed, t)
}

func canonicalAddress(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'F' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
