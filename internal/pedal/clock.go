package pedal

import "time"

// Clock abstracts wall-clock scheduling so the simulator's timer logic
// can be driven deterministically in tests (see fake_clock_test.go)
// while using real timers (time.AfterFunc, grounded on the teacher's
// use of time.AfterFunc in peer_peripheral.go's scanForPeer) in
// production.
type Clock interface {
	// NowMs returns milliseconds elapsed on some arbitrary monotonic
	// epoch fixed at Clock creation.
	NowMs() float64
	// AfterFunc schedules f to run when NowMs reaches atMs, returning
	// a function that cancels the pending call (idempotent, safe even
	// if the event already fired).
	AfterFunc(atMs float64, f func()) (cancel func())
}

// realClock is the production Clock backed by time.AfterFunc.
type realClock struct {
	epoch time.Time
}

// NewRealClock returns a Clock anchored to the current wall-clock time.
func NewRealClock() Clock {
	return &realClock{epoch: time.Now()}
}

func (c *realClock) NowMs() float64 {
	return float64(time.Since(c.epoch).Microseconds()) / 1000.0
}

func (c *realClock) AfterFunc(atMs float64, f func()) func() {
	d := time.Duration(atMs-c.NowMs()) * time.Millisecond
	if d < 0 {
		d = 0
	}
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}
