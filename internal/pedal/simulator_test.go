package pedal

import (
	"reflect"
	"testing"
)

// S3 — constant 60 RPM produces ticks every 1000ms.
func TestSimulator_ConstantCadence(t *testing.T) {
	fc := newFakeClock()
	var got []float64
	sim := New(fc, func(tMs float64) { got = append(got, tMs) })

	sim.SetCadence(60, 0)
	fc.Advance(3500)

	want := []float64{0, 1000, 2000, 3000}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// S4 — stop/start timeline: (0,60), (3001,0), (100000,1000).
func TestSimulator_StopStartStart(t *testing.T) {
	fc := newFakeClock()
	var got []float64
	sim := New(fc, func(tMs float64) { got = append(got, tMs) })

	sim.SetCadence(60, 0)
	fc.Advance(3001)
	sim.SetCadence(0, 3001)
	fc.Advance(100000)
	sim.SetCadence(1000, 100000)
	fc.Advance(100100)

	want := []float64{0, 1000, 2000, 3000, 100000, 100060}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// Inconsequential cadence changes: a small cadence change just before
// an event fires must not delay that event.
func TestSimulator_InconsequentialChangeNeverDelaysImminentEvent(t *testing.T) {
	fc := newFakeClock()
	var got []float64
	sim := New(fc, func(tMs float64) { got = append(got, tMs) })

	sim.SetCadence(60, 0) // fires immediately at 0, next event scheduled at 1000
	fc.Advance(900)
	sim.SetCadence(50, 900) // period now 1200ms; remaining=100 < 1200, leave alone
	fc.Advance(1100)

	want := []float64{0, 1000}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v (event at 1000 must still fire on time)", got, want)
	}
}

// A cadence increase pulls a too-distant scheduled event closer.
func TestSimulator_CadenceIncreaseBringsEventCloser(t *testing.T) {
	fc := newFakeClock()
	var got []float64
	sim := New(fc, func(tMs float64) { got = append(got, tMs) })

	sim.SetCadence(30, 0) // fires immediately at 0, period 2000ms, next event at 2000
	fc.Advance(100)
	sim.SetCadence(120, 100) // period 500ms; remaining=1900 > 500, reschedule to 600
	fc.Advance(700)

	want := []float64{0, 600}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSimulator_ZeroCadenceCancelsPending(t *testing.T) {
	fc := newFakeClock()
	var got []float64
	sim := New(fc, func(tMs float64) { got = append(got, tMs) })

	sim.SetCadence(60, 0)
	fc.Advance(500)
	sim.SetCadence(0, 500)
	fc.Advance(5000)

	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("got %v, want [0] (only the immediate event before cancellation)", got)
	}
}
