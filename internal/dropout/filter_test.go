package dropout

import "testing"

func TestFilter_MasksExactlyOneZero(t *testing.T) {
	f := New()

	// warm up with a nonzero reading
	p, c := f.Apply(150, 90)
	if p != 150 || c != 90 {
		t.Fatalf("warmup: got (%d,%d), want (150,90)", p, c)
	}

	// first zero after nonzero history: masked, replays last value
	p, c = f.Apply(0, 0)
	if p != 150 || c != 90 {
		t.Fatalf("first zero: got (%d,%d), want (150,90) masked", p, c)
	}

	// second consecutive zero: passes through, legitimate stop
	p, c = f.Apply(0, 0)
	if p != 0 || c != 0 {
		t.Fatalf("second zero: got (%d,%d), want (0,0)", p, c)
	}
}

func TestFilter_ResetsMaskOnNonzero(t *testing.T) {
	f := New()
	f.Apply(100, 80)
	f.Apply(0, 0) // masked
	f.Apply(0, 0) // passes

	p, c := f.Apply(120, 85)
	if p != 120 || c != 85 {
		t.Fatalf("resume: got (%d,%d), want (120,85)", p, c)
	}

	// next dropout run gets its own single mask
	p, c = f.Apply(0, 0)
	if p != 120 || c != 85 {
		t.Fatalf("new run first zero: got (%d,%d), want (120,85) masked", p, c)
	}
}

func TestFilter_IndependentChannels(t *testing.T) {
	f := New()
	f.Apply(100, 80)
	p, c := f.Apply(0, 80) // only power drops
	if p != 100 || c != 80 {
		t.Fatalf("power-only drop: got (%d,%d), want (100,80)", p, c)
	}
}
