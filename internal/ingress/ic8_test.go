package ingress

import "testing"

func TestParseIC8CSCFrame_CrankOnly(t *testing.T) {
	frame := []byte{0x02, 0x2a, 0x00, 0x10, 0x27}
	revs, et, ok, err := ParseIC8CSCFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok = true")
	}
	if revs != 0x002a || et != 0x2710 {
		t.Fatalf("got revs=%d et=%d", revs, et)
	}
}

func TestParseIC8CSCFrame_WheelAndCrank_SkipsWheelBlock(t *testing.T) {
	frame := []byte{
		0x03,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, // wheel block
		0x2a, 0x00, 0x10, 0x27, // crank block
	}
	revs, et, ok, err := ParseIC8CSCFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || revs != 0x002a || et != 0x2710 {
		t.Fatalf("got revs=%d et=%d ok=%v", revs, et, ok)
	}
}

func TestParseIC8CSCFrame_NoCrankBitReturnsNotOk(t *testing.T) {
	frame := []byte{0x00}
	_, _, ok, err := ParseIC8CSCFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok = false when crank bit clear")
	}
}

func TestClampResistance(t *testing.T) {
	if got := ClampResistance(150); got != 1.0 {
		t.Fatalf("ClampResistance(150) = %v, want 1.0", got)
	}
	if got := ClampResistance(50); got != 0.5 {
		t.Fatalf("ClampResistance(50) = %v, want 0.5", got)
	}
}

func TestEstimatePower_ZeroRpmIsZero(t *testing.T) {
	if got := EstimatePower(0, 1.0); got != 0 {
		t.Fatalf("EstimatePower(0,1.0) = %v, want 0", got)
	}
}

func TestEstimatePower_Monotonic(t *testing.T) {
	low := EstimatePower(60, 0.5)
	high := EstimatePower(90, 0.5)
	if high <= low {
		t.Fatalf("expected power to increase with rpm: low=%v high=%v", low, high)
	}
	lowR := EstimatePower(60, 0.0)
	highR := EstimatePower(60, 1.0)
	if highR <= lowR {
		t.Fatalf("expected power to increase with resistance: lowR=%v highR=%v", lowR, highR)
	}
}

func TestCrankCadenceTracker_FirstReadingNotOk(t *testing.T) {
	var tr crankCadenceTracker
	if _, ok := tr.Update(10, 1024); ok {
		t.Fatal("expected first reading to return ok=false")
	}
}

func TestCrankCadenceTracker_ComputesRpmFromDelta(t *testing.T) {
	var tr crankCadenceTracker
	tr.Update(0, 0)
	// 1 revolution in exactly 1 second (1024 units) = 60 RPM.
	rpm, ok := tr.Update(1, 1024)
	if !ok {
		t.Fatal("expected ok = true")
	}
	if rpm != 60 {
		t.Fatalf("rpm = %v, want 60", rpm)
	}
}

func TestCrankCadenceTracker_WrapsAcross16Bit(t *testing.T) {
	var tr crankCadenceTracker
	tr.Update(65534, 65000)
	rpm, ok := tr.Update(1, 1512) // wraps: revs delta = 3, time delta = 1512+65536-65000=2048 -> 2s
	if !ok {
		t.Fatal("expected ok = true across wrap")
	}
	want := 3.0 / 2.0 * 60
	if rpm != want {
		t.Fatalf("rpm = %v, want %v", rpm, want)
	}
}

func TestCrankCadenceTracker_DuplicateEventTimeIsSkipped(t *testing.T) {
	var tr crankCadenceTracker
	tr.Update(0, 100)
	_, ok := tr.Update(0, 100)
	if ok {
		t.Fatal("expected duplicate event time to be skipped")
	}
}
