package ingress

import "testing"

func TestParseIC4Frame_ScenarioS1(t *testing.T) {
	frame := []byte{0x44, 0x02, 0xDA, 0x02, 0x02, 0x01, 0x22, 0x01, 0x00}
	power, cadence, _, _, err := ParseIC4Frame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if power != 290 {
		t.Fatalf("power = %d, want 290", power)
	}
	if cadence != 129 {
		t.Fatalf("cadence = %d, want 129", cadence)
	}
}

func TestParseIC4Frame_SpeedConversion(t *testing.T) {
	frame := []byte{0x44, 0x02, 0xDA, 0x02, 0x02, 0x01, 0x22, 0x01, 0x00}
	_, _, speed, hasSpeed, err := ParseIC4Frame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasSpeed {
		t.Fatal("expected hasSpeed = true for nonzero raw speed")
	}
	want := float32(7.30 / 3.6)
	if diff := speed - want; diff < -0.001 || diff > 0.001 {
		t.Fatalf("speed = %v, want ~%v", speed, want)
	}
}

func TestParseIC4Frame_ZeroSpeedOmitted(t *testing.T) {
	frame := []byte{0x44, 0x02, 0x00, 0x00, 0x02, 0x01, 0x22, 0x01, 0x00}
	_, _, _, hasSpeed, err := ParseIC4Frame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasSpeed {
		t.Fatal("expected hasSpeed = false for zero raw speed")
	}
}

func TestParseIC4Frame_NegativePowerPassesThrough(t *testing.T) {
	// power i16 LE at offset 6 = -5 (0xfffb)
	frame := []byte{0x44, 0x02, 0x00, 0x00, 0x00, 0x00, 0xfb, 0xff, 0x00}
	power, _, _, _, err := ParseIC4Frame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if power != -5 {
		t.Fatalf("power = %d, want -5", power)
	}
}

func TestParseIC4Frame_RejectsBadMagic(t *testing.T) {
	frame := []byte{0x00, 0x00, 0xDA, 0x02, 0x02, 0x01, 0x22, 0x01, 0x00}
	if _, _, _, _, err := ParseIC4Frame(frame); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestParseIC4Frame_RejectsShortFrame(t *testing.T) {
	frame := []byte{0x44, 0x02, 0x00}
	if _, _, _, _, err := ParseIC4Frame(frame); err == nil {
		t.Fatal("expected error for short frame")
	}
}

func TestClampPower_NegativeBecomesZero(t *testing.T) {
	if got := clampPower(-5); got != 0 {
		t.Fatalf("clampPower(-5) = %d, want 0", got)
	}
	if got := clampPower(290); got != 290 {
		t.Fatalf("clampPower(290) = %d, want 290", got)
	}
}
