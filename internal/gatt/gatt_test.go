package gatt

import "testing"

func TestCPS_RoundTrip(t *testing.T) {
	buf := EncodeCyclingPowerMeasurement(290, 1234, 5678)
	if len(buf) != 8 {
		t.Fatalf("buffer length = %d, want 8", len(buf))
	}
	p, crank, et, ok := DecodeCyclingPowerMeasurement(buf)
	if !ok || p != 290 || crank != 1234 || et != 5678 {
		t.Fatalf("decode = (%d,%d,%d,%v), want (290,1234,5678,true)", p, crank, et, ok)
	}
}

func TestCPS_SignExtendsNegativePower(t *testing.T) {
	buf := EncodeCyclingPowerMeasurement(-1, 0, 0)
	p, _, _, ok := DecodeCyclingPowerMeasurement(buf)
	if !ok || p != -1 {
		t.Fatalf("decode power = %d, want -1", p)
	}
}

func TestCSC_CrankOnlyIsFiveBytes(t *testing.T) {
	buf := EncodeCSCMeasurement(CSCInput{HasCrank: true, CrankRevolutions: 42, CrankEventTime1024: 99})
	if len(buf) != 5 {
		t.Fatalf("buffer length = %d, want 5", len(buf))
	}
	out, ok := DecodeCSCMeasurement(buf)
	if !ok || !out.HasCrank || out.HasWheel || out.CrankRevolutions != 42 || out.CrankEventTime1024 != 99 {
		t.Fatalf("decode = %+v, ok=%v", out, ok)
	}
}

func TestCSC_RoundTripWheelAndCrank(t *testing.T) {
	in := CSCInput{
		HasWheel: true, WheelRevolutions: 123456, WheelEventTime1024: 111,
		HasCrank: true, CrankRevolutions: 42, CrankEventTime1024: 222,
	}
	buf := EncodeCSCMeasurement(in)
	if len(buf) != 11 {
		t.Fatalf("buffer length = %d, want 11", len(buf))
	}
	out, ok := DecodeCSCMeasurement(buf)
	if !ok || out != in {
		t.Fatalf("decode = %+v, want %+v", out, in)
	}
}

func TestHR_Encode(t *testing.T) {
	buf := EncodeHeartRateMeasurement(142)
	if len(buf) != 2 || buf[0] != 0 || buf[1] != 142 {
		t.Fatalf("buf = %v, want [0 142]", buf)
	}
	bpm, ok := DecodeHeartRateMeasurement(buf)
	if !ok || bpm != 142 {
		t.Fatalf("decode = (%d,%v), want (142,true)", bpm, ok)
	}
}

func TestEIR_FitsWithoutScanResponse(t *testing.T) {
	b := &EIRBuilder{
		Name:    "Gym",
		UUIDs16: [][2]byte{{0x18, 0x18}},
	}
	adv, scanResp, err := b.BuildAdvertisement()
	if err != nil {
		t.Fatal(err)
	}
	if len(adv) > MaxAdvertisingPayload {
		t.Fatalf("adv length %d exceeds %d", len(adv), MaxAdvertisingPayload)
	}
	if scanResp != nil {
		t.Fatalf("expected no scan response needed for short name, got %v", scanResp)
	}
}

func TestEIR_LongNameOverflowsToScanResponse(t *testing.T) {
	b := &EIRBuilder{
		Name:    "Gymnasticon Indoor Bike 01",
		UUIDs16: [][2]byte{{0x18, 0x18}, {0x18, 0x16}, {0x18, 0x0d}},
	}
	adv, scanResp, err := b.BuildAdvertisement()
	if err != nil {
		t.Fatal(err)
	}
	if len(adv) > MaxAdvertisingPayload {
		t.Fatalf("adv length %d exceeds %d", len(adv), MaxAdvertisingPayload)
	}
	if scanResp == nil {
		t.Fatal("expected a scan response carrying the complete name")
	}
	if len(scanResp) > MaxAdvertisingPayload {
		t.Fatalf("scan response length %d exceeds %d", len(scanResp), MaxAdvertisingPayload)
	}
}
