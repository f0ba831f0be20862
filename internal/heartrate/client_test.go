package heartrate

import "testing"

func TestContainsFold(t *testing.T) {
	if !containsFold("Polar H10", "polar") {
		t.Fatal("expected case-insensitive substring match")
	}
	if containsFold("Polar H10", "garmin") {
		t.Fatal("expected no match")
	}
	if !containsFold("anything", "") {
		t.Fatal("expected empty substring to always match")
	}
}

func TestOnNotify_PushesSampleFromSecondByte(t *testing.T) {
	c := New(nil, "", nil)
	c.onNotify([]byte{0x00, 142})
	select {
	case s := <-c.samples:
		if s.Bpm != 142 {
			t.Fatalf("bpm = %d, want 142", s.Bpm)
		}
	default:
		t.Fatal("expected a sample to be pushed")
	}
}

func TestOnNotify_IgnoresShortBuffer(t *testing.T) {
	c := New(nil, "", nil)
	c.onNotify([]byte{0x00})
	select {
	case <-c.samples:
		t.Fatal("did not expect a sample for a short buffer")
	default:
	}
}
