package autodetect

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatch_FlywheelByName(t *testing.T) {
	kind, ok := Match(Advertisement{LocalName: "Flywheel Bike 42"})
	if !ok || kind != KindFlywheel {
		t.Fatalf("got (%v,%v), want (flywheel,true)", kind, ok)
	}
}

func TestMatch_FlywheelByAddressFilter(t *testing.T) {
	adv := Advertisement{LocalName: "unrelated", Address: "AA:BB:CC:DD:EE:FF", AddressFilter: "aa:bb:cc:dd:ee:ff"}
	kind, ok := Match(adv)
	if !ok || kind != KindFlywheel {
		t.Fatalf("got (%v,%v), want (flywheel,true)", kind, ok)
	}
}

func TestMatch_KeiserByMagic(t *testing.T) {
	kind, ok := Match(Advertisement{ManufacturerData: []byte{0x02, 0x01, 0x00}})
	if !ok || kind != KindKeiser {
		t.Fatalf("got (%v,%v), want (keiser,true)", kind, ok)
	}
}

func TestMatch_IC4ByName(t *testing.T) {
	kind, ok := Match(Advertisement{LocalName: "IC4-12345"})
	if !ok || kind != KindIC4 {
		t.Fatalf("got (%v,%v), want (ic4,true)", kind, ok)
	}
}

func TestMatch_NoMatch(t *testing.T) {
	_, ok := Match(Advertisement{LocalName: "RandomDevice"})
	if ok {
		t.Fatal("expected no match")
	}
}

func TestMatch_PriorityOrder_FlywheelBeforeKeiser(t *testing.T) {
	// A beacon that matches both Flywheel's address filter and
	// Keiser's manufacturer magic should resolve to Flywheel.
	adv := Advertisement{
		Address:          "11:22:33:44:55:66",
		AddressFilter:    "11:22:33:44:55:66",
		ManufacturerData: []byte{0x02, 0x01, 0x00},
	}
	kind, ok := Match(adv)
	if !ok || kind != KindFlywheel {
		t.Fatalf("got (%v,%v), want (flywheel,true)", kind, ok)
	}
}

func TestPelotonPathExists(t *testing.T) {
	if PelotonPathExists("") {
		t.Fatal("expected empty path to be false")
	}
	if PelotonPathExists("/nonexistent/path/for/peloton/test") {
		t.Fatal("expected nonexistent path to be false")
	}
	dir := t.TempDir()
	f := filepath.Join(dir, "ttyUSB0")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !PelotonPathExists(f) {
		t.Fatal("expected existing path to be true")
	}
}
