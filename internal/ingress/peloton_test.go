package ingress

import "testing"

func TestDecodeBCDDigits_FiveDigit(t *testing.T) {
	body := []byte{'0' + 0, '0' + 1, '0' + 2, '0' + 3, '0' + 4}
	got, err := DecodeBCDDigits(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1234 {
		t.Fatalf("got %d, want 1234", got)
	}
}

func TestDecodeBCDDigits_PowerImpliedDecimal(t *testing.T) {
	// "01234" decodes to 1234; power divides by 10 for 123.4W -> 123.
	got, err := DecodeBCDDigits([]byte{'0', '1', '2', '3', '4'})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got/10 != 123 {
		t.Fatalf("power digits/10 = %d, want 123", got/10)
	}
}

func TestDecodeBCDDigits_RejectsNonDigit(t *testing.T) {
	if _, err := DecodeBCDDigits([]byte{'0', 'x', '2'}); err == nil {
		t.Fatal("expected error for non-digit byte")
	}
}

func TestDecodeBCDDigits_RejectsEmpty(t *testing.T) {
	if _, err := DecodeBCDDigits(nil); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestStripDelimiters(t *testing.T) {
	got := stripDelimiters([]byte{0xF6, 0xF6, '1', '2', '3'})
	if string(got) != "123" {
		t.Fatalf("got %q, want %q", got, "123")
	}
}
