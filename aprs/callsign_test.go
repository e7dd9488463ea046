package aprs

import "testing"

func TestNormalizeCallsignUppercasesAndTrims(t *testing.T) {
	input := "  kd9abc-1 "
	want := "KD9ABC-1"
	if got := NormalizeCallsign(input); got != want {
		t.Fatalf("NormalizeCallsign(%q) = %q, want %q", input, got, want)
	}
}

func TestIsValidCallsignAcceptsPlainAndSSID(t *testing.T) {
	for _, call := range []string{"N0CALL", "KD9ABC-1", "s53zo", "W1AW-RX", "OH7RDA", "G4ABC-15"} {
		if !IsValidCallsign(call) {
			t.Fatalf("IsValidCallsign(%q) = false, want true", call)
		}
	}
}

func TestIsValidCallsignRejectsMalformed(t *testing.T) {
	for _, call := range []string{"", "NOCALL", "123", "N0", "N0CALL-", "N0CALL-ABC", "WIDE1-1", "1ABC"} {
		if IsValidCallsign(call) {
			t.Fatalf("IsValidCallsign(%q) = true, want false", call)
		}
	}
}
