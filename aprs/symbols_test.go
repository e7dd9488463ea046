package aprs

import "testing"

func TestIconForPrimaryTable(t *testing.T) {
	tests := []struct {
		table, symbol, want string
	}{
		{"/", ">", "car"},
		{"/", "[", "person"},
		{"/", "_", "weather"},
		{"/", "~", DefaultIcon},
	}
	for _, tt := range tests {
		if got := IconFor(tt.table, tt.symbol); got != tt.want {
			t.Fatalf("IconFor(%q, %q) = %q, want %q", tt.table, tt.symbol, got, tt.want)
		}
	}
}

func TestIconForAlternateAndOverlayTables(t *testing.T) {
	if got := IconFor(`\`, "#"); got != "digipeater" {
		t.Fatalf("IconFor(backslash, #) = %q, want digipeater", got)
	}
	// Overlay tables resolve against the alternate table.
	if got := IconFor("2", "#"); got != "digipeater" {
		t.Fatalf("IconFor(2, #) = %q, want digipeater", got)
	}
	if got := IconFor(`\`, ">"); got != DefaultIcon {
		t.Fatalf("IconFor(backslash, >) = %q, want %q", got, DefaultIcon)
	}
}

func TestIconForEmptySymbol(t *testing.T) {
	if got := IconFor("", ""); got != DefaultIcon {
		t.Fatalf("IconFor(empty) = %q, want %q", got, DefaultIcon)
	}
}
