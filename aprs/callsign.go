package aprs

import (
	"regexp"
	"strings"
)

// callsignPattern matches an amateur callsign with an optional SSID suffix,
// e.g. N0CALL, OH7RDA, S53ZO-9, W1AW-RX.
var callsignPattern = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z]{1,3}(-[A-Z0-9]{1,2})?$`)

// NormalizeCallsign trims surrounding whitespace and uppercases the value.
func NormalizeCallsign(call string) string {
	return strings.ToUpper(strings.TrimSpace(call))
}

// IsValidCallsign reports whether the normalized value looks like an amateur
// callsign, optionally carrying an SSID (N0CALL-9).
func IsValidCallsign(call string) bool {
	normalized := NormalizeCallsign(call)
	if normalized == "" {
		return false
	}
	return callsignPattern.MatchString(normalized)
}
