// Package bridge connects the APRS-IS feed to the tracking platform: the
// Listener forwards deduplicated position reports as location updates, and
// the Reconciler keeps the Listener's station filter synchronized with the
// platform's device registry.
package bridge

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"aprsbridge/aprs"
	"aprsbridge/traccar"
)

// FilterMap maps a station callsign to the device unique ids that should
// receive its position reports. A callsign feeds several devices when more
// than one registry entry references it.
type FilterMap map[string][]string

// attributeKeyPattern builds the case-insensitive matcher for callsign
// attributes: the configured keyword with an optional single digit suffix,
// so "aprs", "aprs1" ... "aprs9" all bind callsigns to one device.
func attributeKeyPattern(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(keyword) + `[0-9]?$`)
}

// DeriveFilterMap scans every enabled device's attributes for keys matching
// the keyword pattern and collects the valid callsigns they carry. Values
// failing the callsign grammar are skipped; device order is preserved in
// the id lists.
func DeriveFilterMap(devices []traccar.Device, keyword string) FilterMap {
	pattern := attributeKeyPattern(keyword)
	fm := make(FilterMap)
	for _, dev := range devices {
		if dev.Disabled {
			continue
		}
		for key, value := range dev.Attributes {
			if !pattern.MatchString(key) {
				continue
			}
			raw, ok := value.(string)
			if !ok {
				continue
			}
			call := aprs.NormalizeCallsign(raw)
			if !aprs.IsValidCallsign(call) {
				continue
			}
			fm[call] = append(fm[call], dev.UniqueID)
		}
	}
	return fm
}

// Equal reports deep value equality: same callsigns, same device id lists
// in the same order.
func (fm FilterMap) Equal(other FilterMap) bool {
	if len(fm) != len(other) {
		return false
	}
	for call, ids := range fm {
		otherIDs, ok := other[call]
		if !ok || len(ids) != len(otherIDs) {
			return false
		}
		for i, id := range ids {
			if otherIDs[i] != id {
				return false
			}
		}
	}
	return true
}

// Expression renders the APRS-IS buddy filter for the mapped stations,
// callsigns sorted ascending so identical maps always produce identical
// filter strings.
func (fm FilterMap) Expression() string {
	calls := make([]string, 0, len(fm))
	for call := range fm {
		calls = append(calls, call)
	}
	sort.Strings(calls)
	return "b/" + strings.Join(calls, "/")
}

// String summarizes the map for log lines.
func (fm FilterMap) String() string {
	return fmt.Sprintf("%d stations -> %d bindings", len(fm), fm.bindings())
}

func (fm FilterMap) bindings() int {
	n := 0
	for _, ids := range fm {
		n += len(ids)
	}
	return n
}
