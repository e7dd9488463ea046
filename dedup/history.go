// Package dedup implements the duplicate-suppression history that sits in
// front of the uplink: a report is a duplicate when the same station sent the
// same payload over the same relay path within the retention window.
package dedup

import (
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// Window is the retention span for seen reports.
const Window = 1800 * time.Second

// History tracks recently seen reports per station. Payload and relay path
// are stored as xxh3 hashes; expired entries are purged lazily whenever the
// owning station's bucket is touched, there is no background sweep.
type History struct {
	mu         sync.Mutex
	stations   map[string]map[uint64]map[uint64]time.Time
	processed  uint64
	duplicates uint64
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		stations: make(map[string]map[uint64]map[uint64]time.Time),
	}
}

// IsDuplicate records the observation and reports whether the same station
// already sent this payload over this relay path within the window. The
// caller supplies now so tests can drive the clock.
func (h *History) IsDuplicate(raw string, now time.Time) bool {
	station, path, payload := splitRaw(raw)
	payloadKey := xxh3.HashString(payload)
	pathKey := xxh3.HashString(path)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.processed++

	if bucket := h.stations[station]; bucket != nil {
		h.purgeLocked(station, bucket, now)
	}
	bucket := h.stations[station]
	if bucket == nil {
		h.stations[station] = map[uint64]map[uint64]time.Time{
			payloadKey: {pathKey: now},
		}
		return false
	}
	paths, seen := bucket[payloadKey]
	if !seen {
		bucket[payloadKey] = map[uint64]time.Time{pathKey: now}
		return false
	}
	if _, seenPath := paths[pathKey]; !seenPath {
		// A known payload arriving over a new relay path is a digipeater
		// re-transmission, not a repeat. The path map is reset to the new
		// path rather than extended, so a payload alternating between two
		// paths never reads as a duplicate.
		bucket[payloadKey] = map[uint64]time.Time{pathKey: now}
		return false
	}
	paths[pathKey] = now
	h.duplicates++
	return true
}

// Stats returns the processed and duplicate counters plus the number of
// stations currently held.
func (h *History) Stats() (processed, duplicates uint64, stations int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.processed, h.duplicates, len(h.stations)
}

// purgeLocked drops expired entries from one station bucket, removing
// emptied payload maps and, when nothing is left, the bucket itself.
// The caller holds mu.
func (h *History) purgeLocked(station string, bucket map[uint64]map[uint64]time.Time, now time.Time) {
	for payloadKey, paths := range bucket {
		for pathKey, seen := range paths {
			if now.Sub(seen) > Window {
				delete(paths, pathKey)
			}
		}
		if len(paths) == 0 {
			delete(bucket, payloadKey)
		}
	}
	if len(bucket) == 0 {
		delete(h.stations, station)
	}
}

// splitRaw separates a raw report into its dedup key parts: the station
// before '>', the relay path between '>' and the first ':', and the payload
// after that colon.
func splitRaw(raw string) (station, path, payload string) {
	head := raw
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		head, payload = raw[:i], raw[i+1:]
	}
	if i := strings.IndexByte(head, '>'); i >= 0 {
		station, path = head[:i], head[i+1:]
	} else {
		station = head
	}
	return station, path, payload
}
