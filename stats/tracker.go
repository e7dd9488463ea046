// Package stats tracks pipeline counters for the periodic stats line:
// received reports per encoding, suppression outcomes, uplink results.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Tracker counts bridge outcomes. Counters live in sync.Map + atomics so
// per-report increments don't fight over a mutex.
type Tracker struct {
	formatCounts sync.Map // format -> *atomic.Uint64
	received     atomic.Uint64
	duplicates   atomic.Uint64
	unmapped     atomic.Uint64
	uplinkOK     atomic.Uint64
	uplinkFailed atomic.Uint64
	start        atomic.Int64
}

// Snapshot is a point-in-time copy of the scalar counters.
type Snapshot struct {
	Received     uint64
	Duplicates   uint64
	Unmapped     uint64
	UplinkOK     uint64
	UplinkFailed uint64
	Uptime       time.Duration
}

// NewTracker creates a tracker with the uptime clock started.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementReceived counts one decoded position report of the given
// encoding (uncompressed, compressed, mic-e).
func (t *Tracker) IncrementReceived(format string) {
	t.received.Add(1)
	counter, _ := t.formatCounts.LoadOrStore(format, &atomic.Uint64{})
	counter.(*atomic.Uint64).Add(1)
}

// IncrementDuplicate counts one report suppressed by the dedup history.
func (t *Tracker) IncrementDuplicate() {
	t.duplicates.Add(1)
}

// IncrementUnmapped counts one report from a station no longer present in
// the filter map.
func (t *Tracker) IncrementUnmapped() {
	t.unmapped.Add(1)
}

// IncrementUplinkOK counts one accepted location update.
func (t *Tracker) IncrementUplinkOK() {
	t.uplinkOK.Add(1)
}

// IncrementUplinkFailed counts one rejected or undeliverable update.
func (t *Tracker) IncrementUplinkFailed() {
	t.uplinkFailed.Add(1)
}

// GetFormatCounts returns a copy of the per-encoding receive counts.
func (t *Tracker) GetFormatCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	t.formatCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

// GetSnapshot returns the scalar counters and the uptime since NewTracker.
func (t *Tracker) GetSnapshot() Snapshot {
	return Snapshot{
		Received:     t.received.Load(),
		Duplicates:   t.duplicates.Load(),
		Unmapped:     t.unmapped.Load(),
		UplinkOK:     t.uplinkOK.Load(),
		UplinkFailed: t.uplinkFailed.Load(),
		Uptime:       time.Since(time.Unix(0, t.start.Load())),
	}
}
