package main

import (
	"strings"
	"testing"
	"time"

	"aprsbridge/aprs"
	"aprsbridge/bridge"
	"aprsbridge/dedup"
	"aprsbridge/stats"
)

func acceptedFixture() *bridge.Accepted {
	return &bridge.Accepted{
		Time: time.Unix(1_700_000_000, 0).UTC(),
		Packet: &aprs.Packet{
			Src:         "N0CALL",
			Format:      aprs.FormatCompressed,
			Latitude:    45.0,
			Longitude:   -93.0,
			Speed:       12.5,
			HasSpeed:    true,
			Symbol:      ">",
			SymbolTable: "/",
			Comment:     "on the road",
			Path:        []string{"WIDE1-1", "qAR", "IGATE"},
		},
		DeviceIDs:   []string{"42", "43"},
		Accuracy:    1310,
		HasAccuracy: true,
		Icon:        "car",
	}
}

func TestPositionsForExpandsPerDevice(t *testing.T) {
	rows := positionsFor(acceptedFixture())
	if len(rows) != 2 {
		t.Fatalf("positionsFor returned %d rows, want 2", len(rows))
	}
	if rows[0].DeviceID != "42" || rows[1].DeviceID != "43" {
		t.Fatalf("device ids = %s, %s", rows[0].DeviceID, rows[1].DeviceID)
	}
	row := rows[0]
	if !row.HasAccuracy || row.Accuracy != 1310 {
		t.Fatalf("accuracy = %d (has=%v), want 1310", row.Accuracy, row.HasAccuracy)
	}
	if row.HasAltitude || row.HasBearing {
		t.Fatal("absent fields marked present")
	}
	if row.Path != "WIDE1-1,qAR,IGATE" {
		t.Fatalf("path = %q", row.Path)
	}
}

func TestUpdateForCarriesOptionalFieldsAsPointers(t *testing.T) {
	u := updateFor(acceptedFixture())
	if u.Accuracy == nil || *u.Accuracy != 1310 {
		t.Fatalf("accuracy pointer = %v", u.Accuracy)
	}
	if u.Speed == nil || *u.Speed != 12.5 {
		t.Fatalf("speed pointer = %v", u.Speed)
	}
	if u.Altitude != nil || u.Bearing != nil {
		t.Fatal("absent fields carried non-nil pointers")
	}
	if u.Symbol != "/>" {
		t.Fatalf("symbol = %q, want table+code", u.Symbol)
	}
}

func TestStatsLineFormat(t *testing.T) {
	tracker := stats.NewTracker()
	history := dedup.NewHistory()
	tracker.IncrementReceived(aprs.FormatCompressed)
	tracker.IncrementReceived(aprs.FormatMicE)
	tracker.IncrementUplinkOK()
	tracker.IncrementDuplicate()
	history.IsDuplicate("N0CALL>APRS:!4500.00N/09300.00W>", time.Unix(1_700_000_000, 0).UTC())

	line := statsLine(tracker, history)
	for _, want := range []string{
		"received 2",
		"compressed=1",
		"mic-e=1",
		"duplicates 1",
		"uplink ok 1",
		"1 stations in dedup window",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("stats line %q missing %q", line, want)
		}
	}
}
