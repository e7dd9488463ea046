package mqttpub

import (
	"strings"
	"testing"
)

func TestUpdateMarshalOmitsAbsentFields(t *testing.T) {
	accuracy := 1310
	u := &Update{
		Time:      1_700_000_000,
		Station:   "N0CALL",
		DeviceIDs: []string{"42"},
		Latitude:  45.0,
		Longitude: -93.0,
		Accuracy:  &accuracy,
		Format:    "compressed",
	}
	payload, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	s := string(payload)
	for _, want := range []string{`"station":"N0CALL"`, `"accuracy":1310`, `"lat":45`, `"lon":-93`} {
		if !strings.Contains(s, want) {
			t.Fatalf("payload %s missing %s", s, want)
		}
	}
	for _, absent := range []string{"altitude", "speed", "bearing", "symbol", "comment"} {
		if strings.Contains(s, absent) {
			t.Fatalf("payload %s carries absent field %s", s, absent)
		}
	}
}

func TestPublishWithoutConnectionIsNoOp(t *testing.T) {
	p := NewPublisher("broker.example.org", 1883, "aprsbridge/positions", "", "")
	// Must not panic before Connect.
	p.Publish(&Update{Station: "N0CALL"})
	p.Stop()
	if p.IsConnected() {
		t.Fatal("publisher reports connected without a broker")
	}
}
