package bridge

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"aprsbridge/aprs"
	"aprsbridge/dedup"
	"aprsbridge/stats"
	"aprsbridge/traccar"
)

// TestRegistryToUplinkEndToEnd drives the whole chain with real HTTP
// clients: registry poll -> filter map -> listener -> uplink POST.
func TestRegistryToUplinkEndToEnd(t *testing.T) {
	queries := make(chan url.Values, 4)
	uplinkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer uplinkSrv.Close()

	registrySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"name":"bike","uniqueId":"42","disabled":false,"attributes":{"aprs":"N0CALL"}}]`))
	}))
	defer registrySrv.Close()

	conn := newFakeConn()
	factory := func(fm FilterMap) ListenerHandle {
		return NewListener(ListenerConfig{
			Callsign: "N0CALL",
			Uplink:   traccar.NewSender(uplinkSrv.URL),
			History:  dedup.NewHistory(),
			Tracker:  stats.NewTracker(),
			Dial: func(aprs.ISConfig) (feedConn, error) {
				return conn, nil
			},
		}, fm)
	}
	r := NewReconciler(traccar.NewRegistry(registrySrv.URL, "admin", "secret"), "aprs", time.Hour, factory)

	r.tick()
	defer r.Stop()
	if r.listener == nil || !r.listener.IsRunning() {
		t.Fatal("listener not running after first poll")
	}

	conn.packets <- &aprs.Packet{
		Raw:          "N0CALL>APRS,qAR,IGATE:compressed-test",
		Src:          "N0CALL",
		Format:       aprs.FormatCompressed,
		Latitude:     45.0,
		Longitude:    -93.0,
		Ambiguity:    2,
		HasAmbiguity: true,
	}

	select {
	case q := <-queries:
		for key, want := range map[string]string{
			"id":       "42",
			"lat":      "45",
			"lon":      "-93",
			"accuracy": "1310",
		} {
			if got := q.Get(key); got != want {
				t.Fatalf("uplink query %s = %q, want %q", key, got, want)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no uplink call arrived")
	}
}
