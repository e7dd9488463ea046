package bridge

import (
	"errors"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"aprsbridge/aprs"
	"aprsbridge/dedup"
	"aprsbridge/stats"
)

// feedConn is the slice of aprs.IS the listener needs; tests substitute a
// scripted connection.
type feedConn interface {
	ReadPacket() (*aprs.Packet, error)
	SendFilter(expr string) error
	Close() error
}

// uplink is the slice of traccar.Sender the listener needs.
type uplink interface {
	Send(query url.Values) error
}

// Accepted is one position report that passed dedup and filter mapping,
// handed to the accept hook after the uplink fanout (archive, MQTT mirror).
type Accepted struct {
	Time        time.Time
	Packet      *aprs.Packet
	DeviceIDs   []string
	Accuracy    int
	HasAccuracy bool
	Icon        string
}

// ListenerConfig wires a Listener to its collaborators. Dial defaults to
// aprs.Dial; OnAccept may be nil.
type ListenerConfig struct {
	Host     string
	Port     int
	Callsign string
	Passcode string
	AppName  string
	Version  string

	Dial     func(aprs.ISConfig) (feedConn, error)
	Uplink   uplink
	History  *dedup.History
	Tracker  *stats.Tracker
	OnAccept func(*Accepted)
}

// Listener owns one APRS-IS connection and forwards every accepted position
// report to the uplink, one call per mapped device id. Lifecycle is driven
// from outside: the Listener never reconnects on its own, a dead connection
// just ends the receive goroutine and the Reconciler notices via IsRunning.
type Listener struct {
	cfg ListenerConfig

	mu     sync.RWMutex
	filter FilterMap

	conn     feedConn
	running  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewListener creates a stopped listener for the given filter map.
func NewListener(cfg ListenerConfig, fm FilterMap) *Listener {
	if cfg.Dial == nil {
		cfg.Dial = func(isCfg aprs.ISConfig) (feedConn, error) {
			return aprs.Dial(isCfg)
		}
	}
	return &Listener{
		cfg:    cfg,
		filter: fm,
		done:   make(chan struct{}),
	}
}

// Start dials the feed with the filter expression derived from the map and
// spawns the receive goroutine. Dial failures are returned to the caller;
// the listener stays stopped.
func (l *Listener) Start() error {
	l.mu.RLock()
	fm := l.filter
	l.mu.RUnlock()
	if len(fm) == 0 {
		return errors.New("bridge: refusing to start with an empty filter")
	}
	conn, err := l.cfg.Dial(aprs.ISConfig{
		Host:       l.cfg.Host,
		Port:       l.cfg.Port,
		Callsign:   l.cfg.Callsign,
		Passcode:   l.cfg.Passcode,
		AppName:    l.cfg.AppName,
		AppVersion: l.cfg.Version,
		Filter:     fm.Expression(),
	})
	if err != nil {
		return err
	}
	l.conn = conn
	l.running.Store(true)
	go l.receiveLoop()
	return nil
}

// SetFilter pushes a new filter expression to the live connection and swaps
// the fanout map. Safe to call while the receive loop is draining packets.
func (l *Listener) SetFilter(fm FilterMap) error {
	if err := l.conn.SendFilter(fm.Expression()); err != nil {
		return err
	}
	l.mu.Lock()
	l.filter = fm
	l.mu.Unlock()
	log.Printf("Listener: filter updated (%s)", fm)
	return nil
}

// Stop closes the connection so a blocked read unblocks and the receive
// goroutine exits. Idempotent.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		if l.conn != nil {
			_ = l.conn.Close()
		}
	})
}

// IsRunning reports whether the receive goroutine is alive. False before
// Start, after Stop, and after a feed disconnect.
func (l *Listener) IsRunning() bool {
	return l.running.Load()
}

// Done is closed when the receive goroutine has terminated.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// receiveLoop drains the connection until it fails or is closed. Transport
// loss is a normal ending here, not an error to escalate.
func (l *Listener) receiveLoop() {
	defer func() {
		l.running.Store(false)
		close(l.done)
	}()
	for {
		pkt, err := l.conn.ReadPacket()
		if err != nil {
			log.Printf("Listener: feed connection closed: %v", err)
			return
		}
		l.handle(pkt, time.Now().UTC())
	}
}

// handle runs one packet through the pipeline: encoding check, dedup,
// filter lookup, uplink fanout, accept hook.
func (l *Listener) handle(pkt *aprs.Packet, now time.Time) {
	switch pkt.Format {
	case aprs.FormatUncompressed, aprs.FormatCompressed, aprs.FormatMicE:
	default:
		return
	}
	if l.cfg.Tracker != nil {
		l.cfg.Tracker.IncrementReceived(pkt.Format)
	}

	if l.cfg.History != nil && l.cfg.History.IsDuplicate(pkt.Raw, now) {
		if l.cfg.Tracker != nil {
			l.cfg.Tracker.IncrementDuplicate()
		}
		log.Printf("Listener: duplicate from %s suppressed", pkt.Src)
		return
	}

	l.mu.RLock()
	ids := l.filter[pkt.Src]
	l.mu.RUnlock()
	if len(ids) == 0 {
		// The station was dropped from the registry between polls.
		if l.cfg.Tracker != nil {
			l.cfg.Tracker.IncrementUnmapped()
		}
		return
	}

	base, accuracy, hasAccuracy := buildQuery(pkt)
	for _, id := range ids {
		query := cloneValues(base)
		query.Set("id", id)
		if err := l.cfg.Uplink.Send(query); err != nil {
			if l.cfg.Tracker != nil {
				l.cfg.Tracker.IncrementUplinkFailed()
			}
			log.Printf("Listener: uplink for %s (id=%s) failed: %v", pkt.Src, id, err)
			continue
		}
		if l.cfg.Tracker != nil {
			l.cfg.Tracker.IncrementUplinkOK()
		}
	}

	if l.cfg.OnAccept != nil {
		l.cfg.OnAccept(&Accepted{
			Time:        now,
			Packet:      pkt,
			DeviceIDs:   ids,
			Accuracy:    accuracy,
			HasAccuracy: hasAccuracy,
			Icon:        aprs.IconFor(pkt.SymbolTable, pkt.Symbol),
		})
	}
}

// buildQuery translates a packet into OsmAnd query parameters, minus the
// per-device id. Returns the derived accuracy so the accept hook doesn't
// recompute it.
func buildQuery(pkt *aprs.Packet) (query url.Values, accuracy int, hasAccuracy bool) {
	query = url.Values{}
	query.Set("lat", formatFloat(pkt.Latitude))
	query.Set("lon", formatFloat(pkt.Longitude))

	if pkt.HasAmbiguity {
		meters, err := aprs.Accuracy(pkt.Latitude, pkt.Longitude, pkt.Ambiguity)
		if err != nil {
			log.Printf("Listener: %v from %s, accuracy omitted", err, pkt.Src)
		} else {
			query.Set("accuracy", strconv.Itoa(meters))
			accuracy, hasAccuracy = meters, true
		}
	}
	if pkt.HasAltitude {
		query.Set("altitude", formatFloat(pkt.Altitude))
	}
	if pkt.HasSpeed {
		query.Set("speed", formatFloat(pkt.Speed))
	}
	if pkt.HasCourse {
		query.Set("bearing", strconv.Itoa(pkt.Course))
	}

	query.Set("APRS_from", pkt.Src)
	if pkt.Dst != "" {
		query.Set("APRS_to", pkt.Dst)
	}
	if len(pkt.Path) > 0 {
		query.Set("APRS_path", strings.Join(pkt.Path, ","))
	}
	if pkt.Via != "" {
		query.Set("APRS_via", pkt.Via)
	}
	if pkt.Symbol != "" {
		query.Set("APRS_symbol", pkt.Symbol)
	}
	if pkt.SymbolTable != "" {
		query.Set("APRS_symbol_table", pkt.SymbolTable)
	}
	if pkt.Comment != "" {
		query.Set("APRS_comment", pkt.Comment)
	}
	query.Set("APRS_icon", aprs.IconFor(pkt.SymbolTable, pkt.Symbol))
	return query, accuracy, hasAccuracy
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for key, vals := range v {
		out[key] = vals
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
