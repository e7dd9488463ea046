// Command aprsbridge forwards APRS-IS position reports to a Traccar server.
// A reconciliation loop polls the Traccar device registry for callsign
// attributes and keeps a single APRS-IS listener subscribed to exactly those
// stations; accepted reports are deduplicated and posted to the OsmAnd
// ingest endpoint, one update per mapped device.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"aprsbridge/archive"
	"aprsbridge/bridge"
	"aprsbridge/config"
	"aprsbridge/dedup"
	"aprsbridge/mqttpub"
	"aprsbridge/stats"
	"aprsbridge/traccar"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// Version is the application version advertised in the APRS-IS login.
const Version = "1.0.0"

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fanout, logErr := setupLogging(cfg.Logging, os.Stdout)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if logErr != nil {
		log.Printf("Logging: file sink unavailable: %v", logErr)
	}

	log.Printf("APRS bridge v%s starting (config from %s)", Version, cfg.LoadedFrom)
	if isStdoutTTY() {
		cfg.Print()
	}

	tracker := stats.NewTracker()
	history := dedup.NewHistory()
	sender := traccar.NewSender(cfg.Traccar.OsmAndURL)
	registry := traccar.NewRegistry(cfg.Traccar.APIURL, cfg.Traccar.User, cfg.Traccar.Password)

	var writer *archive.Writer
	if cfg.Archive.Enabled {
		writer, err = archive.NewWriter(cfg.Archive)
		if err != nil {
			log.Fatalf("Archive: %v", err)
		}
		writer.Start()
		log.Printf("Archive: writing positions to %s", cfg.Archive.DBPath)
	}

	var publisher *mqttpub.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqttpub.NewPublisher(cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.TopicPrefix, cfg.MQTT.Username, cfg.MQTT.Password)
		if err := publisher.Connect(); err != nil {
			log.Printf("MQTT: mirror disabled: %v", err)
			publisher = nil
		}
	}

	onAccept := func(a *bridge.Accepted) {
		if writer != nil {
			for _, p := range positionsFor(a) {
				writer.Enqueue(p)
			}
		}
		if publisher != nil {
			publisher.Publish(updateFor(a))
		}
	}

	factory := func(fm bridge.FilterMap) bridge.ListenerHandle {
		return bridge.NewListener(bridge.ListenerConfig{
			Host:     cfg.APRS.Host,
			Port:     cfg.APRS.Port,
			Callsign: cfg.APRS.Callsign,
			Passcode: cfg.APRS.Passcode,
			AppName:  "aprsbridge",
			Version:  Version,
			Uplink:   sender,
			History:  history,
			Tracker:  tracker,
			OnAccept: onAccept,
		}, fm)
	}
	reconciler := bridge.NewReconciler(registry, cfg.Bridge.DeviceKeyword,
		time.Duration(cfg.Bridge.PollIntervalSeconds)*time.Second, factory)
	reconciler.Start()

	stopStats := make(chan struct{})
	go statsLoop(tracker, history, fanout, time.Duration(cfg.Stats.IntervalSeconds)*time.Second, stopStats)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received %s, shutting down...", sig)

	close(stopStats)
	reconciler.Stop()
	if writer != nil {
		writer.Stop()
	}
	if publisher != nil {
		publisher.Stop()
	}
	log.Printf("APRS bridge stopped")
}

// positionsFor expands one accepted report into archive rows, one per
// destination device.
func positionsFor(a *bridge.Accepted) []*archive.Position {
	pkt := a.Packet
	rows := make([]*archive.Position, 0, len(a.DeviceIDs))
	for _, id := range a.DeviceIDs {
		rows = append(rows, &archive.Position{
			Time:        a.Time,
			Station:     pkt.Src,
			DeviceID:    id,
			Latitude:    pkt.Latitude,
			Longitude:   pkt.Longitude,
			Accuracy:    a.Accuracy,
			HasAccuracy: a.HasAccuracy,
			Altitude:    pkt.Altitude,
			HasAltitude: pkt.HasAltitude,
			Speed:       pkt.Speed,
			HasSpeed:    pkt.HasSpeed,
			Bearing:     pkt.Course,
			HasBearing:  pkt.HasCourse,
			Symbol:      pkt.Symbol,
			SymbolTable: pkt.SymbolTable,
			Icon:        a.Icon,
			Comment:     pkt.Comment,
			Path:        strings.Join(pkt.Path, ","),
			Format:      pkt.Format,
		})
	}
	return rows
}

// updateFor builds the MQTT mirror document for one accepted report.
func updateFor(a *bridge.Accepted) *mqttpub.Update {
	pkt := a.Packet
	u := &mqttpub.Update{
		Time:      a.Time.Unix(),
		Station:   pkt.Src,
		DeviceIDs: a.DeviceIDs,
		Latitude:  pkt.Latitude,
		Longitude: pkt.Longitude,
		Symbol:    pkt.SymbolTable + pkt.Symbol,
		Icon:      a.Icon,
		Comment:   pkt.Comment,
		Format:    pkt.Format,
	}
	if a.HasAccuracy {
		accuracy := a.Accuracy
		u.Accuracy = &accuracy
	}
	if pkt.HasAltitude {
		altitude := pkt.Altitude
		u.Altitude = &altitude
	}
	if pkt.HasSpeed {
		speed := pkt.Speed
		u.Speed = &speed
	}
	if pkt.HasCourse {
		bearing := pkt.Course
		u.Bearing = &bearing
	}
	return u
}

// statsLoop emits the periodic counters line: to the log file when file
// logging is active, to the console otherwise.
func statsLoop(tracker *stats.Tracker, history *dedup.History, fanout *logFanout, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			line := statsLine(tracker, history)
			if fanout.HasFileSink() {
				fanout.WriteFileOnlyLine(line, time.Now().UTC())
			} else {
				log.Print(line)
			}
		}
	}
}

// statsLine renders one human-readable counters summary.
func statsLine(tracker *stats.Tracker, history *dedup.History) string {
	snap := tracker.GetSnapshot()
	_, _, stations := history.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "Stats: received %s", humanize.Comma(int64(snap.Received)))
	if formats := tracker.GetFormatCounts(); len(formats) > 0 {
		names := make([]string, 0, len(formats))
		for name := range formats {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, humanize.Comma(int64(formats[name]))))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, ", duplicates %s, unmapped %s, uplink ok %s / failed %s, %d stations in dedup window",
		humanize.Comma(int64(snap.Duplicates)),
		humanize.Comma(int64(snap.Unmapped)),
		humanize.Comma(int64(snap.UplinkOK)),
		humanize.Comma(int64(snap.UplinkFailed)),
		stations)
	return b.String()
}
