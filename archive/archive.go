// Package archive persists forwarded positions to SQLite asynchronously.
// The hot path never blocks on the writer: backpressure drops archive
// writes, never uplink deliveries.
package archive

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"aprsbridge/config"

	_ "modernc.org/sqlite"
)

// Position is one forwarded location update, one row per device id.
type Position struct {
	Time     time.Time
	Station  string
	DeviceID string

	Latitude  float64
	Longitude float64

	Accuracy    int
	HasAccuracy bool
	Altitude    float64
	HasAltitude bool
	Speed       float64
	HasSpeed    bool
	Bearing     int
	HasBearing  bool

	Symbol      string
	SymbolTable string
	Icon        string
	Comment     string
	Path        string
	Format      string
}

// Writer batches position inserts and enforces retention.
type Writer struct {
	cfg       config.ArchiveConfig
	db        *sql.DB
	queue     chan *Position
	stop      chan struct{}
	dropCount atomic.Uint64
}

// NewWriter initializes the SQLite database and returns a writer; call
// Start to begin processing.
func NewWriter(cfg config.ArchiveConfig) (*Writer, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("pragma journal_mode=WAL; pragma synchronous=NORMAL; pragma busy_timeout=%d", cfg.BusyTimeoutMS)); err != nil {
		return nil, fmt.Errorf("archive: pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	qsize := cfg.QueueSize
	if qsize <= 0 {
		qsize = 1000
	}
	return &Writer{
		cfg:   cfg,
		db:    db,
		queue: make(chan *Position, qsize),
		stop:  make(chan struct{}),
	}, nil
}

// Start launches the insert and cleanup loops.
func (w *Writer) Start() {
	go w.insertLoop()
	go w.cleanupLoop()
}

// Stop closes the writer; best-effort flush.
func (w *Writer) Stop() {
	close(w.stop)
	_ = w.db.Close()
}

// Enqueue queues a position for archival without blocking; drops on a full
// queue.
func (w *Writer) Enqueue(p *Position) {
	if w == nil || p == nil {
		return
	}
	select {
	case w.queue <- p:
	default:
		w.dropCount.Add(1)
	}
}

// Dropped reports how many positions were discarded on a full queue.
func (w *Writer) Dropped() uint64 {
	return w.dropCount.Load()
}

func (w *Writer) insertLoop() {
	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	interval := time.Duration(w.cfg.BatchIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batch := make([]*Position, 0, batchSize)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			w.flush(batch)
			return
		case p := <-w.queue:
			batch = append(batch, p)
			if len(batch) >= batchSize {
				w.flush(batch)
				batch = batch[:0]
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(interval)
			}
		case <-timer.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(interval)
		}
	}
}

func (w *Writer) flush(batch []*Position) {
	if len(batch) == 0 {
		return
	}
	tx, err := w.db.Begin()
	if err != nil {
		log.Printf("Archive: begin tx: %v", err)
		return
	}
	stmt, err := tx.Prepare(`insert into positions(ts, station, device_id, lat, lon, accuracy, altitude, speed, bearing, symbol, symbol_table, icon, comment, path, format) values(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		log.Printf("Archive: prepare: %v", err)
		_ = tx.Rollback()
		return
	}
	for _, p := range batch {
		if p == nil {
			continue
		}
		if _, err := stmt.Exec(
			p.Time.UTC().Unix(),
			p.Station,
			p.DeviceID,
			p.Latitude,
			p.Longitude,
			nullableInt(p.Accuracy, p.HasAccuracy),
			nullableFloat(p.Altitude, p.HasAltitude),
			nullableFloat(p.Speed, p.HasSpeed),
			nullableInt(p.Bearing, p.HasBearing),
			p.Symbol,
			p.SymbolTable,
			p.Icon,
			p.Comment,
			p.Path,
			p.Format,
		); err != nil {
			log.Printf("Archive: insert failed: %v", err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		log.Printf("Archive: commit: %v", err)
	}
}

func (w *Writer) cleanupLoop() {
	interval := time.Duration(w.cfg.CleanupIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.cleanupOnce(time.Now().UTC())
		}
	}
}

func (w *Writer) cleanupOnce(now time.Time) {
	if w.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -w.cfg.RetentionDays).Unix()
	if _, err := w.db.Exec(`delete from positions where ts < ?`, cutoff); err != nil {
		log.Printf("Archive: cleanup: %v", err)
	}
}

func ensureSchema(db *sql.DB) error {
	schema := `
	create table if not exists positions (
		id integer primary key autoincrement,
		ts integer,
		station text,
		device_id text,
		lat real,
		lon real,
		accuracy integer,
		altitude real,
		speed real,
		bearing integer,
		symbol text,
		symbol_table text,
		icon text,
		comment text,
		path text,
		format text
	);
	create index if not exists idx_positions_ts on positions(ts);
	create index if not exists idx_positions_station_ts on positions(station, ts);
	create index if not exists idx_positions_device_ts on positions(device_id, ts);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("archive: schema: %w", err)
	}
	return nil
}

// Recent returns the most recent positions, newest first. Read-only helper
// for inspection tooling.
func (w *Writer) Recent(limit int) ([]*Position, error) {
	if w == nil || w.db == nil {
		return nil, fmt.Errorf("archive: writer is nil")
	}
	if limit <= 0 {
		return []*Position{}, nil
	}
	rows, err := w.db.Query(`select ts, station, device_id, lat, lon, accuracy, altitude, speed, bearing, symbol, symbol_table, icon, comment, path, format from positions order by ts desc, id desc limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query recent: %w", err)
	}
	defer rows.Close()

	results := make([]*Position, 0, limit)
	for rows.Next() {
		var (
			ts       int64
			p        Position
			accuracy sql.NullInt64
			altitude sql.NullFloat64
			speed    sql.NullFloat64
			bearing  sql.NullInt64
		)
		if err := rows.Scan(&ts, &p.Station, &p.DeviceID, &p.Latitude, &p.Longitude,
			&accuracy, &altitude, &speed, &bearing,
			&p.Symbol, &p.SymbolTable, &p.Icon, &p.Comment, &p.Path, &p.Format); err != nil {
			return nil, fmt.Errorf("archive: scan recent: %w", err)
		}
		p.Time = time.Unix(ts, 0).UTC()
		if accuracy.Valid {
			p.Accuracy, p.HasAccuracy = int(accuracy.Int64), true
		}
		if altitude.Valid {
			p.Altitude, p.HasAltitude = altitude.Float64, true
		}
		if speed.Valid {
			p.Speed, p.HasSpeed = speed.Float64, true
		}
		if bearing.Valid {
			p.Bearing, p.HasBearing = int(bearing.Int64), true
		}
		results = append(results, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate recent: %w", err)
	}
	return results, nil
}

func nullableInt(v int, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

func nullableFloat(v float64, ok bool) any {
	if !ok {
		return nil
	}
	return v
}
