package database

import (
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
	_ "github.com/lib/pq"
)

const (
	batchSize     = 50
	batchInterval = 2 * time.Second
	queueSize     = 10000
)

// archiveItem carries one accepted event plus the view it was accepted
// into; the same event can legitimately be archived once per view.
type archiveItem struct {
	view  string
	event models.Event
}

// EventWriter archives engine-accepted events to PostgreSQL in batches.
// It sits behind an engine's accepted tap and is entirely optional: a
// full queue drops the archive copy, never the on-screen event.
type EventWriter struct {
	db      *sql.DB
	queue   chan archiveItem
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	// Stats
	eventsWritten  uint64
	eventsDropped  uint64
	batchesWritten uint64
}

// NewEventWriter connects to PostgreSQL and creates an archive writer.
func NewEventWriter(databaseURL string) (*EventWriter, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("Connected to PostgreSQL database")

	return &EventWriter{
		db:    db,
		queue: make(chan archiveItem, queueSize),
		done:  make(chan struct{}),
	}, nil
}

// Start begins the background writer goroutine.
func (w *EventWriter) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.writerLoop()
	log.Printf("Event archive writer started")
}

// Stop gracefully shuts down the writer, flushing remaining events.
func (w *EventWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	w.db.Close()
	log.Printf("Event archive writer stopped (written=%d, dropped=%d, batches=%d)",
		atomic.LoadUint64(&w.eventsWritten), atomic.LoadUint64(&w.eventsDropped),
		atomic.LoadUint64(&w.batchesWritten))
}

// Write queues an accepted event for batch archiving.
func (w *EventWriter) Write(view string, event models.Event) {
	select {
	case w.queue <- archiveItem{view: view, event: event}:
	default:
		// Queue full, drop the archive copy. One tap goroutine per
		// view shares this writer, so the counter must be atomic.
		n := atomic.AddUint64(&w.eventsDropped, 1)
		if n%1000 == 0 {
			log.Printf("Archive queue full, dropped %d events", n)
		}
	}
}

// Stats returns writer statistics.
func (w *EventWriter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"events_written":  atomic.LoadUint64(&w.eventsWritten),
		"events_dropped":  atomic.LoadUint64(&w.eventsDropped),
		"batches_written": atomic.LoadUint64(&w.batchesWritten),
		"queue_len":       len(w.queue),
		"queue_cap":       cap(w.queue),
	}
}

func (w *EventWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]archiveItem, 0, batchSize)
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case item := <-w.queue:
			batch = append(batch, item)
			if len(batch) >= batchSize {
				w.writeBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.writeBatch(batch)
				batch = batch[:0]
			}

		case <-w.done:
			// Flush remaining events
			close(w.queue)
			for item := range w.queue {
				batch = append(batch, item)
				if len(batch) >= batchSize {
					w.writeBatch(batch)
					batch = batch[:0]
				}
			}
			if len(batch) > 0 {
				w.writeBatch(batch)
			}
			return
		}
	}
}

func (w *EventWriter) writeBatch(batch []archiveItem) {
	if len(batch) == 0 {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		log.Printf("Failed to begin transaction: %v", err)
		return
	}
	defer tx.Rollback()

	written := 0
	for _, item := range batch {
		if w.writeEvent(tx, item) {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("Failed to commit batch: %v", err)
		return
	}

	atomic.AddUint64(&w.eventsWritten, uint64(written))
	atomic.AddUint64(&w.batchesWritten, 1)
}

func (w *EventWriter) writeEvent(tx *sql.Tx, item archiveItem) bool {
	e := item.event

	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	// The engine already deduplicates per view, but a restart replays
	// feed history; the conflict target keeps the archive exact-once.
	_, err = tx.Exec(`
		INSERT INTO honeypot_events (
			event_id, view, occurred_at,
			src_ip, src_country, src_lat, src_lon,
			dst_ip, dst_port, protocol, action, sensor,
			details, archived_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (event_id, view) DO NOTHING
	`,
		e.ID,
		item.view,
		e.Timestamp,
		e.SrcIP,
		e.SrcCountry,
		e.SrcLat,
		e.SrcLon,
		e.DstIP,
		e.DstPort,
		e.Protocol,
		e.Action,
		e.Sensor,
		detailsJSON,
		time.Now(),
	)

	if err != nil {
		log.Printf("Failed to insert event %s: %v", e.ID, err)
		return false
	}

	return true
}
