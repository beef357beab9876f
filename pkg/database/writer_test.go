package database

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
)

// Every view's tap goroutine shares one writer, so Write must be safe
// to call concurrently even when the queue is saturated.
func TestEventWriterConcurrentWriteFullQueue(t *testing.T) {
	w := &EventWriter{
		queue: make(chan archiveItem, 2),
		done:  make(chan struct{}),
	}

	// Fill the queue so every further Write takes the drop path.
	w.Write("firewall", models.Event{ID: "seed-1"})
	w.Write("firewall", models.Event{ID: "seed-2"})

	const writers = 3
	const perWriter = 200

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(view string) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				w.Write(view, models.Event{ID: "evt"})
			}
		}(fmt.Sprintf("view-%d", i))
	}
	wg.Wait()

	stats := w.Stats()
	if got := stats["events_dropped"].(uint64); got != writers*perWriter {
		t.Errorf("events_dropped = %d, want %d", got, writers*perWriter)
	}
	if got := stats["queue_len"].(int); got != 2 {
		t.Errorf("queue_len = %d, want 2 (queued events must survive drops)", got)
	}
}
