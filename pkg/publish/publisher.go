// Package publish fans accepted events out over Redis pub/sub so
// sibling dashboard instances can mirror the live views without
// polling the feed themselves.
package publish

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
)

const (
	queueSize      = 5000
	publishTimeout = 2 * time.Second
)

// DefaultChannelPrefix is the channel namespace events are published
// under; the view name is appended, e.g. "honeypot:events:firewall".
const DefaultChannelPrefix = "honeypot:events"

type item struct {
	view  string
	event models.Event
}

// wireEvent mirrors the feed's JSON shape so subscribers decode one
// format regardless of whether they poll or listen.
type wireEvent struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	SrcIP     string                 `json:"src_ip"`
	Country   string                 `json:"country,omitempty"`
	Latitude  *float64               `json:"latitude,omitempty"`
	Longitude *float64               `json:"longitude,omitempty"`
	DstIP     string                 `json:"dst_ip,omitempty"`
	DstPort   int                    `json:"dst_port,omitempty"`
	Protocol  string                 `json:"protocol,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Sensor    string                 `json:"sensor,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Publisher pushes accepted events to Redis from behind an engine's
// accepted tap. Like the archive writer it is best-effort: a full
// queue or a Redis hiccup drops the fan-out copy, never the on-screen
// event.
type Publisher struct {
	rdb    *redis.Client
	prefix string
	queue  chan item
	done   chan struct{}
	wg     sync.WaitGroup

	running atomic.Bool

	// Stats
	published uint64
	dropped   uint64
	errors    uint64
}

// NewPublisher creates a publisher on the given Redis client. prefix
// defaults to DefaultChannelPrefix when empty.
func NewPublisher(rdb *redis.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Publisher{
		rdb:    rdb,
		prefix: prefix,
		queue:  make(chan item, queueSize),
		done:   make(chan struct{}),
	}
}

// Start begins the background publish goroutine.
func (p *Publisher) Start() {
	if p.running.Swap(true) {
		return
	}
	p.wg.Add(1)
	go p.publishLoop()
	log.Printf("Redis publisher started (prefix=%s)", p.prefix)
}

// Stop shuts the publisher down, dropping anything still queued.
func (p *Publisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.done)
	p.wg.Wait()
	log.Printf("Redis publisher stopped (published=%d, dropped=%d, errors=%d)",
		atomic.LoadUint64(&p.published), atomic.LoadUint64(&p.dropped),
		atomic.LoadUint64(&p.errors))
}

// Publish queues an accepted event for fan-out on the view's channel.
func (p *Publisher) Publish(view string, event models.Event) {
	select {
	case p.queue <- item{view: view, event: event}:
	default:
		n := atomic.AddUint64(&p.dropped, 1)
		if n%1000 == 0 {
			log.Printf("Publish queue full, dropped %d events", n)
		}
	}
}

// Stats returns publisher statistics.
func (p *Publisher) Stats() map[string]interface{} {
	return map[string]interface{}{
		"published": atomic.LoadUint64(&p.published),
		"dropped":   atomic.LoadUint64(&p.dropped),
		"errors":    atomic.LoadUint64(&p.errors),
		"queue_len": len(p.queue),
		"queue_cap": cap(p.queue),
	}
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case it := <-p.queue:
			p.publishOne(it)
		}
	}
}

func (p *Publisher) publishOne(it item) {
	payload, err := json.Marshal(toWire(it.event))
	if err != nil {
		atomic.AddUint64(&p.errors, 1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	channel := p.prefix + ":" + it.view
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		n := atomic.AddUint64(&p.errors, 1)
		if n%100 == 1 {
			log.Printf("Redis publish to %s failed: %v", channel, err)
		}
		return
	}
	atomic.AddUint64(&p.published, 1)
}

func toWire(e models.Event) wireEvent {
	w := wireEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		SrcIP:     e.SrcIP,
		Country:   e.SrcCountry,
		DstIP:     e.DstIP,
		DstPort:   e.DstPort,
		Protocol:  e.Protocol,
		Action:    e.Action,
		Sensor:    e.Sensor,
		Details:   e.Details,
	}
	if e.HasCoords {
		lat, lon := e.SrcLat, e.SrcLon
		w.Latitude = &lat
		w.Longitude = &lon
	}
	return w
}
