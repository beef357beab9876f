package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
)

// Defaults applied to zero-valued optional config fields.
const (
	DefaultFrameInterval  = 50 * time.Millisecond
	DefaultBufferCapacity = 150
	DefaultDedupCapacity  = 1000
	DefaultTopCategories  = 10
)

// FetchFunc returns a batch of recent events from the feed. Batches may
// overlap with previous ones; duplicate suppression is the engine's
// job. Errors are isolated to one polling cycle.
type FetchFunc func(ctx context.Context) ([]models.Event, error)

// Config controls one engine instance. PollInterval and EventTTL are
// required; the remaining fields fall back to defaults when zero.
type Config struct {
	Name          string        // log prefix, usually the view name
	PollInterval  time.Duration // feed polling cadence
	EventTTL      time.Duration // visible lifetime of one event
	FrameInterval time.Duration // animation clock cadence

	BufferCapacity int // max simultaneously visible events
	DedupCapacity  int // seen-set size that triggers a trim
	DedupRetain    int // seen-set size after a trim, default capacity/2
	TopCategories  int // rows in the stats top-N breakdown
}

func (c *Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.EventTTL <= 0 {
		return fmt.Errorf("event TTL must be positive, got %v", c.EventTTL)
	}
	if c.FrameInterval < 0 {
		return fmt.Errorf("frame interval must not be negative, got %v", c.FrameInterval)
	}
	if c.FrameInterval == 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.BufferCapacity < 0 {
		return fmt.Errorf("buffer capacity must not be negative, got %d", c.BufferCapacity)
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.DedupCapacity < 0 {
		return fmt.Errorf("dedup capacity must not be negative, got %d", c.DedupCapacity)
	}
	if c.DedupCapacity == 0 {
		c.DedupCapacity = DefaultDedupCapacity
	}
	if c.DedupRetain == 0 {
		c.DedupRetain = c.DedupCapacity / 2
	}
	if c.DedupRetain <= 0 || c.DedupRetain >= c.DedupCapacity {
		return fmt.Errorf("dedup retain must be in (0, %d), got %d", c.DedupCapacity, c.DedupRetain)
	}
	if c.TopCategories == 0 {
		c.TopCategories = DefaultTopCategories
	}
	return nil
}

// Engine runs one dashboard view: it polls the feed, filters out
// already-seen events, keeps the accepted ones in a decaying visual
// buffer and counts them into never-evicted aggregate statistics. The
// polling loop and the animation clock run on independent cadences;
// pausing the poller does not stop the clock, so a paused view still
// fades out and eventually empties.
//
// An engine is built per active view and torn down with it. Stop is
// idempotent and leaves no goroutine that could touch state afterwards.
type Engine struct {
	cfg      Config
	fetch    FetchFunc
	accepted chan<- models.Event // optional tap, non-blocking sends

	mu     sync.Mutex
	seen   *SeenSet
	buffer *Buffer
	stats  *Accumulator

	running atomic.Bool
	paused  atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Counters
	polls       uint64
	fetchErrors uint64
	acceptedN   uint64
	duplicates  uint64
	malformed   uint64
}

// New validates cfg and creates a stopped engine. accepted may be nil;
// when set, every accepted event is offered to it with a non-blocking
// send so slow sinks never stall ingestion.
func New(cfg Config, fetch FetchFunc, accepted chan<- models.Event) (*Engine, error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetch function is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return &Engine{
		cfg:      cfg,
		fetch:    fetch,
		accepted: accepted,
		seen:     NewSeenSet(cfg.DedupCapacity, cfg.DedupRetain),
		buffer:   NewBuffer(cfg.BufferCapacity, cfg.EventTTL),
		stats:    NewAccumulator(time.Now()),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the polling loop and the animation clock. The first
// poll fires immediately. Calling Start on a running or stopped engine
// is a no-op; a remounted view constructs a fresh engine.
func (e *Engine) Start() {
	if e.running.Swap(true) {
		log.Printf("[%s] engine already running", e.cfg.Name)
		return
	}
	select {
	case <-e.done:
		// Stopped engines stay stopped; a remount builds a new one.
		e.running.Store(false)
		return
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(2)
	go e.pollLoop(ctx)
	go e.frameLoop()
	log.Printf("[%s] engine started (poll=%v ttl=%v frame=%v)",
		e.cfg.Name, e.cfg.PollInterval, e.cfg.EventTTL, e.cfg.FrameInterval)
}

// Stop cancels any in-flight fetch, stops both loops and waits for
// them. Safe to call multiple times.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	e.cancel()
	close(e.done)
	e.wg.Wait()
	log.Printf("[%s] engine stopped (polls=%d accepted=%d duplicates=%d)",
		e.cfg.Name, atomic.LoadUint64(&e.polls),
		atomic.LoadUint64(&e.acceptedN), atomic.LoadUint64(&e.duplicates))
}

// Pause halts poll scheduling without touching accumulated state. The
// animation clock keeps running, so buffered events keep decaying.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Resume restarts poll scheduling after a Pause. Already-accepted
// identifiers stay in the seen-set, so overlapping batches fetched
// after the gap are not re-processed.
func (e *Engine) Resume() {
	e.paused.Store(false)
}

// Paused reports whether poll scheduling is currently halted.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// Snapshot returns a copy of the currently visible events, in
// insertion order, for rendering.
func (e *Engine) Snapshot() []models.VisibleEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Snapshot()
}

// Stats returns a copy of the cumulative aggregate statistics.
func (e *Engine) Stats() models.AggregateStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.Snapshot(e.cfg.TopCategories)
}

// Reset clears the seen-set, the buffer and the aggregates in one
// critical section. Called when the owning view is (re)activated, e.g.
// on a time-range change.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen.Reset()
	e.buffer.Reset()
	e.stats.Reset(time.Now())
}

// LoopCounters is loop-level bookkeeping, exposed for logging and
// metrics. Unlike AggregateStats these survive a Reset.
type LoopCounters struct {
	Running     bool   `json:"running"`
	Paused      bool   `json:"paused"`
	Polls       uint64 `json:"polls"`
	FetchErrors uint64 `json:"fetch_errors"`
	Accepted    uint64 `json:"accepted"`
	Duplicates  uint64 `json:"duplicates"`
	Malformed   uint64 `json:"malformed"`
	Buffered    int    `json:"buffered"`
	SeenIDs     int    `json:"seen_ids"`
}

// Counters returns current loop-level bookkeeping.
func (e *Engine) Counters() LoopCounters {
	e.mu.Lock()
	buffered := e.buffer.Len()
	seen := e.seen.Len()
	e.mu.Unlock()

	return LoopCounters{
		Running:     e.running.Load(),
		Paused:      e.paused.Load(),
		Polls:       atomic.LoadUint64(&e.polls),
		FetchErrors: atomic.LoadUint64(&e.fetchErrors),
		Accepted:    atomic.LoadUint64(&e.acceptedN),
		Duplicates:  atomic.LoadUint64(&e.duplicates),
		Malformed:   atomic.LoadUint64(&e.malformed),
		Buffered:    buffered,
		SeenIDs:     seen,
	}
}

func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	e.pollOnce(ctx)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			if e.paused.Load() {
				continue
			}
			e.pollOnce(ctx)
		}
	}
}

// pollOnce runs one fetch-and-ingest cycle. Fetch failures are logged
// and do not stop the loop.
func (e *Engine) pollOnce(ctx context.Context) {
	batch, err := e.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // shutting down
		}
		atomic.AddUint64(&e.fetchErrors, 1)
		log.Printf("[%s] fetch failed: %v", e.cfg.Name, err)
		return
	}
	atomic.AddUint64(&e.polls, 1)
	e.ingest(batch)
}

// ingest filters a batch through the seen-set and, for each accepted
// event, inserts it into the buffer and records it into the aggregates
// inside one critical section. A reader holding a snapshot of both
// therefore never sees a counted event that was never visible.
func (e *Engine) ingest(batch []models.Event) {
	if len(batch) == 0 {
		return
	}
	now := time.Now()
	var tapped []models.Event

	e.mu.Lock()
	for _, ev := range batch {
		if !ev.Valid() {
			atomic.AddUint64(&e.malformed, 1)
			continue
		}
		if !e.seen.Accept(ev.ID) {
			atomic.AddUint64(&e.duplicates, 1)
			continue
		}
		e.buffer.Insert(ev, now)
		e.stats.Record(ev)
		atomic.AddUint64(&e.acceptedN, 1)
		if e.accepted != nil {
			tapped = append(tapped, ev)
		}
	}
	e.mu.Unlock()

	for _, ev := range tapped {
		select {
		case e.accepted <- ev:
		default:
			// Tap full, sink is behind. The on-screen state is intact.
		}
	}
}

func (e *Engine) frameLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FrameInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-e.done:
			return
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			e.advance(delta)
		}
	}
}

// advance moves the animation clock forward by delta. Anomalous deltas
// are clamped to [0, EventTTL]: a negative step becomes a no-op and a
// huge one (the browser-tab-in-background case) expires everything at
// once instead of producing nonsense ages.
func (e *Engine) advance(delta time.Duration) {
	if delta < 0 {
		delta = 0
	}
	if delta > e.cfg.EventTTL {
		delta = e.cfg.EventTTL
	}
	e.mu.Lock()
	e.buffer.Tick(delta)
	e.mu.Unlock()
}
