// Package server exposes the engines' read-only render boundary:
// JSON snapshots and aggregate stats over HTTP, continuous frame push
// over WebSocket, and Prometheus metrics. Renderers never mutate
// engine state through this surface; the only writes are the explicit
// view lifecycle actions (reset, pause, resume).
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hervehildenbrand/honeypot-radar/pkg/engine"
	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
)

const (
	defaultPushInterval = 100 * time.Millisecond
	writeTimeout        = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Frame is one WebSocket push: everything a renderer needs to draw a
// view at this instant.
type Frame struct {
	View   string                `json:"view"`
	SentAt time.Time             `json:"sent_at"`
	Events []models.VisibleEvent `json:"events"`
	Stats  models.AggregateStats `json:"stats"`
}

// Server serves the dashboard views over HTTP and WebSocket.
type Server struct {
	engines      map[string]*engine.Engine
	pushInterval time.Duration

	mux        *http.ServeMux
	httpServer *http.Server
	upgrader   websocket.Upgrader
	registry   *prometheus.Registry

	running atomic.Bool
}

// New creates a server for the given view engines. pushInterval is the
// WebSocket frame cadence, defaulting when zero; it is the renderer's
// cadence and independent of any engine clock.
func New(listen string, engines map[string]*engine.Engine, pushInterval time.Duration) *Server {
	if pushInterval <= 0 {
		pushInterval = defaultPushInterval
	}

	s := &Server{
		engines:      engines,
		pushInterval: pushInterval,
		mux:          http.NewServeMux(),
		registry:     prometheus.NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is served from anywhere on the LAN.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.registerMetrics()

	s.mux.HandleFunc("/api/live/", s.handleLive)
	s.mux.HandleFunc("/ws/live/", s.handleWS)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the server's routing handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	if s.running.Swap(true) {
		return
	}
	go func() {
		log.Printf("HTTP server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server failed: %v", err)
		}
	}()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
}

// handleLive routes /api/live/{view}/{action}.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/live/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	view, action := parts[0], parts[1]

	e, ok := s.engines[view]
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "events":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, e.Snapshot())
	case "stats":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, e.Stats())
	case "counters":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, e.Counters())
	case "reset":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// View (re)activation, e.g. the user changed the time range.
		e.Reset()
		w.WriteHeader(http.StatusNoContent)
	case "pause":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		e.Pause()
		w.WriteHeader(http.StatusNoContent)
	case "resume":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		e.Resume()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

// handleWS upgrades /ws/live/{view} and pushes frames until the client
// goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	view := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/live/"), "/")
	e, ok := s.engines[view]
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[%s] websocket upgrade failed: %v", view, err)
		return
	}
	defer conn.Close()

	// Reader pump: we never expect client data, but reading is what
	// surfaces close and ping/pong handling.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			frame := Frame{
				View:   view,
				SentAt: time.Now(),
				Events: e.Snapshot(),
				Stats:  e.Stats(),
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

// registerMetrics exposes each engine's loop counters and aggregate
// cardinalities to Prometheus, labeled by view.
func (s *Server) registerMetrics() {
	counter := func(name, help string, labels prometheus.Labels, get func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "radar",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(get()) })
	}
	gauge := func(name, help string, labels prometheus.Labels, get func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "radar",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, get)
	}

	for view, e := range s.engines {
		e := e
		labels := prometheus.Labels{"view": view}
		s.registry.MustRegister(
			counter("polls_total", "Completed feed polling cycles", labels,
				func() uint64 { return e.Counters().Polls }),
			counter("fetch_errors_total", "Feed fetches that failed", labels,
				func() uint64 { return e.Counters().FetchErrors }),
			counter("events_accepted_total", "Events accepted after duplicate filtering", labels,
				func() uint64 { return e.Counters().Accepted }),
			counter("events_duplicate_total", "Events rejected as already seen", labels,
				func() uint64 { return e.Counters().Duplicates }),
			counter("events_malformed_total", "Events skipped for missing identifier or location", labels,
				func() uint64 { return e.Counters().Malformed }),
			gauge("buffer_events", "Events currently visible in the buffer", labels,
				func() float64 { return float64(e.Counters().Buffered) }),
			gauge("unique_sources", "Distinct source addresses since the last reset", labels,
				func() float64 { return float64(e.Stats().UniqueSources) }),
		)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
