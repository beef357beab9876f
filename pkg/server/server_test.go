package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hervehildenbrand/honeypot-radar/pkg/engine"
	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
)

// newTestEngine returns a started engine whose single poll accepted
// three events, with TTL long enough that they stay visible.
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	var polled uint32
	fetch := func(ctx context.Context) ([]models.Event, error) {
		if !atomic.CompareAndSwapUint32(&polled, 0, 1) {
			return nil, nil
		}
		return []models.Event{
			{ID: "evt-1", SrcIP: "203.0.113.1", SrcCountry: "FR", SrcLat: 46.2, SrcLon: 2.2, HasCoords: true, Action: models.ServiceSSH},
			{ID: "evt-2", SrcIP: "203.0.113.2", SrcCountry: "DE", SrcLat: 51.2, SrcLon: 10.4, HasCoords: true, Action: models.ServiceSSH},
			{ID: "evt-3", SrcIP: "203.0.113.3", SrcCountry: "BR", SrcLat: -14.2, SrcLon: -51.9, HasCoords: true, Action: models.ServiceRDP},
		}, nil
	}

	e, err := engine.New(engine.Config{
		Name:         "attacks",
		PollInterval: time.Hour,
		EventTTL:     time.Hour,
	}, fetch, nil)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}

	e.Start()
	t.Cleanup(e.Stop)

	deadline := time.After(2 * time.Second)
	for e.Stats().Total < 3 {
		select {
		case <-deadline:
			t.Fatal("Engine never ingested the test batch")
		case <-time.After(5 * time.Millisecond):
		}
	}
	return e
}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	e := newTestEngine(t)
	return New(":0", map[string]*engine.Engine{"attacks": e}, 10*time.Millisecond), e
}

func TestServer_EventsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live/attacks/events", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var events []models.VisibleEvent
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatalf("Failed to decode events: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("Expected 3 visible events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Opacity <= 0 {
			t.Errorf("Event %s served with opacity %f", ev.ID, ev.Opacity)
		}
	}
}

func TestServer_StatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live/attacks/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var stats models.AggregateStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Total != 3 || stats.UniqueSources != 3 || stats.UniqueCountries != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestServer_UnknownViewAndMethod(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live/nosuch/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown view, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/live/attacks/events", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST events, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live/attacks/reset", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET reset, got %d", rec.Code)
	}
}

func TestServer_ResetEndpoint(t *testing.T) {
	s, e := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/live/attacks/reset", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	if got := e.Stats().Total; got != 0 {
		t.Errorf("Expected stats cleared after reset, got total %d", got)
	}
	if got := len(e.Snapshot()); got != 0 {
		t.Errorf("Expected buffer cleared after reset, got %d events", got)
	}
}

func TestServer_PauseResumeEndpoints(t *testing.T) {
	s, e := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/live/attacks/pause", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if !e.Paused() {
		t.Error("Expected engine paused")
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/live/attacks/resume", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if e.Paused() {
		t.Error("Expected engine resumed")
	}
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`radar_events_accepted_total{view="attacks"} 3`,
		`radar_buffer_events{view="attacks"} 3`,
		`radar_unique_sources{view="attacks"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}

func TestServer_WebSocketPush(t *testing.T) {
	s, _ := newTestServer(t)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live/attacks"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	if frame.View != "attacks" {
		t.Errorf("Expected view attacks, got %q", frame.View)
	}
	if len(frame.Events) != 3 {
		t.Errorf("Expected 3 events in frame, got %d", len(frame.Events))
	}
	if frame.Stats.Total != 3 {
		t.Errorf("Expected stats total 3 in frame, got %d", frame.Stats.Total)
	}
}
