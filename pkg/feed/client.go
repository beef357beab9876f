// Package feed provides the HTTP client for the honeypot backend API
// that serves recent sensor and firewall events.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hervehildenbrand/honeypot-radar/pkg/database"
	"github.com/hervehildenbrand/honeypot-radar/pkg/engine"
	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
)

const (
	defaultTimeout = 10 * time.Second
	defaultLimit   = 100
	userAgent      = "honeypot-radar/1.0"
)

// Client fetches recent events from the backend feed. The feed is
// polled and best-effort: batches overlap across polls and individual
// requests may fail; both are handled downstream by the engine.
type Client struct {
	baseURL string
	http    *http.Client
	geo     database.GeoResolver // optional coordinate enrichment
}

// NewClient creates a feed client for the given base URL. geo may be
// nil; when set, events that carry a country but no coordinates are
// enriched with the country centroid.
func NewClient(baseURL string, timeout time.Duration, geo database.GeoResolver) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		geo:     geo,
	}
}

// wireEvent is the feed's JSON representation of one event.
type wireEvent struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	SrcIP     string                 `json:"src_ip"`
	Country   string                 `json:"country"`
	Latitude  *float64               `json:"latitude"`
	Longitude *float64               `json:"longitude"`
	DstIP     string                 `json:"dst_ip"`
	DstPort   int                    `json:"dst_port"`
	Protocol  string                 `json:"protocol"`
	Action    string                 `json:"action"`
	Sensor    string                 `json:"sensor"`
	Details   map[string]interface{} `json:"details"`
}

// FetchRecent returns up to limit recent events for a view.
func (c *Client) FetchRecent(ctx context.Context, view string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	u, err := url.Parse(c.baseURL + "/api/events/recent")
	if err != nil {
		return nil, fmt.Errorf("bad feed URL: %w", err)
	}
	q := u.Query()
	q.Set("view", view)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	var wire []wireEvent
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	events := make([]models.Event, 0, len(wire))
	for _, w := range wire {
		events = append(events, c.convert(w))
	}
	return events, nil
}

// FetchFunc adapts the client to an engine fetch function bound to one
// view and batch limit.
func (c *Client) FetchFunc(view string, limit int) engine.FetchFunc {
	return func(ctx context.Context) ([]models.Event, error) {
		return c.FetchRecent(ctx, view, limit)
	}
}

func (c *Client) convert(w wireEvent) models.Event {
	e := models.Event{
		ID:         w.ID,
		SrcIP:      w.SrcIP,
		SrcCountry: strings.ToUpper(w.Country),
		DstIP:      w.DstIP,
		DstPort:    w.DstPort,
		Protocol:   w.Protocol,
		Action:     w.Action,
		Sensor:     w.Sensor,
		Details:    w.Details,
	}
	if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
		e.Timestamp = ts
	}
	if w.Latitude != nil && w.Longitude != nil {
		e.SrcLat = *w.Latitude
		e.SrcLon = *w.Longitude
		e.HasCoords = true
	} else if c.geo != nil && e.SrcCountry != "" {
		if lat, lon, ok := c.geo.Resolve(e.SrcCountry); ok {
			e.SrcLat = lat
			e.SrcLon = lon
			e.HasCoords = true
		}
	}
	return e
}
