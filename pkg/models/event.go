// Package models defines data structures for honeypot feed events and
// aggregate statistics.
package models

import "time"

// Event represents a single security event as reported by the feed:
// one honeypot hit or one firewall decision. Identifiers are assigned
// by the feed and must be treated as opaque; the same identifier may
// reappear across polls when fetch windows overlap.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"` // event-origin time, not arrival time

	// Source
	SrcIP      string  `json:"src_ip"`
	SrcCountry string  `json:"src_country,omitempty"` // ISO 3166-1 alpha-2, "" if unknown
	SrcLat     float64 `json:"src_lat"`
	SrcLon     float64 `json:"src_lon"`
	HasCoords  bool    `json:"has_coords"`

	// Destination
	DstIP   string `json:"dst_ip,omitempty"`
	DstPort int    `json:"dst_port,omitempty"`

	Protocol string `json:"protocol,omitempty"` // tcp, udp, icmp
	Action   string `json:"action,omitempty"`   // firewall verdict or honeypot service, see constants below
	Sensor   string `json:"sensor,omitempty"`   // reporting sensor, e.g. "fw-edge", "hp-ssh-01"

	Details map[string]interface{} `json:"details,omitempty"`
}

// Category returns the breakdown key used by the aggregate counters.
// Firewall events break down by verdict, honeypot events by attacked
// service; both are carried in Action.
func (e Event) Category() string {
	if e.Action != "" {
		return e.Action
	}
	return ActionUnknown
}

// Valid reports whether the event carries the fields the engine
// requires: an identifier and some way to place it (coordinates or at
// least a country that can be resolved to a centroid).
func (e Event) Valid() bool {
	if e.ID == "" {
		return false
	}
	return e.HasCoords || e.SrcCountry != ""
}

// VisibleEvent is an Event currently held by the visual buffer,
// extended with engine-local age and the decay-derived attributes the
// renderer draws with. Owned exclusively by the buffer; renderers only
// ever see copies.
type VisibleEvent struct {
	Event

	InsertedAt time.Time     `json:"inserted_at"` // engine-local acceptance time
	Age        time.Duration `json:"age"`
	Opacity    float64       `json:"opacity"` // 1 at acceptance, 0 at TTL; never rendered at 0
	Radius     float64       `json:"radius"`
	PulsePhase float64       `json:"pulse_phase"`
}

// CategoryCount is one row of a top-N category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    uint64 `json:"count"`
}

// AggregateStats is a cumulative, never-evicted view of everything the
// engine has accepted since the last reset. Buffer eviction affects
// only what is rendered, never these counters.
type AggregateStats struct {
	Total           uint64            `json:"total"`
	PerCategory     map[string]uint64 `json:"per_category"`
	TopCategories   []CategoryCount   `json:"top_categories"`
	UniqueSources   int               `json:"unique_sources"`
	UniqueCountries int               `json:"unique_countries"`
	Since           time.Time         `json:"since"`
}

// Firewall verdicts
const (
	ActionBlock   = "block"
	ActionPass    = "pass"
	ActionReject  = "reject"
	ActionUnknown = "unknown"
)

// Honeypot services (Action for sensor-originated events)
const (
	ServiceSSH    = "ssh"
	ServiceTelnet = "telnet"
	ServiceHTTP   = "http"
	ServiceRDP    = "rdp"
	ServiceSMB    = "smb"
	ServiceVNC    = "vnc"
)

// Dashboard views, one engine instance each
const (
	ViewFirewall = "firewall"
	ViewAttacks  = "attacks"
	ViewRate     = "rate"
)
