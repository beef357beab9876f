// Package engine implements the real-time ephemeral event engine behind
// the live dashboard views: a bounded, continuously-decaying buffer of
// recent events with duplicate suppression and cumulative statistics.
package engine

import (
	"math"
	"time"
)

const (
	// Radius profile: grow fast to a peak, then shrink with the fade.
	baseRadius   = 4.0
	peakRadius   = 14.0
	growFraction = 0.15 // fraction of the lifetime spent growing

	pulseCycles = 3.0 // full pulse oscillations over one lifetime
)

// Visual holds the decay-derived attributes the renderer draws with.
type Visual struct {
	Opacity    float64
	Radius     float64
	PulsePhase float64
}

// Decay maps an event's age to its visual attributes. Deterministic:
// the same age and ttl always yield the same result. Opacity starts at
// 1, decreases linearly and reaches 0 at ttl. Radius grows from
// baseRadius to peakRadius over the first growFraction of the
// lifetime, then shrinks to 0 alongside the fade. A non-positive ttl
// is clamped to the fully-decayed state.
func Decay(age, ttl time.Duration) Visual {
	if ttl <= 0 {
		return Visual{}
	}
	if age < 0 {
		age = 0
	}
	if age >= ttl {
		return Visual{}
	}

	f := float64(age) / float64(ttl) // 0 <= f < 1

	var radius float64
	if f < growFraction {
		radius = baseRadius + (peakRadius-baseRadius)*(f/growFraction)
	} else {
		radius = peakRadius * (1 - (f-growFraction)/(1-growFraction))
	}

	return Visual{
		Opacity:    1 - f,
		Radius:     radius,
		PulsePhase: math.Mod(f*pulseCycles, 1),
	}
}
