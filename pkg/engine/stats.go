package engine

import (
	"sort"
	"time"

	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
)

// Accumulator keeps cumulative statistics for every accepted event.
// Counters only ever grow: buffer eviction removes events from the
// screen, never from these totals. Record is called exactly once per
// accepted event, after duplicate suppression.
//
// Not safe for concurrent use; the owning engine serializes access.
type Accumulator struct {
	total         uint64
	perCategory   map[string]uint64
	categoryOrder []string // first-seen order, used to break top-N ties
	sources       map[string]struct{}
	countries     map[string]struct{}
	since         time.Time
}

// NewAccumulator creates an empty accumulator starting at now.
func NewAccumulator(now time.Time) *Accumulator {
	a := &Accumulator{}
	a.Reset(now)
	return a
}

// Record counts e into the totals, the per-category breakdown and the
// uniqueness sets.
func (a *Accumulator) Record(e models.Event) {
	a.total++

	cat := e.Category()
	if _, known := a.perCategory[cat]; !known {
		a.categoryOrder = append(a.categoryOrder, cat)
	}
	a.perCategory[cat]++

	if e.SrcIP != "" {
		a.sources[e.SrcIP] = struct{}{}
	}
	if e.SrcCountry != "" {
		a.countries[e.SrcCountry] = struct{}{}
	}
}

// Total returns the number of events recorded since the last reset.
func (a *Accumulator) Total() uint64 {
	return a.total
}

// UniqueSources returns the number of distinct source addresses seen.
func (a *Accumulator) UniqueSources() int {
	return len(a.sources)
}

// Snapshot returns a copy of the aggregate state, with the per-category
// breakdown reduced to the topN largest categories. Ties are broken in
// first-seen order.
func (a *Accumulator) Snapshot(topN int) models.AggregateStats {
	perCategory := make(map[string]uint64, len(a.perCategory))
	for cat, n := range a.perCategory {
		perCategory[cat] = n
	}

	top := make([]models.CategoryCount, 0, len(a.categoryOrder))
	for _, cat := range a.categoryOrder {
		top = append(top, models.CategoryCount{Category: cat, Count: a.perCategory[cat]})
	}
	// Stable sort keeps first-seen order among equal counts.
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Count > top[j].Count
	})
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}

	return models.AggregateStats{
		Total:           a.total,
		PerCategory:     perCategory,
		TopCategories:   top,
		UniqueSources:   len(a.sources),
		UniqueCountries: len(a.countries),
		Since:           a.since,
	}
}

// Reset clears all counters and sets. Callers holding the engine lock
// see either the old state or the fresh one, never a partial reset.
func (a *Accumulator) Reset(now time.Time) {
	a.total = 0
	a.perCategory = make(map[string]uint64)
	a.categoryOrder = nil
	a.sources = make(map[string]struct{})
	a.countries = make(map[string]struct{})
	a.since = now
}
