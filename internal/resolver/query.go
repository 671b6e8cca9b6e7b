// Package resolver turns raw "dimension = value" constraint strings into
// a canonical analytical query: resolved drilldowns, cuts over canonical
// member ids, and the measures to fetch.
package resolver

import (
	"fmt"
	"sort"
	"strings"
)

// Cut is one resolved filter value: the canonical member id and the
// human-readable label shown back to the user.
type Cut struct {
	MemberID string
	Label    string
}

// Query is the canonical specification produced by resolution, ready for
// the execution adapter.
type Query struct {
	Cube     string
	Limit    string
	Sort     string
	Locale   string
	measures []string

	drilldowns map[string]bool
	cuts       map[string][]Cut
}

// NewQuery creates an empty query against the named cube.
func NewQuery(cube string) *Query {
	return &Query{
		Cube:       cube,
		drilldowns: make(map[string]bool),
		cuts:       make(map[string][]Cut),
	}
}

// AddDrilldown adds a level to the drilldown set.
func (q *Query) AddDrilldown(levels ...string) {
	for _, l := range levels {
		if l != "" {
			q.drilldowns[l] = true
		}
	}
}

// RemoveDrilldown drops a level from the drilldown set.
func (q *Query) RemoveDrilldown(level string) {
	delete(q.drilldowns, level)
}

// HasDrilldown reports whether the level is in the drilldown set.
func (q *Query) HasDrilldown(level string) bool {
	return q.drilldowns[level]
}

// Drilldowns returns the drilldown set in sorted order.
func (q *Query) Drilldowns() []string {
	out := make([]string, 0, len(q.drilldowns))
	for l := range q.drilldowns {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// AddCut records a member id under a level. Duplicate ids are ignored.
func (q *Query) AddCut(level, memberID, label string) {
	for _, c := range q.cuts[level] {
		if c.MemberID == memberID {
			return
		}
	}
	q.cuts[level] = append(q.cuts[level], Cut{MemberID: memberID, Label: label})
}

// Cuts returns the resolved cuts keyed by level.
func (q *Query) Cuts() map[string][]Cut {
	return q.cuts
}

// CutLevels returns the levels carrying cuts in sorted order.
func (q *Query) CutLevels() []string {
	out := make([]string, 0, len(q.cuts))
	for l := range q.cuts {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// AddMeasure adds measures, preserving encounter order.
func (q *Query) AddMeasure(measures ...string) {
	for _, m := range measures {
		if m == "" {
			continue
		}
		seen := false
		for _, existing := range q.measures {
			if existing == m {
				seen = true
				break
			}
		}
		if !seen {
			q.measures = append(q.measures, m)
		}
	}
}

// Measures returns the selected measures in encounter order.
func (q *Query) Measures() []string {
	return q.measures
}

// CutsDisplay renders the resolved filters for the end user, e.g.
// "Exporter: Chile; Year: 2018, 2019".
func (q *Query) CutsDisplay() string {
	levels := q.CutLevels()
	parts := make([]string, 0, len(levels))
	for _, level := range levels {
		labels := make([]string, 0, len(q.cuts[level]))
		for _, c := range q.cuts[level] {
			label := c.Label
			if label == "" {
				label = c.MemberID
			}
			labels = append(labels, label)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", level, strings.Join(labels, ", ")))
	}
	return strings.Join(parts, "; ")
}
