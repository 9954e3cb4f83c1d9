// Package palette reduces raw color samples into a ranked, deduplicated
// palette.
//
// Samples are normalized to RGB triples, merged according to the configured
// dedup policy, ranked by descending frequency with ties broken by first
// occurrence, then truncated. Derivation is a pure function of its input.
package palette

import "sort"

// DefaultMaxSize bounds the palette length when Config.MaxSize is zero.
const DefaultMaxSize = 12

// Color is one palette entry.
type Color struct {
	RGB
	// Count is the number of samples merged into this entry.
	Count int
	// First is the index of the earliest sample that produced this entry.
	First int
}

// Palette is ordered by rank, most frequent first.
type Palette []Color

// Hex returns the palette as #rrggbb strings in rank order.
func (p Palette) Hex() []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = c.Hex()
	}
	return out
}

// Config controls derivation.
type Config struct {
	// MaxSize caps the palette length. Zero means DefaultMaxSize.
	MaxSize int
	// MergeDistance is the Euclidean RGB distance under which two colors
	// are treated as the same entry. Zero keeps exact-match dedup.
	MergeDistance float64
}

// Deriver turns color samples into a Palette. It holds no mutable state and
// is safe for concurrent use.
type Deriver struct {
	maxSize  int
	distance float64
}

// New creates a Deriver.
func New(cfg Config) *Deriver {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.MergeDistance < 0 {
		cfg.MergeDistance = 0
	}
	return &Deriver{maxSize: cfg.MaxSize, distance: cfg.MergeDistance}
}

// Derive never fails: malformed samples are skipped and empty input yields an
// empty palette.
func (d *Deriver) Derive(samples []string) Palette {
	var entries []Color
	index := make(map[RGB]int)

	for i, s := range samples {
		c, ok := Parse(s)
		if !ok {
			continue
		}
		if j, ok := index[c]; ok {
			entries[j].Count++
			continue
		}
		if d.distance > 0 {
			if j := d.nearest(entries, c); j >= 0 {
				entries[j].Count++
				index[c] = j
				continue
			}
		}
		index[c] = len(entries)
		entries = append(entries, Color{RGB: c, Count: 1, First: i})
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Count != entries[b].Count {
			return entries[a].Count > entries[b].Count
		}
		return entries[a].First < entries[b].First
	})
	if len(entries) > d.maxSize {
		entries = entries[:d.maxSize]
	}
	return Palette(entries)
}

// nearest returns the earliest entry within the merge distance of c, or -1.
// Scanning in insertion order keeps the merge deterministic.
func (d *Deriver) nearest(entries []Color, c RGB) int {
	for j, e := range entries {
		if e.RGB.distance(c) <= d.distance {
			return j
		}
	}
	return -1
}
