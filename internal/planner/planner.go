// Package planner implements the progressive chunk planner (spec.md §4.2):
// given a requested time window and the catalog's day manifests, it
// produces an ordered, non-overlapping list of chunks covering the window,
// preferring the coarsest granularity permissible at each step.
package planner

import (
	"fmt"
	"time"

	"github.com/strata-audio/seiscope/internal/catalog"
	"github.com/strata-audio/seiscope/internal/rendererr"
)

// ChunkRef is one planned chunk reference, carrying enough of the catalog
// Chunk to drive fetch + normalization without re-querying the manifest.
type ChunkRef struct {
	catalog.Chunk
	Missing bool // true if no manifest entry existed for this slot (silence gap)
}

// Plan is an ordered, non-overlapping sequence of chunk references covering
// the rounded request window, plus the normalization range derived only
// from the chunks actually planned (spec.md §3, §4.2).
type Plan struct {
	Start            time.Time
	End              time.Time // rounded-down coverage window, exclusive
	Chunks           []ChunkRef
	NormalizationMin int32
	NormalizationMax int32
}

// ManifestSource resolves the manifest governing a given instant; a
// request window may span multiple calendar days.
type ManifestSource interface {
	ManifestFor(t time.Time) (*catalog.DayManifest, error)
}

const tenMinutes = 10 * time.Minute

// Plan walks the grid from start to start+duration, producing chunk
// references per the algorithm in spec.md §4.2.
func Plan(start time.Time, duration time.Duration, src ManifestSource) (*Plan, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: non-positive duration %s", rendererr.ErrPlanInconsistent, duration)
	}

	gridStart := start.Truncate(tenMinutes)
	end := start.Add(duration)

	plan := &Plan{Start: gridStart}

	cur := gridStart
	minutesElapsed := 0
	hasUsed1h := false

	for cur.Before(end) {
		remaining := end.Sub(cur)

		var g catalog.Granularity
		var step time.Duration

		switch {
		case minutesElapsed < 60:
			g, step = catalog.Granularity10m, tenMinutes

		case hasUsed1h && isOnBoundary(cur, 6*time.Hour) && remaining >= 6*time.Hour:
			g, step = catalog.Granularity6h, 6*time.Hour

		case isOnBoundary(cur, time.Hour) && remaining >= time.Hour:
			g, step = catalog.Granularity1h, time.Hour
			hasUsed1h = true

		default:
			g, step = catalog.Granularity10m, tenMinutes
		}

		ref, err := resolveChunk(cur, g, src)
		if err != nil {
			return nil, err
		}
		plan.Chunks = append(plan.Chunks, ref)

		cur = cur.Add(step)
		minutesElapsed += int(step / time.Minute)
	}

	if len(plan.Chunks) == 0 {
		return nil, fmt.Errorf("%w: empty plan for window [%s,%s)", rendererr.ErrPlanInconsistent, start, end)
	}

	plan.End = cur
	computeNormalization(plan)

	return plan, nil
}

// isOnBoundary reports whether t falls on a boundary of the given period,
// measuring from the start of its calendar day (UTC).
func isOnBoundary(t time.Time, period time.Duration) bool {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(dayStart)%period == 0
}

// resolveChunk looks up the manifest chunk at (g, start); a missing entry
// becomes a silence gap (Missing) in the plan (spec.md §4.2 failure
// handling), not a planning error. The session logs the warning when it
// reaches that gap.
func resolveChunk(start time.Time, g catalog.Granularity, src ManifestSource) (ChunkRef, error) {
	manifest, err := src.ManifestFor(start)
	if err != nil {
		// A manifest that cannot be loaded is treated like a missing
		// entry: the slot becomes a gap, whatever its granularity.
		return ChunkRef{
			Chunk: catalog.Chunk{
				Granularity: g,
				Start:       start,
				End:         start.Add(g.Duration()),
			},
			Missing: true,
		}, nil
	}

	c, ok := manifest.FindChunk(g, start)
	if !ok {
		return ChunkRef{
			Chunk: catalog.Chunk{
				Granularity: g,
				Start:       start,
				End:         start.Add(g.Duration()),
			},
			Missing: true,
		}, nil
	}

	return ChunkRef{Chunk: c}, nil
}

// computeNormalization sets NormalizationMin/Max to the elementwise min/max
// of the min/max fields over the chunks actually planned — never over the
// whole day (spec.md §4.2, §8 invariant).
func computeNormalization(plan *Plan) {
	first := true
	for _, c := range plan.Chunks {
		if c.Missing {
			continue
		}
		if first {
			plan.NormalizationMin = c.Min
			plan.NormalizationMax = c.Max
			first = false
			continue
		}
		if c.Min < plan.NormalizationMin {
			plan.NormalizationMin = c.Min
		}
		if c.Max > plan.NormalizationMax {
			plan.NormalizationMax = c.Max
		}
	}
}
