// Package scheduler groups a plan's chunks into sequentially-issued
// parallel fetch batches with a size-ramping policy (spec.md §4.3),
// dispatching fetches within a batch concurrently via an errgroup, the way
// five82-reel/internal/processing/chunked.go runs a phase's goroutines
// under errgroup.WithContext.
package scheduler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/strata-audio/seiscope/internal/catalog"
	"github.com/strata-audio/seiscope/internal/planner"
	"github.com/strata-audio/seiscope/internal/rendererr"
)

// Batch is one group of chunk refs dispatched together.
type Batch struct {
	Chunks []planner.ChunkRef
}

// BuildBatches groups a plan's chunks per the size-ramping policy:
// within a granularity run, the first three 10-minute chunks are each a
// batch of size one, after which the 10m ramp continues at size 2; 1h and
// 6h runs start at size 1. Batch size increments by 1 per batch for
// 10m/1h, capped at 4 for 6h. A granularity transition flushes the pending
// batch and resets the size counter.
func BuildBatches(chunks []planner.ChunkRef) []Batch {
	if len(chunks) == 0 {
		return nil
	}

	var batches []Batch
	var pending []planner.ChunkRef
	curGranularity := chunks[0].Granularity
	tenMinSingles := 0 // forced size-1 batches emitted so far in this 10m run
	nextSize := 1      // size used once the run moves past its forced-singleton phase

	flush := func() {
		if len(pending) > 0 {
			batches = append(batches, Batch{Chunks: pending})
			pending = nil
		}
	}

	resetRun := func(g catalog.Granularity) {
		curGranularity = g
		tenMinSingles = 0
		nextSize = 1
	}

	for _, c := range chunks {
		if c.Granularity != curGranularity {
			flush()
			resetRun(c.Granularity)
		}

		if curGranularity == catalog.Granularity10m && tenMinSingles < 3 {
			// Each of the first three 10-minute chunks in a run is its own
			// batch of size one, regardless of the ramp state.
			flush()
			batches = append(batches, Batch{Chunks: []planner.ChunkRef{c}})
			tenMinSingles++
			if tenMinSingles == 3 {
				// The ramp resumes from 2, not 1: the three forced
				// singletons already occupy the ramp's first slot.
				nextSize = 2
			}
			continue
		}

		pending = append(pending, c)
		if len(pending) >= nextSize {
			flush()
			nextSize++
			if curGranularity == catalog.Granularity6h && nextSize > 4 {
				nextSize = 4
			}
		}
	}
	flush()

	return batches
}

// Fetcher fetches and decodes one chunk, returning an opaque decoded value
// handed to onDecoded. Concrete use plugs in internal/decoder.Decode.
type Fetcher[T any] func(ctx context.Context, ref planner.ChunkRef) (T, error)

// OnDecoded is invoked for each decoded chunk result, in whatever order
// fetches within a batch complete. The caller (C5 assembler) is responsible
// for reordering by plan index.
type OnDecoded[T any] func(ref planner.ChunkRef, result T)

// AwaitFirstEmit lets the scheduler back-pressure: the second batch is not
// dispatched until the first batch's decoded segment has reached the audio
// sink (spec.md §4.3). The assembler supplies this hook.
type AwaitFirstEmit func(ctx context.Context) error

// Run dispatches batches sequentially; within a batch, fetches run
// concurrently via errgroup. After the first batch, it awaits awaitFirst
// before continuing. Run returns rendererr.ErrCancelled if ctx is
// cancelled mid-flight; any other batches already queued are abandoned.
func Run[T any](ctx context.Context, batches []Batch, fetch Fetcher[T], onDecoded OnDecoded[T], awaitFirst AwaitFirstEmit) error {
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", rendererr.ErrCancelled, err)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, ref := range batch.Chunks {
			ref := ref
			g.Go(func() error {
				result, err := fetch(gctx, ref)
				if err != nil {
					return err
				}
				onDecoded(ref, result)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if i == 0 && awaitFirst != nil {
			if err := awaitFirst(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
