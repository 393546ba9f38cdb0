// Package assembler orders decoded chunks, hands them to the audio sink in
// fixed-size frames, and accumulates a full sample buffer for visuals
// (spec.md §4.5). Out-of-order arrival is handled by an explicit pending
// map keyed by plan index, the way world.ChunkStreamer (other_examples
// dantero-ps-mini-mc-go) tracks outstanding work against a store instead of
// assuming arrival order.
package assembler

import (
	"context"
	"sync"
	"time"

	"github.com/strata-audio/seiscope/internal/decoder"
	"github.com/strata-audio/seiscope/internal/external"
)

// Assembler reassembles decoded segments into playback order and an
// accumulated sample buffer.
type Assembler struct {
	mu          sync.Mutex
	frameSize   int
	rampLen     int // samples over which the first frame's amplitude ramps up
	pending     map[int]decoder.Segment
	nextToEmit  int
	totalPlanned int // number of segments expected before data-complete
	buffer      []float32 // accumulated normalized samples, for waveform/pyramid consumers
	firstEmit   bool
	sink        external.AudioSink
	onSegment   func(seg decoder.Segment) // notified in order, e.g. waveform incremental update
}

// New creates an Assembler bound to sink, expecting totalPlanned segments
// before it will emit data-complete. rampDuration/sampleRate determine how
// many playback-rate samples the first frame's click-avoidance ramp spans.
func New(sink external.AudioSink, frameSize, totalPlanned int, rampDuration time.Duration, sampleRate int) *Assembler {
	rampLen := int(rampDuration.Seconds() * float64(sampleRate))
	return &Assembler{
		frameSize:    frameSize,
		rampLen:      rampLen,
		pending:      make(map[int]decoder.Segment),
		totalPlanned: totalPlanned,
		sink:         sink,
	}
}

// OnSegment registers a callback invoked, in plan order, as each segment is
// emitted — e.g. to feed the waveform builder incrementally.
func (a *Assembler) OnSegment(fn func(seg decoder.Segment)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSegment = fn
}

// Reset rebinds the assembler to a fresh plan, discarding any segments
// buffered for the superseded plan (spec.md §4.3 cancellation semantics).
func (a *Assembler) Reset(sink external.AudioSink, totalPlanned int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = make(map[int]decoder.Segment)
	a.nextToEmit = 0
	a.totalPlanned = totalPlanned
	a.buffer = nil
	a.firstEmit = false
	a.sink = sink
}

// Submit stores a decoded segment and emits every contiguous run of
// segments starting at nextToEmit, in order, even if segments arrive out
// of order (spec.md §4.5, §8 ordered-audio invariant).
func (a *Assembler) Submit(ctx context.Context, seg decoder.Segment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending[seg.PlanIndex] = seg

	for {
		next, ok := a.pending[a.nextToEmit]
		if !ok {
			break
		}
		delete(a.pending, a.nextToEmit)

		if !a.firstEmit {
			a.firstEmit = true
			if err := a.sink.StartImmediately(ctx); err != nil {
				return err
			}
			a.applyRamp(next.Normalized)
		}

		if err := a.pushFrames(ctx, next.Normalized); err != nil {
			return err
		}
		a.buffer = append(a.buffer, next.Normalized...)
		if a.onSegment != nil {
			a.onSegment(next)
		}

		a.nextToEmit++

		if a.nextToEmit == a.totalPlanned {
			if err := a.sink.DataComplete(ctx, len(a.buffer)); err != nil {
				return err
			}
			if err := a.awaitBufferDrained(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// applyRamp scales the first rampLen samples of the first emitted segment
// from near-zero up to full amplitude, avoiding a click at playback start
// (spec.md §4.5).
func (a *Assembler) applyRamp(samples []float32) {
	n := a.rampLen
	if n <= 0 || n > len(samples) {
		n = len(samples)
	}
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		gain := float32(i) / float32(n)
		samples[i] *= gain
	}
}

func (a *Assembler) pushFrames(ctx context.Context, samples []float32) error {
	for off := 0; off < len(samples); off += a.frameSize {
		end := off + a.frameSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := a.sink.PushFrame(ctx, samples[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// awaitBufferDrained polls the sink's buffer status until it reports the
// full stream has been written (spec.md §4.5, §6).
func (a *Assembler) awaitBufferDrained(ctx context.Context) error {
	total := len(a.buffer)
	for {
		status, err := a.sink.BufferStatus(ctx)
		if err != nil {
			return err
		}
		if status.TotalSamplesWritten >= total {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Buffer returns the accumulated normalized sample buffer assembled so far.
// Safe to call concurrently with Submit; the returned slice is a snapshot
// copy.
func (a *Assembler) Buffer() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float32, len(a.buffer))
	copy(out, a.buffer)
	return out
}
