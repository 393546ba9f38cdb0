// Package rendererr defines the sentinel error taxonomy shared across
// seiscope's components, per the error-handling design in spec.md §7.
package rendererr

import "errors"

var (
	// ErrManifestNotFound means no day manifest exists for a station/date.
	ErrManifestNotFound = errors.New("rendererr: manifest not found")

	// ErrManifestMalformed means a manifest was fetched but failed to parse
	// or violates the tiling invariant (gaps/overlaps within a granularity).
	ErrManifestMalformed = errors.New("rendererr: manifest malformed")

	// ErrDecodeFailed means a chunk failed to decompress or decode.
	ErrDecodeFailed = errors.New("rendererr: decode failed")

	// ErrUnexpectedLength means a decoded chunk's sample count deviated from
	// the manifest's declared sample_count by more than one sample.
	ErrUnexpectedLength = errors.New("rendererr: unexpected decoded length")

	// ErrPlanInconsistent means a requested window could not be planned
	// (empty plan, negative or zero duration). Fatal at the controller.
	ErrPlanInconsistent = errors.New("rendererr: plan inconsistent")

	// ErrFetchTimeout means a chunk fetch exceeded its wall-clock limit.
	ErrFetchTimeout = errors.New("rendererr: fetch timeout")

	// ErrCancelled is returned by any long-running operation that observed
	// its cancellation token fire. Not a failure: callers should treat it
	// as "no side effects remain", not report it as an error to the user.
	ErrCancelled = errors.New("rendererr: cancelled")

	// ErrWorkerPoolFailed means the FFT pool could not complete a batch even
	// after one re-dispatch following a worker respawn.
	ErrWorkerPoolFailed = errors.New("rendererr: worker pool failed")
)
