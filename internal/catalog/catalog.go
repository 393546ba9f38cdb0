package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/strata-audio/seiscope/internal/rendererr"
)

// ManifestFetcher is the subset of the §6 object-store contract the catalog needs:
// fetching a manifest's raw bytes for (station, date). HEAD/GET chunk reads
// live in internal/external.Fetcher instead — the catalog only ever reads
// manifests.
type ManifestFetcher interface {
	GetManifest(ctx context.Context, station, date string) ([]byte, error)
}

// wireManifest mirrors the JSON shape in spec.md §6.
type wireManifest struct {
	Date       string                `json:"date"`
	SampleRate int                   `json:"sample_rate"`
	Chunks     map[string][]wireChunk `json:"chunks"`
}

type wireChunk struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Samples int    `json:"samples"`
	Min     int32  `json:"min"`
	Max     int32  `json:"max"`
	Key     string `json:"storage_key"`
	Codec   string `json:"codec"`
}

type cacheKey struct {
	station string
	date    string
}

// Catalog caches day manifests for a session, keyed by (station, date),
// with LRU eviction the way cog.TileCache bounds its decoded-tile cache.
type Catalog struct {
	fetcher ManifestFetcher
	cache   *lru.Cache[cacheKey, *DayManifest]
}

// New creates a Catalog backed by fetcher, caching up to maxManifests
// day manifests.
func New(fetcher ManifestFetcher, maxManifests int) (*Catalog, error) {
	if maxManifests <= 0 {
		maxManifests = 64
	}
	c, err := lru.New[cacheKey, *DayManifest](maxManifests)
	if err != nil {
		return nil, fmt.Errorf("catalog: creating cache: %w", err)
	}
	return &Catalog{fetcher: fetcher, cache: c}, nil
}

// LoadManifest returns the manifest for (station, date), fetching and
// parsing it on a cache miss (spec.md §4.1).
func (c *Catalog) LoadManifest(ctx context.Context, station, date string) (*DayManifest, error) {
	key := cacheKey{station: station, date: date}
	if m, ok := c.cache.Get(key); ok {
		return m, nil
	}

	raw, err := c.fetcher.GetManifest(ctx, station, date)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching manifest for %s/%s: %v", rendererr.ErrManifestNotFound, station, date, err)
	}

	m, err := parseManifest(station, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rendererr.ErrManifestMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", rendererr.ErrManifestMalformed, err)
	}

	c.cache.Add(key, m)
	return m, nil
}

func parseManifest(station string, raw []byte) (*DayManifest, error) {
	var wm wireManifest
	if err := json.Unmarshal(raw, &wm); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal manifest: %w", err)
	}

	dayStart, err := time.Parse("2006-01-02", wm.Date)
	if err != nil {
		return nil, fmt.Errorf("catalog: parsing manifest date %q: %w", wm.Date, err)
	}

	m := &DayManifest{
		Station:    station,
		Date:       wm.Date,
		SampleRate: wm.SampleRate,
		Chunks:     make(map[Granularity][]Chunk),
	}

	for token, wcs := range wm.Chunks {
		g, err := parseGranularity(token)
		if err != nil {
			return nil, err
		}
		chunks := make([]Chunk, 0, len(wcs))
		for _, wc := range wcs {
			start, end, err := parseTimeOfDayRange(dayStart, wc.Start, wc.End)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, Chunk{
				Granularity: g,
				Date:        wm.Date,
				Start:       start,
				End:         end,
				SampleCount: wc.Samples,
				Min:         wc.Min,
				Max:         wc.Max,
				StorageKey:  wc.Key,
				Codec:       parseCodec(wc.Codec),
			})
		}
		m.Chunks[g] = chunks
	}

	return m, nil
}

func parseGranularity(token string) (Granularity, error) {
	switch token {
	case "10m":
		return Granularity10m, nil
	case "1h":
		return Granularity1h, nil
	case "6h":
		return Granularity6h, nil
	default:
		return 0, fmt.Errorf("catalog: unknown granularity token %q", token)
	}
}

func parseCodec(token string) Codec {
	if token == "gzip" {
		return CodecGzip
	}
	return CodecZstd
}

// parseTimeOfDayRange parses "HH:MM:SS" start/end times of day relative to
// dayStart. A chunk crossing midnight (end <= start) is rolled into the next
// day, per spec.md §6: "chunks that cross midnight are listed under the
// starting day with end > start allowed" is interpreted here as: the wire
// value literally satisfies end > start except at the midnight wraparound,
// which we detect and roll forward one day.
func parseTimeOfDayRange(dayStart time.Time, startStr, endStr string) (time.Time, time.Time, error) {
	start, err := parseTimeOfDay(dayStart, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTimeOfDay(dayStart, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return start, end, nil
}

func parseTimeOfDay(dayStart time.Time, hms string) (time.Time, error) {
	var h, m, s int
	if _, err := fmt.Sscanf(hms, "%d:%d:%d", &h, &m, &s); err != nil {
		return time.Time{}, fmt.Errorf("catalog: parsing time %q: %w", hms, err)
	}
	return dayStart.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second), nil
}
