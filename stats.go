package treewalk

import "github.com/hupe1980/treewalk/internal/tracker"

// DepthSummary aggregates recorded depths. The zero value means no records.
type DepthSummary struct {
	Min int     `json:"min"`
	Max int     `json:"max"`
	Avg float64 `json:"avg"`
}

// Stats is a point-in-time snapshot of a CachingSource.
//
// HitRate is hits/(hits+misses) and zero when no cache attempt has been
// recorded; check Attempts to tell "no data" from "all misses".
// Depth summaries are computed on demand from the tracker's depth maps.
type Stats struct {
	CacheEnabled    bool    `json:"cache_enabled"`
	TrackingEnabled bool    `json:"tracking_enabled"`
	Entries         int     `json:"entries"`
	SpillEntries    int     `json:"spill_entries,omitempty"`
	MemoryBytes     int64   `json:"memory_bytes"`
	MemoryMB        float64 `json:"memory_mb"`
	Attempts        int64   `json:"attempts"`
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	HitRate         float64 `json:"hit_rate"`

	Discovered      int          `json:"discovered"`
	Expanded        int          `json:"expanded"`
	DiscoveryDepths DepthSummary `json:"discovery_depths"`
	ExpansionDepths DepthSummary `json:"expansion_depths"`
}

func depthSummary(s tracker.DepthSummary) DepthSummary {
	return DepthSummary{Min: s.Min, Max: s.Max, Avg: s.Avg}
}
