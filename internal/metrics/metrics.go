// Package metrics exposes the Prometheus collectors segcore updates as it
// ingests, deletes, and searches rows. Collectors are registered at package
// initialization via promauto against the default registry, mirroring the
// rest of the pack.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AckHorizon tracks the published insert horizon per segment.
	AckHorizon = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "segcore_ack_horizon",
			Help: "Largest contiguous prefix of inserted rows published by AckResponder",
		},
		[]string{"segment"},
	)

	// InsertRowsTotal counts rows published through InsertRecord.
	InsertRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segcore_insert_rows_total",
			Help: "Total rows published via ConcurrentVector/AckResponder",
		},
		[]string{"segment"},
	)

	// DeleteRowsTotal counts tombstones published through DeletedRecord.
	DeleteRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segcore_delete_rows_total",
			Help: "Total delete records published",
		},
		[]string{"segment"},
	)

	// SearchDurationSeconds measures end-to-end executor latency.
	SearchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "segcore_search_duration_seconds",
			Help:    "Duration of a full search (filter + ANN + reduce)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"segment_kind"},
	)

	// BruteForceComparisons counts brute-force distance evaluations.
	BruteForceComparisons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segcore_bruteforce_comparisons_total",
			Help: "Total brute-force distance comparisons performed",
		},
		[]string{"metric"},
	)

	// BitmapCacheHitsTotal / BitmapCacheMissesTotal track the deleted-bitmap LRU.
	BitmapCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segcore_bitmap_cache_hits_total",
			Help: "Total deleted-bitmap LRU cache hits",
		},
	)
	BitmapCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segcore_bitmap_cache_misses_total",
			Help: "Total deleted-bitmap LRU cache misses requiring a clone-and-patch",
		},
	)

	// ChunkGrowthsTotal counts ConcurrentVector chunk allocations.
	ChunkGrowthsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segcore_chunk_growths_total",
			Help: "Total chunks allocated by ConcurrentVector instances",
		},
		[]string{"field"},
	)

	// SealedFieldsLoaded tracks how many fields a sealed segment has ready.
	SealedFieldsLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "segcore_sealed_fields_loaded",
			Help: "Number of fields with data or index ready on a sealed segment",
		},
		[]string{"segment"},
	)

	// MemoryUsageBytes is set each time SegmentSealed.MemoryUsage() runs;
	// SegmentGrowing.MemoryUsage() does not update it.
	MemoryUsageBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "segcore_memory_usage_bytes",
			Help: "Estimated memory usage of a segment's columns and indexes",
		},
		[]string{"segment"},
	)
)
