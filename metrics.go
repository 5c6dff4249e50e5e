package elevation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	managerQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_manager_queries_total",
		Help: "The total number of queries issued through managers",
	})
	managerSourceQueryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_manager_source_query_errors_total",
		Help: "The total number of source queries that failed and were skipped",
	})
	managerSampleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_manager_sample_errors_total",
		Help: "The total number of chunk samples that failed and were skipped",
	})
	managerUnknownElevations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_manager_unknown_elevations_total",
		Help: "The total number of point queries that found no elevation",
	})
	tiledSourceTileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_tiled_source_tile_cache_hits_total",
		Help: "The total number of hits on tiled source tile caches",
	})
	tiledSourceTileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_tiled_source_tile_cache_misses_total",
		Help: "The total number of misses on tiled source tile caches",
	})
	tiledSourceTileFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_tiled_source_tile_fetch_errors_total",
		Help: "The total number of tile fetches that failed and were skipped",
	})
	missingTileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_missing_tile_cache_hits_total",
		Help: "The total number of hits on the missing tile cache",
	})
	missingTileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_missing_tile_cache_misses_total",
		Help: "The total number of misses on the missing tile cache",
	})
	globalTileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_global_tile_cache_hits_total",
		Help: "The total number of hits on the global tile cache",
	})
	globalTileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_global_tile_cache_misses_total",
		Help: "The total number of misses on the global tile cache",
	})
	globalTileCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_global_tile_cache_evictions_total",
		Help: "The total number of evictions from the global tile cache",
	})
)
