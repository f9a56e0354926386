package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mangatl"

var (
	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// Translation cache

	TranslationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "translation_cache_hits_total",
		Help:      "Cache lookups that returned a stored translation",
	})

	TranslationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "translation_cache_misses_total",
		Help:      "Cache lookups that found nothing (including degraded lookups)",
	})

	TranslationCacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "translation_cache_errors_total",
		Help:      "Cache I/O failures absorbed by the cache, by operation",
	}, []string{"op"})

	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "translation_cache_evictions_total",
		Help:      "Entries removed by cleanup, by policy",
	}, []string{"reason"}) // size, count, age

	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "translation_cache_entries",
		Help:      "Entries currently stored in the translation cache",
	})

	CacheSizeChars = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "translation_cache_size_chars",
		Help:      "Estimated cache size in characters (original + translated)",
	})

	CacheFavorites = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "translation_cache_favorites",
		Help:      "Favorited cache entries (exempt from eviction)",
	})

	// Pipeline

	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_runs_total",
		Help:      "Page translation runs by outcome",
	}, []string{"outcome"}) // success, cache_hit, no_text, not_configured, ocr_error, backend_error, render_error

	PipelineStageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Latency of each pipeline stage",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	// Translation backends

	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Successful translation backend calls",
	}, []string{"backend", "model"})

	BackendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_errors_total",
		Help:      "Translation backend failures by kind",
	}, []string{"backend", "kind"})

	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_latency_seconds",
		Help:      "Translation backend round trip latency",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"backend"})

	BackendConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_confidence",
		Help:      "Confidence reported with backend translations",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	// Sessions

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reader_sessions_active",
		Help:      "Reader sessions currently registered",
	})
)
