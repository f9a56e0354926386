package services

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/manga-translator/internal/metrics"
	"github.com/codyseavey/manga-translator/internal/models"
)

// CleanupReport summarizes one eviction pass
type CleanupReport struct {
	SizeEvicted  int64 `json:"size_evicted"`
	CountEvicted int64 `json:"count_evicted"`
	AgeEvicted   int64 `json:"age_evicted"`
}

// Total returns the number of rows removed by all policies
func (r CleanupReport) Total() int64 {
	return r.SizeEvicted + r.CountEvicted + r.AgeEvicted
}

// Cleanup applies the size, count and age policies in that order.
// Favorited entries are never removed. Running it again right away removes nothing.
func (s *TranslationCacheService) Cleanup() (*CleanupReport, error) {
	report := &CleanupReport{}
	if s.db == nil {
		return report, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if report.SizeEvicted, err = s.evictBySize(); err != nil {
		return report, err
	}
	if report.CountEvicted, err = s.evictByCount(); err != nil {
		return report, err
	}
	if report.AgeEvicted, err = s.evictByAge(); err != nil {
		return report, err
	}

	metrics.CacheEvictionsTotal.WithLabelValues("size").Add(float64(report.SizeEvicted))
	metrics.CacheEvictionsTotal.WithLabelValues("count").Add(float64(report.CountEvicted))
	metrics.CacheEvictionsTotal.WithLabelValues("age").Add(float64(report.AgeEvicted))

	if report.Total() > 0 {
		infoLog("Cache cleanup removed %d entries (size=%d count=%d age=%d)",
			report.Total(), report.SizeEvicted, report.CountEvicted, report.AgeEvicted)
	}
	return report, nil
}

// evictBySize deletes least-used, oldest-first batches until the size estimate fits the budget
func (s *TranslationCacheService) evictBySize() (int64, error) {
	if s.config.MaxChars <= 0 {
		return 0, nil
	}

	var removed int64
	for {
		size, err := s.totalChars()
		if err != nil {
			return removed, err
		}
		if size <= s.config.MaxChars {
			return removed, nil
		}

		var ids []uint
		err = s.evictable().
			Order("usage_count ASC, created_at ASC, id ASC").
			Limit(s.config.EvictionBatchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return removed, err
		}
		if len(ids) == 0 {
			// Only favorites left; nothing more we are allowed to delete
			debugLog("Cache over size budget (%d > %d) but only favorites remain", size, s.config.MaxChars)
			return removed, nil
		}

		n, err := s.deleteIDs(ids)
		removed += n
		if err != nil {
			return removed, err
		}
	}
}

// evictByCount deletes the surplus over MaxEntries, least-used first and,
// among equals, newest first so that older proven entries stay
func (s *TranslationCacheService) evictByCount() (int64, error) {
	if s.config.MaxEntries <= 0 {
		return 0, nil
	}

	var count int64
	if err := s.db.Model(&models.TranslationCache{}).Count(&count).Error; err != nil {
		return 0, err
	}
	excess := int(count) - s.config.MaxEntries
	if excess <= 0 {
		return 0, nil
	}

	var ids []uint
	err := s.evictable().
		Order("usage_count ASC, created_at DESC, id DESC").
		Limit(excess).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.deleteIDs(ids)
}

// evictByAge deletes every non-favorited entry older than MaxAge
func (s *TranslationCacheService) evictByAge() (int64, error) {
	if s.config.MaxAge <= 0 {
		return 0, nil
	}

	cutoff := s.now().UTC().Add(-s.config.MaxAge)
	result := s.db.Where("is_favorited = ? AND created_at < ?", false, cutoff).
		Delete(&models.TranslationCache{})
	return result.RowsAffected, result.Error
}

func (s *TranslationCacheService) evictable() *gorm.DB {
	return s.db.Model(&models.TranslationCache{}).Where("is_favorited = ?", false)
}

func (s *TranslationCacheService) deleteIDs(ids []uint) (int64, error) {
	result := s.db.Where("id IN ? AND is_favorited = ?", ids, false).Delete(&models.TranslationCache{})
	return result.RowsAffected, result.Error
}

func (s *TranslationCacheService) totalChars() (int64, error) {
	var size int64
	err := s.db.Model(&models.TranslationCache{}).
		Select("COALESCE(SUM(LENGTH(original_text) + LENGTH(translated_text)), 0)").
		Scan(&size).Error
	return size, err
}

// scheduleCleanup asks the background goroutine for a cleanup pass.
// Requests coalesce: at most one is pending at a time.
func (s *TranslationCacheService) scheduleCleanup() {
	select {
	case s.cleanupCh <- struct{}{}:
	default:
	}
}

// cleanupLoop runs scheduled cleanups until Close
func (s *TranslationCacheService) cleanupLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.cleanupCh:
			if _, err := s.Cleanup(); err != nil {
				// Best effort: the write that triggered us already succeeded
				metrics.TranslationCacheErrors.WithLabelValues("cleanup").Inc()
				infoLog("Cache cleanup failed: %v", err)
			}
		}
	}
}

// CacheCleanupWorker runs Cleanup on a fixed interval so the age policy
// applies even when nothing new is being written
type CacheCleanupWorker struct {
	cache    *TranslationCacheService
	interval time.Duration
	done     chan struct{}
}

// NewCacheCleanupWorker creates a worker; interval <= 0 defaults to one hour
func NewCacheCleanupWorker(cache *TranslationCacheService, interval time.Duration) *CacheCleanupWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CacheCleanupWorker{cache: cache, interval: interval, done: make(chan struct{})}
}

// Start blocks running cleanups until ctx is cancelled. Call it once.
func (w *CacheCleanupWorker) Start(ctx context.Context) {
	defer close(w.done)
	log.Printf("Cache cleanup worker started: interval=%v", w.interval)

	// Run immediately on startup
	w.RunOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Cache cleanup worker stopping...")
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// Done is closed once Start has returned, so no cleanup is running anymore
func (w *CacheCleanupWorker) Done() <-chan struct{} {
	return w.done
}

// RunOnce performs one cleanup and refreshes the cache gauges
func (w *CacheCleanupWorker) RunOnce() {
	if _, err := w.cache.Cleanup(); err != nil {
		log.Printf("Cache cleanup worker: cleanup failed: %v", err)
	}
	metrics.UpdateCacheMetrics(w.cache.DB())
}
