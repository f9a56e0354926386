package services

import (
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/manga-translator/internal/metrics"
	"github.com/codyseavey/manga-translator/internal/models"
)

const (
	// DefaultCacheMaxChars is the size budget in characters (500 MiB equivalent)
	DefaultCacheMaxChars = 500 * 1024 * 1024
	// DefaultCacheMaxEntries caps the number of rows
	DefaultCacheMaxEntries = 10000
	// DefaultCacheMaxAge is how long non-favorited entries live
	DefaultCacheMaxAge = 30 * 24 * time.Hour
	// DefaultEvictionBatchSize is how many rows the size policy deletes per pass
	DefaultEvictionBatchSize = 100
)

// CacheConfig holds the eviction limits
type CacheConfig struct {
	MaxChars          int64
	MaxEntries        int
	MaxAge            time.Duration
	EvictionBatchSize int
	// CleanupOnPut schedules an asynchronous cleanup after every successful Put
	CleanupOnPut bool
}

// DefaultCacheConfig returns the production limits
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxChars:          DefaultCacheMaxChars,
		MaxEntries:        DefaultCacheMaxEntries,
		MaxAge:            DefaultCacheMaxAge,
		EvictionBatchSize: DefaultEvictionBatchSize,
		CleanupOnPut:      true,
	}
}

// CacheEntry is the input to Put
type CacheEntry struct {
	OriginalText   string
	TranslatedText string
	TargetLanguage string
	SourceLanguage string // empty means "auto"
	ModelUsed      string
	Confidence     float64
	Context        string // disambiguates the fingerprint and is stored as bubble context
}

// TranslationCacheService is the persistent translation cache.
// It is best-effort: lookups that fail are logged and reported as misses.
type TranslationCacheService struct {
	db     *gorm.DB
	config CacheConfig
	now    func() time.Time

	// mu serializes writes, the hit-count read-modify-write, and eviction scans
	mu sync.Mutex

	cleanupCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTranslationCacheService creates the cache service. A nil db gives a no-op cache.
func NewTranslationCacheService(db *gorm.DB, config CacheConfig) *TranslationCacheService {
	if config.EvictionBatchSize <= 0 {
		config.EvictionBatchSize = DefaultEvictionBatchSize
	}

	s := &TranslationCacheService{
		db:        db,
		config:    config,
		now:       time.Now,
		cleanupCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}

	if db != nil {
		s.wg.Add(1)
		go s.cleanupLoop()
	}

	return s
}

// Close stops the background cleanup goroutine. It does not close the database.
func (s *TranslationCacheService) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
}

// DB exposes the underlying handle (metrics collection, CLI)
func (s *TranslationCacheService) DB() *gorm.DB {
	return s.db
}

// Get looks up a cached translation for text in the target language.
// On a hit the stored usage count is incremented and the record as it was
// before the increment is returned.
func (s *TranslationCacheService) Get(text, targetLang, sourceLang, context string) (*models.TranslationCache, bool) {
	if s.db == nil {
		return nil, false
	}

	fp := Fingerprint(text, context)

	s.mu.Lock()
	defer s.mu.Unlock()

	var cached models.TranslationCache
	err := s.db.Where("fingerprint = ? AND target_language = ?", fp, targetLang).Take(&cached).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.TranslationCacheErrors.WithLabelValues("get").Inc()
			infoLog("Cache lookup failed for fp=%s, treating as miss: %v", fp, err)
		}
		metrics.TranslationCacheMisses.Inc()
		debugLog("Cache miss fp=%s target=%s source=%s", fp, targetLang, sourceLang)
		return nil, false
	}

	if err := s.db.Model(&models.TranslationCache{}).Where("id = ?", cached.ID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error; err != nil {
		metrics.TranslationCacheErrors.WithLabelValues("hit_count").Inc()
		infoLog("Failed to bump usage for cache id=%d: %v", cached.ID, err)
	}

	metrics.TranslationCacheHits.Inc()
	debugLog("Cache hit fp=%s id=%d model=%s usage=%d", fp, cached.ID, cached.ModelUsed, cached.UsageCount)
	return &cached, true
}

// Put stores a translation. An existing row with the same fingerprint is
// overwritten completely: usage goes back to 1 and rating and favorite are cleared.
func (s *TranslationCacheService) Put(entry CacheEntry) error {
	if s.db == nil {
		return nil
	}

	sourceLang := entry.SourceLanguage
	if sourceLang == "" {
		sourceLang = "auto"
	}

	record := models.TranslationCache{
		Fingerprint:     Fingerprint(entry.OriginalText, entry.Context),
		OriginalText:    entry.OriginalText,
		TranslatedText:  entry.TranslatedText,
		SourceLanguage:  sourceLang,
		TargetLanguage:  entry.TargetLanguage,
		ModelUsed:       entry.ModelUsed,
		ConfidenceScore: clampUnit(entry.Confidence),
		CreatedAt:       s.now().UTC(),
		UsageCount:      1,
	}
	if entry.Context != "" {
		bubble := entry.Context
		record.BubbleContext = &bubble
	}

	s.mu.Lock()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.TranslationCache
		err := tx.Select("id").Where("fingerprint = ?", record.Fingerprint).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&record).Error
		}
		if err != nil {
			return err
		}
		// Full-row replace keeps the id stable; Save writes zero values too
		record.ID = existing.ID
		return tx.Save(&record).Error
	})
	s.mu.Unlock()

	if err != nil {
		metrics.TranslationCacheErrors.WithLabelValues("put").Inc()
		return err
	}

	debugLog("Cache put id=%d fp=%s target=%s model=%s", record.ID, record.Fingerprint, record.TargetLanguage, record.ModelUsed)

	if s.config.CleanupOnPut {
		s.scheduleCleanup()
	}
	return nil
}

// Rate sets the user rating on an entry. Unknown ids are ignored.
func (s *TranslationCacheService) Rate(id uint, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Model(&models.TranslationCache{}).Where("id = ?", id).
		UpdateColumn("user_rating", rating).Error
}

// ToggleFavorite flips the favorite flag on an entry. Unknown ids are ignored.
func (s *TranslationCacheService) ToggleFavorite(id uint) error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Model(&models.TranslationCache{}).Where("id = ?", id).
		UpdateColumn("is_favorited", gorm.Expr("NOT is_favorited")).Error
}

// Find returns a single entry by id
func (s *TranslationCacheService) Find(id uint) (*models.TranslationCache, error) {
	if s.db == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var entry models.TranslationCache
	if err := s.db.Take(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Statistics computes aggregate numbers over the whole cache
func (s *TranslationCacheService) Statistics() (*models.CacheStatistics, error) {
	stats := &models.CacheStatistics{ByTargetLanguage: map[string]int64{}}
	if s.db == nil {
		return stats, nil
	}

	var totals struct {
		TotalEntries     int64
		TotalBytes       int64
		TotalUsage       int64
		FavoritedEntries int64
		RatedEntries     int64
		AverageRating    *float64
	}
	err := s.db.Model(&models.TranslationCache{}).
		Select(`COUNT(*) AS total_entries,
			COALESCE(SUM(LENGTH(original_text) + LENGTH(translated_text)), 0) AS total_bytes,
			COALESCE(SUM(usage_count), 0) AS total_usage,
			COALESCE(SUM(CASE WHEN is_favorited THEN 1 ELSE 0 END), 0) AS favorited_entries,
			COUNT(user_rating) AS rated_entries,
			AVG(user_rating) AS average_rating`).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	var perLang []struct {
		TargetLanguage string
		Entries        int64
	}
	err = s.db.Model(&models.TranslationCache{}).
		Select("target_language, COUNT(*) AS entries").
		Group("target_language").
		Scan(&perLang).Error
	if err != nil {
		return nil, err
	}

	stats.TotalEntries = totals.TotalEntries
	stats.TotalBytes = totals.TotalBytes
	stats.TotalUsage = totals.TotalUsage
	stats.FavoritedEntries = totals.FavoritedEntries
	stats.RatedEntries = totals.RatedEntries
	stats.AverageRating = totals.AverageRating
	for _, row := range perLang {
		stats.ByTargetLanguage[row.TargetLanguage] = row.Entries
	}
	return stats, nil
}

// Clear deletes every entry, favorites included
func (s *TranslationCacheService) Clear() error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.TranslationCache{})
	if result.Error != nil {
		return result.Error
	}
	infoLog("Cache cleared: %d entries removed", result.RowsAffected)
	return nil
}

// Export returns every entry ordered by id
func (s *TranslationCacheService) Export() ([]models.TranslationCache, error) {
	if s.db == nil {
		return nil, nil
	}
	var entries []models.TranslationCache
	if err := s.db.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
