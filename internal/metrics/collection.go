package metrics

import (
	"log"

	"gorm.io/gorm"

	"github.com/codyseavey/manga-translator/internal/models"
)

// UpdateCacheMetrics queries the database and refreshes the cache gauges.
// Call this after cleanup or periodically.
func UpdateCacheMetrics(db *gorm.DB) {
	if db == nil {
		return
	}

	var totals struct {
		Entries   int64
		Chars     int64
		Favorites int64
	}
	err := db.Model(&models.TranslationCache{}).
		Select(`COUNT(*) AS entries,
			COALESCE(SUM(LENGTH(original_text) + LENGTH(translated_text)), 0) AS chars,
			COALESCE(SUM(CASE WHEN is_favorited THEN 1 ELSE 0 END), 0) AS favorites`).
		Scan(&totals).Error
	if err != nil {
		log.Printf("Metrics: failed to aggregate translation cache: %v", err)
		return
	}

	CacheEntries.Set(float64(totals.Entries))
	CacheSizeChars.Set(float64(totals.Chars))
	CacheFavorites.Set(float64(totals.Favorites))
}
