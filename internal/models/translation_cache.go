package models

import "time"

// TranslationCache stores one cached page translation.
//
// Rows are keyed by Fingerprint, a hash of the OCR text plus the region layout it came from.
// Saving the same fingerprint again overwrites the whole row, so usage, rating and the
// favorite flag start over. Favorited rows are never evicted.
type TranslationCache struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Fingerprint     string    `gorm:"uniqueIndex;not null;size:64" json:"fingerprint"`
	OriginalText    string    `gorm:"not null" json:"original_text"`
	TranslatedText  string    `gorm:"not null" json:"translated_text"`
	SourceLanguage  string    `gorm:"default:'auto';size:16" json:"source_language"`
	TargetLanguage  string    `gorm:"not null;size:16;index" json:"target_language"`
	ModelUsed       string    `gorm:"size:100" json:"model_used"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `gorm:"index:idx_cache_eviction,priority:3" json:"created_at"`
	UsageCount      int       `gorm:"not null;default:1;index:idx_cache_eviction,priority:2" json:"usage_count"`
	UserRating      *int      `json:"user_rating,omitempty"` // 1-5, nil = unrated
	IsFavorited     bool      `gorm:"not null;default:false;index:idx_cache_eviction,priority:1" json:"is_favorited"`
	BubbleContext   *string   `gorm:"type:text" json:"bubble_context,omitempty"` // stored verbatim
}

func (TranslationCache) TableName() string {
	return "translation_caches"
}

// SizeEstimate returns the character length this entry counts against the cache size budget
func (c *TranslationCache) SizeEstimate() int64 {
	return int64(len([]rune(c.OriginalText)) + len([]rune(c.TranslatedText)))
}

// IsOlderThan reports whether the entry was created before now-age
func (c *TranslationCache) IsOlderThan(age time.Duration, now time.Time) bool {
	return c.CreatedAt.Before(now.Add(-age))
}

// CacheStatistics is a derived, read-only snapshot of the cache. Never persisted.
type CacheStatistics struct {
	TotalEntries     int64            `json:"total_entries"`
	TotalBytes       int64            `json:"total_bytes"` // sum of character lengths
	TotalUsage       int64            `json:"total_usage"`
	AverageRating    *float64         `json:"average_rating"` // nil when nothing is rated
	RatedEntries     int64            `json:"rated_entries"`
	FavoritedEntries int64            `json:"favorited_entries"`
	ByTargetLanguage map[string]int64 `json:"by_target_language"`
}
