package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DBPath      string
	OutputDir   string
	CORSOrigins []string
	AdminKey    string
	Debug       bool

	TargetLanguage  string
	SourceLanguage  string
	OCRLanguageHint string
	AutoTranslate   bool

	TranslationBackend string // gemini or google
	ModelProfile       string // fast or accurate
	GoogleAPIKey       string
	GoogleAPIKeyFile   string
	GoogleCredentials  string
	BackendRateLimit   float64 // requests per second, 0 = unlimited

	TesseractPath string
	MagickPath    string
	RenderFont    string
	BurnIn        bool

	CacheMaxChars        int64
	CacheMaxEntries      int
	CacheMaxAge          time.Duration
	CacheEvictionBatch   int
	CacheCleanupInterval time.Duration
}

func Load() *Config {
	// CORS origins: comma-separated list or "*" (default)
	corsOrigins := []string{"*"}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		corsOrigins = splitList(v)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "./data/translations.db"),
		OutputDir:   getEnv("OUTPUT_DIR", "./data/pages"),
		CORSOrigins: corsOrigins,
		AdminKey:    os.Getenv("ADMIN_KEY"),
		Debug:       getBool("TRANSLATION_DEBUG", false),

		TargetLanguage:  getEnv("TARGET_LANGUAGE", "en"),
		SourceLanguage:  getEnv("SOURCE_LANGUAGE", "auto"),
		OCRLanguageHint: getEnv("OCR_LANGUAGE_HINT", "ja"),
		AutoTranslate:   getBool("AUTO_TRANSLATE", false),

		TranslationBackend: strings.ToLower(getEnv("TRANSLATION_BACKEND", "gemini")),
		ModelProfile:       strings.ToLower(getEnv("MODEL_PROFILE", "fast")),
		GoogleAPIKey:       os.Getenv("GOOGLE_API_KEY"),
		GoogleAPIKeyFile:   os.Getenv("GOOGLE_API_KEY_FILE"),
		GoogleCredentials:  os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		BackendRateLimit:   getFloat("BACKEND_RATE_LIMIT", 2),

		TesseractPath: os.Getenv("TESSERACT_PATH"),
		MagickPath:    os.Getenv("MAGICK_PATH"),
		RenderFont:    os.Getenv("RENDER_FONT"),
		BurnIn:        getBool("BURN_IN", true),

		CacheMaxChars:        getInt64("CACHE_MAX_BYTES", 500*1024*1024),
		CacheMaxEntries:      int(getInt64("CACHE_MAX_ENTRIES", 10000)),
		CacheMaxAge:          getDuration("CACHE_MAX_AGE", 30*24*time.Hour),
		CacheEvictionBatch:   int(getInt64("CACHE_EVICTION_BATCH", 100)),
		CacheCleanupInterval: getDuration("CACHE_CLEANUP_INTERVAL", time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	log.Printf("Config: invalid %s=%q, using %v", key, v, fallback)
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		log.Printf("Config: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("Config: invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

// getDuration accepts Go durations ("90m", "720h") and whole days ("30d")
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := ParseDuration(v); err == nil {
		return d
	}
	log.Printf("Config: invalid %s=%q, using %v", key, v, fallback)
	return fallback
}

// ParseDuration is time.ParseDuration plus a "d" (24h) suffix
func ParseDuration(v string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
