package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DB_PATH", "CORS_ORIGINS", "TARGET_LANGUAGE", "TRANSLATION_BACKEND",
		"MODEL_PROFILE", "CACHE_MAX_BYTES", "CACHE_MAX_ENTRIES", "CACHE_MAX_AGE",
		"CACHE_CLEANUP_INTERVAL", "BACKEND_RATE_LIMIT", "BURN_IN", "ADMIN_KEY",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %q", cfg.Port)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"*"}) {
		t.Errorf("Expected wildcard CORS, got %v", cfg.CORSOrigins)
	}
	if cfg.TargetLanguage != "en" || cfg.SourceLanguage != "auto" {
		t.Errorf("Unexpected language defaults %q/%q", cfg.TargetLanguage, cfg.SourceLanguage)
	}
	if cfg.TranslationBackend != "gemini" || cfg.ModelProfile != "fast" {
		t.Errorf("Unexpected backend defaults %q/%q", cfg.TranslationBackend, cfg.ModelProfile)
	}
	if cfg.CacheMaxChars != 500*1024*1024 {
		t.Errorf("Expected 500 MiB budget, got %d", cfg.CacheMaxChars)
	}
	if cfg.CacheMaxEntries != 10000 || cfg.CacheEvictionBatch != 100 {
		t.Errorf("Unexpected cache limits %d/%d", cfg.CacheMaxEntries, cfg.CacheEvictionBatch)
	}
	if cfg.CacheMaxAge != 30*24*time.Hour {
		t.Errorf("Expected 30 day max age, got %v", cfg.CacheMaxAge)
	}
	if !cfg.BurnIn {
		t.Error("Expected burn-in enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://reader.example.com, http://localhost:5173,")
	t.Setenv("TRANSLATION_BACKEND", "Google")
	t.Setenv("MODEL_PROFILE", "ACCURATE")
	t.Setenv("CACHE_MAX_ENTRIES", "250")
	t.Setenv("CACHE_MAX_AGE", "7d")
	t.Setenv("CACHE_CLEANUP_INTERVAL", "15m")
	t.Setenv("BACKEND_RATE_LIMIT", "0.5")
	t.Setenv("BURN_IN", "no")
	t.Setenv("AUTO_TRANSLATE", "yes")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %q", cfg.Port)
	}
	expectedOrigins := []string{"https://reader.example.com", "http://localhost:5173"}
	if !reflect.DeepEqual(cfg.CORSOrigins, expectedOrigins) {
		t.Errorf("Expected %v, got %v", expectedOrigins, cfg.CORSOrigins)
	}
	if cfg.TranslationBackend != "google" || cfg.ModelProfile != "accurate" {
		t.Errorf("Expected lowercased backend settings, got %q/%q", cfg.TranslationBackend, cfg.ModelProfile)
	}
	if cfg.CacheMaxEntries != 250 {
		t.Errorf("Expected 250 entries, got %d", cfg.CacheMaxEntries)
	}
	if cfg.CacheMaxAge != 7*24*time.Hour {
		t.Errorf("Expected 7 days, got %v", cfg.CacheMaxAge)
	}
	if cfg.CacheCleanupInterval != 15*time.Minute {
		t.Errorf("Expected 15m, got %v", cfg.CacheCleanupInterval)
	}
	if cfg.BackendRateLimit != 0.5 {
		t.Errorf("Expected rate limit 0.5, got %v", cfg.BackendRateLimit)
	}
	if cfg.BurnIn || !cfg.AutoTranslate {
		t.Errorf("Expected burn-in off and auto-translate on, got %v/%v", cfg.BurnIn, cfg.AutoTranslate)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_MAX_ENTRIES", "lots")
	t.Setenv("CACHE_MAX_AGE", "forever")
	t.Setenv("BURN_IN", "maybe")

	cfg := Load()

	if cfg.CacheMaxEntries != 10000 {
		t.Errorf("Expected fallback 10000, got %d", cfg.CacheMaxEntries)
	}
	if cfg.CacheMaxAge != 30*24*time.Hour {
		t.Errorf("Expected fallback 30 days, got %v", cfg.CacheMaxAge)
	}
	if !cfg.BurnIn {
		t.Error("Expected fallback burn-in true")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"1h30m", 90 * time.Minute, false},
		{"xd", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
