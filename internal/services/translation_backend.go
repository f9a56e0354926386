package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Backend is a translation capability: text in, translated text plus provenance out
type Backend interface {
	// Name identifies the backend/model combination stored as model_used
	Name() string
	// IsEnabled reports whether credentials were found
	IsEnabled() bool
	Translate(ctx context.Context, text, sourceLang, targetLang string) (*BackendResult, error)
}

// BackendResult is one backend translation
type BackendResult struct {
	TranslatedText         string
	Confidence             float64
	Model                  string
	DetectedSourceLanguage string
}

// Model profiles
const (
	ProfileFast     = "fast"
	ProfileAccurate = "accurate"
)

// Backend kinds
const (
	BackendGemini = "gemini"
	BackendGoogle = "google"
)

// BackendConfig selects and configures a translation backend
type BackendConfig struct {
	Kind    string // gemini (default) or google
	Profile string // fast (default) or accurate; only meaningful for gemini

	// APIKey (or the file at APIKeyFile) authenticates gemini
	APIKey     string
	APIKeyFile string

	// CredentialsFile is a Google service-account JSON key for Cloud Translation
	CredentialsFile string

	// RateLimit caps outgoing requests per second; <= 0 means unlimited
	RateLimit float64
}

// NewBackend builds the backend named by cfg.Kind. A backend without
// credentials is still returned so callers can report "not configured".
func NewBackend(cfg BackendConfig) (Backend, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	switch kind {
	case "", BackendGemini:
		apiKey := cfg.APIKey
		if apiKey == "" && cfg.APIKeyFile != "" {
			// Read from file as fallback (for local dev)
			if data, err := os.ReadFile(cfg.APIKeyFile); err == nil {
				apiKey = strings.TrimSpace(string(data))
			}
		}
		profile, err := geminiProfileFor(cfg.Profile)
		if err != nil {
			return nil, err
		}
		return NewGeminiBackend(apiKey, profile, newLimiter(cfg.RateLimit)), nil
	case BackendGoogle:
		return NewGoogleTranslateBackend(cfg.CredentialsFile, newLimiter(cfg.RateLimit)), nil
	default:
		return nil, fmt.Errorf("unknown translation backend %q", cfg.Kind)
	}
}

// newLimiter allows bursts of one request so callers queue rather than stampede
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// waitLimiter blocks for the next request slot
func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func sinceSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}
