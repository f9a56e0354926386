package cli

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/codyseavey/manga-translator/internal/config"
	"github.com/codyseavey/manga-translator/internal/database"
	"github.com/codyseavey/manga-translator/internal/services"
)

// app holds the wired services shared by the commands
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	cache    *services.TranslationCacheService
	storage  *services.OutputStorage
	backend  services.Backend
	pipeline *services.Pipeline
}

// openCache opens the database and the cache service only
func openCache(cfg *config.Config) (*app, error) {
	services.SetDebugLogging(cfg.Debug)

	db, err := database.Open(cfg.DBPath, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &app{
		cfg:   cfg,
		db:    db,
		cache: services.NewTranslationCacheService(db, cacheConfig(cfg)),
	}, nil
}

// openApp wires the full translation pipeline on top of the cache
func openApp(cfg *config.Config) (*app, error) {
	a, err := openCache(cfg)
	if err != nil {
		return nil, err
	}

	a.backend, err = services.NewBackend(services.BackendConfig{
		Kind:            cfg.TranslationBackend,
		Profile:         cfg.ModelProfile,
		APIKey:          cfg.GoogleAPIKey,
		APIKeyFile:      cfg.GoogleAPIKeyFile,
		CredentialsFile: cfg.GoogleCredentials,
		RateLimit:       cfg.BackendRateLimit,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if !a.backend.IsEnabled() {
		log.Printf("Translation backend %s has no credentials; pages will fail with a setup error", cfg.TranslationBackend)
	}

	ocr := services.NewTesseractOCR(cfg.TesseractPath, "")
	if !ocr.IsAvailable() {
		log.Printf("Warning: tesseract not found, OCR will fail until it is installed")
	}

	a.storage = services.NewOutputStorage(cfg.OutputDir)

	// A nil renderer makes the pipeline return overlays instead of a burned-in page
	var renderer services.Renderer
	if cfg.BurnIn {
		magick := services.NewMagickRenderer(cfg.MagickPath, cfg.RenderFont, a.storage)
		if magick.IsAvailable() {
			renderer = magick
		} else {
			log.Printf("ImageMagick not found, burn-in disabled")
		}
	}

	a.pipeline = services.NewPipeline(ocr, a.backend, a.cache, renderer, services.DefaultStampStyle())
	return a, nil
}

// Close stops the cache goroutine and closes the database
func (a *app) Close() {
	a.cache.Close()
	if err := database.Close(a.db); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}

func (a *app) sessionDefaults() services.SessionOptions {
	return services.SessionOptions{
		TargetLanguage:  a.cfg.TargetLanguage,
		SourceLanguage:  a.cfg.SourceLanguage,
		OCRLanguageHint: a.cfg.OCRLanguageHint,
		AutoTranslate:   a.cfg.AutoTranslate,
	}
}

func cacheConfig(cfg *config.Config) services.CacheConfig {
	return services.CacheConfig{
		MaxChars:          cfg.CacheMaxChars,
		MaxEntries:        cfg.CacheMaxEntries,
		MaxAge:            cfg.CacheMaxAge,
		EvictionBatchSize: cfg.CacheEvictionBatch,
		CleanupOnPut:      true,
	}
}
