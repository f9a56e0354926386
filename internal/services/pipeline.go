package services

import (
	"context"
	"strings"
	"time"

	"github.com/codyseavey/manga-translator/internal/metrics"
	"github.com/codyseavey/manga-translator/internal/models"
)

// Progress reported at the start of each stage
const (
	ProgressOCR         = 0.1
	ProgressTranslating = 0.4
	ProgressRendering   = 0.7
	ProgressDone        = 1.0
)

// Stamp font sizing, in points, derived from region height
const (
	minFontSize     = 16.0
	maxFontSize     = 48.0
	fontHeightRatio = 0.6
)

// PageRequest describes one page to translate
type PageRequest struct {
	ImagePath       string `json:"image_path"`
	TargetLanguage  string `json:"target_language"`
	SourceLanguage  string `json:"source_language"`   // "auto" or empty lets the backend detect
	OCRLanguageHint string `json:"ocr_language_hint"` // ISO code or tesseract language
}

// ProgressFunc receives stage transitions in order: ocr, translating, rendering, done
type ProgressFunc func(stage Stage, progress float64)

// PageResult is the outcome of one page translation
type PageResult struct {
	Regions                []models.TextRegion        `json:"regions"`
	Translations           []models.RegionTranslation `json:"translations"`
	OriginalText           string                     `json:"original_text"`
	TranslatedText         string                     `json:"translated_text"`
	Model                  string                     `json:"model"`
	Confidence             float64                    `json:"confidence"`
	DetectedSourceLanguage string                     `json:"detected_source_language"`
	FromCache              bool                       `json:"from_cache"`
	CacheID                uint                       `json:"cache_id,omitempty"`
	// EditedImagePath is empty when no renderer is configured
	EditedImagePath string `json:"edited_image_path,omitempty"`
	// Region is the single-box view for simpler callers: union of all boxes, all original text
	Region *models.TextRegion `json:"region,omitempty"`
}

// Pipeline runs OCR, cache lookup, translation and burn-in for one page at a time.
// It holds no per-page state and is safe for concurrent use.
type Pipeline struct {
	ocr      OCREngine
	backend  Backend
	cache    *TranslationCacheService
	renderer Renderer
	style    StampStyle
}

// NewPipeline wires the collaborators. A nil renderer disables burn-in.
func NewPipeline(ocr OCREngine, backend Backend, cache *TranslationCacheService, renderer Renderer, style StampStyle) *Pipeline {
	return &Pipeline{
		ocr:      ocr,
		backend:  backend,
		cache:    cache,
		renderer: renderer,
		style:    style,
	}
}

// IsConfigured reports whether a usable translation backend is present
func (p *Pipeline) IsConfigured() bool {
	return p.backend != nil && p.backend.IsEnabled()
}

// CanRender reports whether burn-in is available
func (p *Pipeline) CanRender() bool {
	return p.renderer != nil
}

// Translate processes one page. Collaborator failures come back as *PipelineError;
// ErrNotConfigured and ErrNoTextDetected are returned as-is.
func (p *Pipeline) Translate(ctx context.Context, req PageRequest, progress ProgressFunc) (result *PageResult, err error) {
	if progress == nil {
		progress = func(Stage, float64) {}
	}

	fromCache := false
	defer func() {
		switch {
		case err != nil:
			metrics.PipelineRunsTotal.WithLabelValues(outcomeLabel(err)).Inc()
			infoLog("Page translation failed for %s: %v", req.ImagePath, err)
		case fromCache:
			metrics.PipelineRunsTotal.WithLabelValues("cache_hit").Inc()
		default:
			metrics.PipelineRunsTotal.WithLabelValues("success").Inc()
		}
	}()

	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}

	// OCR
	progress(StageOCR, ProgressOCR)
	stageStart := time.Now()
	detected, err := p.ocr.DetectText(ctx, req.ImagePath, req.OCRLanguageHint)
	observeStage(StageOCR, stageStart)
	if err != nil {
		return nil, &PipelineError{Stage: StageOCR, Err: err}
	}
	regions := nonEmptyRegions(detected)
	if len(regions) == 0 {
		return nil, ErrNoTextDetected
	}

	originalText := models.JoinRegionText(regions)
	regionContext := models.RegionContext(regions)
	debugLog("OCR text (%d regions): %q", len(regions), truncateText(originalText, 80))

	// Translation, cache first
	progress(StageTranslating, ProgressTranslating)
	stageStart = time.Now()
	result = &PageResult{
		Regions:      regions,
		OriginalText: originalText,
	}
	if cached, hit := p.lookupCache(originalText, req, regionContext); hit {
		fromCache = true
		result.FromCache = true
		result.CacheID = cached.ID
		result.TranslatedText = cached.TranslatedText
		result.Model = cached.ModelUsed
		result.Confidence = cached.ConfidenceScore
		result.DetectedSourceLanguage = cached.SourceLanguage
	} else {
		translated, err := p.backend.Translate(ctx, originalText, req.SourceLanguage, req.TargetLanguage)
		if err != nil {
			observeStage(StageTranslating, stageStart)
			return nil, &PipelineError{Stage: StageTranslating, Err: err}
		}
		result.TranslatedText = translated.TranslatedText
		result.Model = translated.Model
		result.Confidence = clampUnit(translated.Confidence)
		result.DetectedSourceLanguage = translated.DetectedSourceLanguage
	}
	observeStage(StageTranslating, stageStart)

	lines := alignTranslation(len(regions), result.TranslatedText)
	result.Translations = make([]models.RegionTranslation, len(regions))
	stamps := make([]Stamp, len(regions))
	for i, region := range regions {
		size := fontSizeFor(region.BoundingBox.Height)
		result.Translations[i] = models.RegionTranslation{
			Region:         region,
			TranslatedText: lines[i],
			FontSize:       size,
		}
		stamps[i] = Stamp{Text: lines[i], Box: region.BoundingBox, FontSize: size}
	}
	result.Region = legacyRegion(regions, originalText)

	// Burn-in runs on cache hits too; the page image may differ
	progress(StageRendering, ProgressRendering)
	if p.renderer != nil {
		stageStart = time.Now()
		edited, err := p.renderer.Render(ctx, req.ImagePath, stamps, p.style)
		observeStage(StageRendering, stageStart)
		if err != nil {
			return nil, &PipelineError{Stage: StageRendering, Err: err}
		}
		result.EditedImagePath = edited
	}

	// Only complete pages are cached
	if !fromCache {
		p.storeCache(result, req, regionContext)
	}

	progress(StageDone, ProgressDone)
	infoLog("Translated page %s: regions=%d model=%s conf=%.2f cached=%v",
		req.ImagePath, len(regions), result.Model, result.Confidence, fromCache)
	return result, nil
}

func (p *Pipeline) lookupCache(text string, req PageRequest, regionContext string) (*models.TranslationCache, bool) {
	if p.cache == nil {
		return nil, false
	}
	return p.cache.Get(text, req.TargetLanguage, req.SourceLanguage, regionContext)
}

// storeCache writes the finished translation. Failures are logged, never returned.
func (p *Pipeline) storeCache(result *PageResult, req PageRequest, regionContext string) {
	if p.cache == nil {
		return
	}
	source := result.DetectedSourceLanguage
	if source == "" {
		source = req.SourceLanguage
	}
	err := p.cache.Put(CacheEntry{
		OriginalText:   result.OriginalText,
		TranslatedText: result.TranslatedText,
		TargetLanguage: req.TargetLanguage,
		SourceLanguage: source,
		ModelUsed:      result.Model,
		Confidence:     result.Confidence,
		Context:        regionContext,
	})
	if err != nil {
		infoLog("Failed to cache translation for %s: %v", req.ImagePath, err)
	}
}

// alignTranslation splits translated output across n regions: line i goes to region i,
// surplus regions repeat the last line and surplus lines are folded into the last region.
// Best effort only; nothing guarantees the backend kept one line per region.
func alignTranslation(n int, translated string) []string {
	out := make([]string, n)
	if n == 0 {
		return out
	}

	translated = strings.TrimSpace(strings.ReplaceAll(translated, "\r\n", "\n"))
	if translated == "" {
		return out
	}

	var lines []string
	for _, line := range strings.Split(translated, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	for i := 0; i < n; i++ {
		if i < len(lines) {
			out[i] = lines[i]
		} else {
			out[i] = lines[len(lines)-1]
		}
	}
	if len(lines) > n {
		out[n-1] = strings.Join(lines[n-1:], " ")
	}
	return out
}

// fontSizeFor scales the font with the region height, clamped to a readable range
func fontSizeFor(height int) float64 {
	size := float64(height) * fontHeightRatio
	if size < minFontSize {
		return minFontSize
	}
	if size > maxFontSize {
		return maxFontSize
	}
	return size
}

func nonEmptyRegions(regions []models.TextRegion) []models.TextRegion {
	kept := make([]models.TextRegion, 0, len(regions))
	for _, r := range regions {
		if strings.TrimSpace(r.Text) != "" {
			kept = append(kept, r)
		}
	}
	return kept
}

func legacyRegion(regions []models.TextRegion, text string) *models.TextRegion {
	var box models.BoundingBox
	var confSum float64
	for _, r := range regions {
		box = box.Union(r.BoundingBox)
		confSum += r.Confidence
	}
	return &models.TextRegion{
		Text:         text,
		BoundingBox:  box,
		CornerPoints: box.Corners(),
		Confidence:   confSum / float64(len(regions)),
	}
}

func observeStage(stage Stage, start time.Time) {
	metrics.PipelineStageLatency.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
