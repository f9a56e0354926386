package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/codyseavey/manga-translator/internal/metrics"
)

const (
	geminiAPIBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiTimeout    = 30 * time.Second
)

// geminiProfile is one model choice with its generation settings
type geminiProfile struct {
	name            string
	model           string
	temperature     float64
	maxOutputTokens int
}

var geminiProfiles = map[string]geminiProfile{
	// Flash: fast and cheap, good enough for short dialogue
	ProfileFast: {name: ProfileFast, model: "gemini-3-flash-preview", temperature: 0.2, maxOutputTokens: 2048},
	// Pro: slower, better with slang, honorifics and sound effects
	ProfileAccurate: {name: ProfileAccurate, model: "gemini-2.5-pro", temperature: 0.1, maxOutputTokens: 4096},
}

func geminiProfileFor(name string) (geminiProfile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = ProfileFast
	}
	profile, ok := geminiProfiles[name]
	if !ok {
		return geminiProfile{}, fmt.Errorf("unknown model profile %q", name)
	}
	return profile, nil
}

// GeminiBackend translates manga dialogue with the Gemini API using structured output
type GeminiBackend struct {
	apiKey     string
	baseURL    string
	profile    geminiProfile
	httpClient *http.Client
	limiter    *rate.Limiter
	enabled    bool
}

// geminiTranslation is the structured response we ask Gemini for
type geminiTranslation struct {
	Translation      string  `json:"translation"`
	Confidence       float64 `json:"confidence"`
	DetectedLanguage string  `json:"detected_language"`
}

// geminiRequest is the request body for Gemini API
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	ResponseMimeType   string                 `json:"responseMimeType"`
	ResponseJSONSchema map[string]interface{} `json:"responseJsonSchema"`
	Temperature        float64                `json:"temperature"`
	MaxOutputTokens    int                    `json:"maxOutputTokens"`
}

// geminiAPIResponse is the response from Gemini API
type geminiAPIResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// translationResponseSchema enforces the structured JSON output from Gemini
var translationResponseSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"translation":       map[string]interface{}{"type": "string"},
		"confidence":        map[string]interface{}{"type": "number"},
		"detected_language": map[string]interface{}{"type": "string"},
	},
	"required": []string{"translation", "confidence", "detected_language"},
}

const geminiPrompt = `You are a professional manga translator. The text below was extracted by OCR from one manga page. Each line is one speech bubble or caption, in reading order.

TASK: Translate every line into %s.

RULES:
- Output exactly one translated line per input line, in the same order, separated by newlines
- Never merge or split lines, even if a sentence continues into the next bubble
- Keep names, honorifics (-san, -kun, senpai) and sound effects natural for manga readers
- Keep it short enough to fit back into the original bubble
- If a line is OCR garbage, make your best guess and lower the confidence
- Set "detected_language" to the ISO 639-1 code of the source text
- Confidence meanings:
  - 0.9-1.0: Clean text, unambiguous translation
  - 0.7-0.89: Minor OCR noise or ambiguity
  - Below 0.7: Guessing
%s
TEXT:
%s

Respond with valid JSON matching the schema.`

// NewGeminiBackend creates a Gemini backend. An empty apiKey leaves it disabled.
func NewGeminiBackend(apiKey string, profile geminiProfile, limiter *rate.Limiter) *GeminiBackend {
	b := &GeminiBackend{
		apiKey:     apiKey,
		baseURL:    geminiAPIBaseURL,
		profile:    profile,
		httpClient: &http.Client{Timeout: geminiTimeout},
		limiter:    limiter,
		enabled:    apiKey != "",
	}

	if b.enabled {
		// Only show first 10 chars of key for security
		keyPreview := apiKey
		if len(keyPreview) > 10 {
			keyPreview = keyPreview[:10] + "..."
		}
		infoLog("Gemini backend: enabled (profile=%s, model=%s, key=%s)", profile.name, profile.model, keyPreview)
	} else {
		infoLog("Gemini backend: disabled (no GOOGLE_API_KEY)")
	}

	return b
}

// Name returns the model identifier stored with cached translations
func (b *GeminiBackend) Name() string {
	return "gemini/" + b.profile.model
}

// IsEnabled returns whether Gemini translation is available
func (b *GeminiBackend) IsEnabled() bool {
	return b.enabled
}

// Translate sends the aggregated page text in a single request
func (b *GeminiBackend) Translate(ctx context.Context, text, sourceLang, targetLang string) (*BackendResult, error) {
	if !b.enabled {
		return nil, ErrNotConfigured
	}
	if text == "" {
		return &BackendResult{Model: b.Name(), DetectedSourceLanguage: sourceLang}, nil
	}

	if err := waitLimiter(ctx, b.limiter); err != nil {
		return nil, err
	}

	startTime := time.Now()

	sourceHint := ""
	if sourceLang != "" && sourceLang != "auto" {
		sourceHint = fmt.Sprintf("- The source language is %s\n", sourceLang)
	}
	prompt := fmt.Sprintf(geminiPrompt, targetLang, sourceHint, text)

	req := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenConfig{
			ResponseMimeType:   "application/json",
			ResponseJSONSchema: translationResponseSchema,
			Temperature:        b.profile.temperature,
			MaxOutputTokens:    b.profile.maxOutputTokens,
		},
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", b.baseURL, b.profile.model, b.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	debugLog("Gemini request: model=%s, input_len=%d, target=%s", b.profile.model, len(text), targetLang)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGemini, "network").Inc()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	latency := time.Since(startTime)
	metrics.BackendLatency.WithLabelValues(BackendGemini).Observe(latency.Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGemini, "read").Inc()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGemini, "api").Inc()
		debugLog("Gemini API error: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp geminiAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGemini, "parse").Inc()
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	if apiResp.Error != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGemini, "api").Inc()
		return nil, fmt.Errorf("API error %d: %s", apiResp.Error.Code, apiResp.Error.Message)
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGemini, "empty").Inc()
		return nil, fmt.Errorf("no response from Gemini")
	}

	responseText := apiResp.Candidates[0].Content.Parts[0].Text
	var translation geminiTranslation
	if err := json.Unmarshal([]byte(responseText), &translation); err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGemini, "schema").Inc()
		debugLog("Gemini response parse error: %v, response: %s", err, responseText)
		return nil, fmt.Errorf("failed to parse translation response: %w", err)
	}

	result := &BackendResult{
		TranslatedText:         strings.TrimSpace(translation.Translation),
		Confidence:             clampUnit(translation.Confidence),
		Model:                  b.Name(),
		DetectedSourceLanguage: translation.DetectedLanguage,
	}
	if result.DetectedSourceLanguage == "" {
		result.DetectedSourceLanguage = sourceLang
	}

	metrics.BackendRequestsTotal.WithLabelValues(BackendGemini, b.profile.model).Inc()
	metrics.BackendConfidence.Observe(result.Confidence)

	infoLog("Gemini translated: %q -> %q (conf=%.2f, lang=%s, latency=%v)",
		truncateText(text, 30),
		truncateText(result.TranslatedText, 30),
		result.Confidence,
		result.DetectedSourceLanguage,
		latency)

	return result, nil
}
