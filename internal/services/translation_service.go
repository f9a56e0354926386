package services

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/codyseavey/manga-translator/internal/metrics"
)

const (
	// Google Cloud Translation API v3 endpoint
	translationAPIURL = "https://translation.googleapis.com/v3/projects/%s/locations/global:translateText"

	// Default timeout for translation requests
	translationTimeout = 10 * time.Second

	translationScope = "https://www.googleapis.com/auth/cloud-translation"

	// Cloud Translation reports no confidence; NMT output is assumed reasonably good
	googleTranslateConfidence = 0.8
	googleTranslateModel      = "google/nmt"
)

// GoogleTranslateBackend calls Google Cloud Translation v3 with service-account auth
type GoogleTranslateBackend struct {
	projectID   string
	apiURL      string
	accessToken string
	tokenExpiry time.Time
	httpClient  *http.Client
	credentials *googleCredentials
	privateKey  *rsa.PrivateKey
	limiter     *rate.Limiter
	enabled     bool
	mu          sync.Mutex // Protects token refresh
}

// googleCredentials represents a Google Cloud service account JSON key
type googleCredentials struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// translateRequest is the request body for Google Cloud Translation API v3
type translateRequest struct {
	SourceLanguageCode string   `json:"sourceLanguageCode,omitempty"`
	TargetLanguageCode string   `json:"targetLanguageCode"`
	Contents           []string `json:"contents"`
	MimeType           string   `json:"mimeType"`
}

// translateResponse is the response from Google Cloud Translation API v3
type translateResponse struct {
	Translations []struct {
		TranslatedText       string `json:"translatedText"`
		DetectedLanguageCode string `json:"detectedLanguageCode,omitempty"`
	} `json:"translations"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// tokenResponse is the response from Google OAuth2 token endpoint
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

// NewGoogleTranslateBackend creates the backend from a service account key file.
// Missing or invalid credentials leave it disabled.
func NewGoogleTranslateBackend(credPath string, limiter *rate.Limiter) *GoogleTranslateBackend {
	b := &GoogleTranslateBackend{
		httpClient: &http.Client{Timeout: translationTimeout},
		limiter:    limiter,
	}

	if credPath == "" {
		infoLog("Google Translate backend: GOOGLE_APPLICATION_CREDENTIALS not set, disabled")
		return b
	}

	// Expand ~ to home directory
	if strings.HasPrefix(credPath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			credPath = strings.Replace(credPath, "~", home, 1)
		}
	}

	data, err := os.ReadFile(credPath)
	if err != nil {
		infoLog("Google Translate backend: failed to read credentials file %s: %v", credPath, err)
		return b
	}

	if err := b.loadCredentials(data); err != nil {
		infoLog("Google Translate backend: %v", err)
		return b
	}

	infoLog("Google Translate backend: enabled for project %s", b.projectID)
	return b
}

// loadCredentials parses a service account JSON key and enables the backend
func (b *GoogleTranslateBackend) loadCredentials(data []byte) error {
	var creds googleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("failed to parse credentials: %w", err)
	}
	if creds.ProjectID == "" || creds.PrivateKey == "" || creds.ClientEmail == "" {
		return fmt.Errorf("credentials file missing required fields")
	}
	if creds.TokenURI == "" {
		creds.TokenURI = "https://oauth2.googleapis.com/token"
	}

	// Handles both PKCS1 and PKCS8 PEM blocks
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	b.credentials = &creds
	b.privateKey = privateKey
	b.projectID = creds.ProjectID
	b.apiURL = fmt.Sprintf(translationAPIURL, creds.ProjectID)
	b.enabled = true
	return nil
}

// Name returns the model identifier stored with cached translations
func (b *GoogleTranslateBackend) Name() string {
	return googleTranslateModel
}

// IsEnabled returns whether the translation service is available
func (b *GoogleTranslateBackend) IsEnabled() bool {
	return b.enabled
}

// Translate translates text from source language to target language.
// If sourceLang is empty or "auto", the API detects the source language.
func (b *GoogleTranslateBackend) Translate(ctx context.Context, text, sourceLang, targetLang string) (*BackendResult, error) {
	if !b.enabled {
		return nil, ErrNotConfigured
	}

	if sourceLang == "auto" {
		sourceLang = ""
	}

	if text == "" {
		return &BackendResult{Model: googleTranslateModel, DetectedSourceLanguage: sourceLang}, nil
	}

	if err := waitLimiter(ctx, b.limiter); err != nil {
		return nil, err
	}

	startTime := time.Now()

	if err := b.ensureAccessToken(ctx); err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGoogle, "auth").Inc()
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	reqBody := translateRequest{
		SourceLanguageCode: sourceLang,
		TargetLanguageCode: targetLang,
		Contents:           []string{text},
		MimeType:           "text/plain",
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	b.mu.Lock()
	token := b.accessToken
	b.mu.Unlock()

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGoogle, "network").Inc()
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.BackendLatency.WithLabelValues(BackendGoogle).Observe(sinceSeconds(startTime))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGoogle, "read").Inc()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGoogle, "api").Inc()
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result translateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGoogle, "parse").Inc()
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error != nil {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGoogle, "api").Inc()
		return nil, fmt.Errorf("API error %d: %s", result.Error.Code, result.Error.Message)
	}

	if len(result.Translations) == 0 {
		metrics.BackendErrorsTotal.WithLabelValues(BackendGoogle, "empty").Inc()
		return nil, fmt.Errorf("no translations returned")
	}

	translated := result.Translations[0]
	detected := translated.DetectedLanguageCode
	if detected == "" {
		detected = sourceLang
	}

	metrics.BackendRequestsTotal.WithLabelValues(BackendGoogle, googleTranslateModel).Inc()
	metrics.BackendConfidence.Observe(googleTranslateConfidence)
	debugLog("Google translated %d chars (detected=%s)", len(text), detected)

	return &BackendResult{
		TranslatedText:         translated.TranslatedText,
		Confidence:             googleTranslateConfidence,
		Model:                  googleTranslateModel,
		DetectedSourceLanguage: detected,
	}, nil
}

// ensureAccessToken gets or refreshes the OAuth2 access token using the service account
func (b *GoogleTranslateBackend) ensureAccessToken(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Check if we have a valid token (with 1 minute buffer)
	if b.accessToken != "" && time.Now().Add(time.Minute).Before(b.tokenExpiry) {
		return nil
	}

	assertion, err := b.signAssertion(time.Now())
	if err != nil {
		return fmt.Errorf("failed to create JWT: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, "POST", b.credentials.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read token response: %w", err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.Error != "" {
		return fmt.Errorf("token error: %s - %s", tokenResp.Error, tokenResp.ErrorDesc)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	b.accessToken = tokenResp.AccessToken
	b.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return nil
}

// signAssertion creates the RS256 service-account assertion exchanged for an access token
func (b *GoogleTranslateBackend) signAssertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   b.credentials.ClientEmail,
		"sub":   b.credentials.ClientEmail,
		"aud":   b.credentials.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": translationScope,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if b.credentials.PrivateKeyID != "" {
		token.Header["kid"] = b.credentials.PrivateKeyID
	}
	return token.SignedString(b.privateKey)
}
