package services

import (
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Read by request goroutines; SetDebugLogging may run at any time
var translationDebugEnabled atomic.Bool

func init() {
	// Enable debug logging if TRANSLATION_DEBUG=1, true or yes
	if v := os.Getenv("TRANSLATION_DEBUG"); v != "" {
		SetDebugLogging(isTruthy(v))
	}
}

// SetDebugLogging toggles verbose per-page logging (OCR text, cache hits/misses, stamps)
func SetDebugLogging(enabled bool) {
	if translationDebugEnabled.Swap(enabled) != enabled && enabled {
		log.Println("[TRANSLATION] Debug logging: ENABLED")
	}
}

// DebugLoggingEnabled reports whether verbose logging is on
func DebugLoggingEnabled() bool {
	return translationDebugEnabled.Load()
}

// debugLog logs only when TRANSLATION_DEBUG is enabled.
// Use this for verbose per-page details, OCR text, cache hits/misses, etc.
func debugLog(format string, args ...interface{}) {
	if translationDebugEnabled.Load() {
		log.Printf("[TRANSLATION DEBUG] "+format, args...)
	}
}

// infoLog always logs important translation events.
// Use this for backend failures, evictions, session outcomes, etc.
func infoLog(format string, args ...interface{}) {
	log.Printf("[TRANSLATION] "+format, args...)
}

func isTruthy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes"
}

// truncateText truncates text to maxLen runes with ellipsis.
// Uses rune count instead of byte count so Japanese text is not cut mid-character.
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
