package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means no translation backend has credentials. The user has to fix setup.
	ErrNotConfigured = errors.New("translation backend not configured")

	// ErrNoTextDetected means OCR ran fine but found nothing to translate (wordless pages)
	ErrNoTextDetected = errors.New("no text detected")

	// ErrInvalidRating is returned for ratings outside 1-5
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrSessionNotFound is returned by the session manager for unknown ids
	ErrSessionNotFound = errors.New("session not found")
)

// Stage identifies a pipeline step, both for progress events and for failures
type Stage string

const (
	StageOCR         Stage = "ocr"
	StageTranslating Stage = "translating"
	StageRendering   Stage = "rendering"
	StageDone        Stage = "done"
)

// PipelineError is a collaborator fault (OCR, backend, or burn-in) tagged with its stage
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ErrorCategory is the user-facing bucket a pipeline failure falls into
type ErrorCategory string

const (
	ErrorCategoryNone          ErrorCategory = ""
	ErrorCategoryNoText        ErrorCategory = "no_text"
	ErrorCategoryNotConfigured ErrorCategory = "not_configured"
	ErrorCategoryGeneric       ErrorCategory = "generic"
)

// User-facing messages, one per category
const (
	MessageNoText        = "No text found on this page."
	MessageNotConfigured = "Translation isn't set up yet. Add a translation API key in settings."
	MessageGeneric       = "Translation failed. Check your connection and try again."
)

// ClassifyError maps any pipeline error to exactly one category and message
func ClassifyError(err error) (ErrorCategory, string) {
	switch {
	case err == nil:
		return ErrorCategoryNone, ""
	case errors.Is(err, ErrNoTextDetected):
		return ErrorCategoryNoText, MessageNoText
	case errors.Is(err, ErrNotConfigured):
		return ErrorCategoryNotConfigured, MessageNotConfigured
	default:
		return ErrorCategoryGeneric, MessageGeneric
	}
}

// outcomeLabel maps a pipeline error to the pipeline_runs_total outcome label
func outcomeLabel(err error) string {
	var pe *PipelineError
	switch {
	case errors.Is(err, ErrNoTextDetected):
		return "no_text"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.As(err, &pe):
		switch pe.Stage {
		case StageOCR:
			return "ocr_error"
		case StageTranslating:
			return "backend_error"
		case StageRendering:
			return "render_error"
		}
	}
	return "error"
}
