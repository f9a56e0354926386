package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codyseavey/manga-translator/internal/models"
)

// BubbleState is the translate button's visible state
type BubbleState string

const (
	BubbleIdle       BubbleState = "idle"
	BubbleProcessing BubbleState = "processing"
	BubbleComplete   BubbleState = "complete"
	BubbleError      BubbleState = "error"
)

// How long complete and error stay visible before reverting to idle
const (
	DefaultSuccessDisplay = 1 * time.Second
	DefaultErrorDisplay   = 3 * time.Second
)

// subscriberBuffer is how many snapshots a slow subscriber may lag behind
const subscriberBuffer = 16

// Overlay is translated text drawn by the client when burn-in is unavailable
type Overlay struct {
	Text     string             `json:"text"`
	Box      models.BoundingBox `json:"box"`
	FontSize float64            `json:"font_size"`
}

// SessionOptions configures a reader session
type SessionOptions struct {
	TargetLanguage  string `json:"target_language"`
	SourceLanguage  string `json:"source_language"`
	OCRLanguageHint string `json:"ocr_language_hint"`
	AutoTranslate   bool   `json:"auto_translate"`

	SuccessDisplay time.Duration `json:"-"`
	ErrorDisplay   time.Duration `json:"-"`
	Clock          Clock         `json:"-"`
}

// SessionSnapshot is a consistent copy of the session state
type SessionSnapshot struct {
	ID                string        `json:"id"`
	State             BubbleState   `json:"state"`
	Stage             Stage         `json:"stage,omitempty"`
	Progress          float64       `json:"progress"`
	ErrorCategory     ErrorCategory `json:"error_category,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	AutoTranslate     bool          `json:"auto_translate"`
	TargetLanguage    string        `json:"target_language"`
	CurrentImagePath  string        `json:"current_image_path,omitempty"`
	OriginalImagePath string        `json:"original_image_path,omitempty"`
	EditedImagePath   string        `json:"edited_image_path,omitempty"`
	Overlays          []Overlay     `json:"overlays"`
	TranslatedPages   []string      `json:"translated_pages"`
	LastResult        *PageResult   `json:"last_result,omitempty"`
	Closed            bool          `json:"closed"`
}

// Session tracks one reader's current page and drives at most one pipeline run at a time
type Session struct {
	id       string
	pipeline *Pipeline
	opts     SessionOptions
	clock    Clock

	mu                sync.Mutex
	state             BubbleState
	stage             Stage
	progress          float64
	errorCategory     ErrorCategory
	errorMessage      string
	autoTranslate     bool
	currentImagePath  string
	originalImagePath string
	editedImagePath   string
	overlays          []Overlay
	translatedPages   map[string]struct{}
	lastResult        *PageResult
	closed            bool

	// generation changes on every run start so that late progress and stale
	// revert timers from an earlier run are ignored
	generation   uint64
	cancelRevert func() bool

	subscribers map[chan SessionSnapshot]struct{}

	// inflight tracks background pipeline runs; runs, when set, is the manager-wide count
	inflight sync.WaitGroup
	runs     *sync.WaitGroup
}

// NewSession creates an idle session
func NewSession(id string, pipeline *Pipeline, opts SessionOptions) *Session {
	if opts.SuccessDisplay <= 0 {
		opts.SuccessDisplay = DefaultSuccessDisplay
	}
	if opts.ErrorDisplay <= 0 {
		opts.ErrorDisplay = DefaultErrorDisplay
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = "auto"
	}

	return &Session{
		id:              id,
		pipeline:        pipeline,
		opts:            opts,
		clock:           opts.Clock,
		state:           BubbleIdle,
		autoTranslate:   opts.AutoTranslate,
		translatedPages: map[string]struct{}{},
		subscribers:     map[chan SessionSnapshot]struct{}{},
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// SetCurrentImagePath makes path the current page. Overlays and the previous burn-in
// output are dropped. With auto-translate on, a page not yet translated starts once the session is idle.
func (s *Session) SetCurrentImagePath(ctx context.Context, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	// The client echoing back our own burn-in output is not a page change
	if path != "" && path == s.editedImagePath {
		return
	}

	s.currentImagePath = path
	s.originalImagePath = path
	s.editedImagePath = ""
	s.overlays = nil
	debugLog("Session %s: page -> %s", s.id, path)
	s.notifyLocked()

	s.autoStartLocked(ctx)
}

// ToggleAutoTranslate flips auto-translate and returns the new value.
// Turning it on translates the current page if it is still pending.
func (s *Session) ToggleAutoTranslate(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.autoTranslate
	}

	s.autoTranslate = !s.autoTranslate
	infoLog("Session %s: auto-translate %v", s.id, s.autoTranslate)
	s.notifyLocked()

	s.autoStartLocked(ctx)
	return s.autoTranslate
}

// StartTranslation is the manual trigger. While auto-translate is on it only
// switches auto-translate off. Returns whether a pipeline run was started.
func (s *Session) StartTranslation(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.autoTranslate {
		s.autoTranslate = false
		infoLog("Session %s: auto-translate turned off by manual trigger", s.id)
		s.notifyLocked()
		return false
	}
	return s.startLocked(ctx)
}

// TranslateCurrentPage runs the pipeline on the current page unless there is no page,
// a run is already in flight, or the page was already translated in this session.
// Returns whether a run was started.
func (s *Session) TranslateCurrentPage(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

// ResetTranslatedPages forgets which pages were translated and the last burn-in output
func (s *Session) ResetTranslatedPages() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.translatedPages = map[string]struct{}{}
	s.editedImagePath = ""
	s.currentImagePath = s.originalImagePath
	s.lastResult = nil
	s.notifyLocked()
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of snapshots, one per change, starting with the current
// state. Call the returned func to unsubscribe. The channel closes when the session does.
func (s *Session) Subscribe() (<-chan SessionSnapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan SessionSnapshot, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- s.snapshotLocked()
	s.subscribers[ch] = struct{}{}

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

// Close abandons the session. An in-flight run still finishes and caches its result,
// but nothing is applied to this session afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.stopRevertLocked()
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = map[chan SessionSnapshot]struct{}{}
}

// autoStartLocked is the auto-translate trigger. It only fires from idle; a page set
// while complete or error is still shown gets picked up by revert.
func (s *Session) autoStartLocked(ctx context.Context) bool {
	if !s.autoTranslate {
		return false
	}
	if s.state != BubbleIdle {
		debugLog("Session %s: auto trigger deferred until idle (state %s)", s.id, s.state)
		return false
	}
	return s.startLocked(ctx)
}

// startLocked begins a run if the guards allow it. Caller holds s.mu.
func (s *Session) startLocked(ctx context.Context) bool {
	if s.closed || s.pipeline == nil {
		return false
	}
	if s.state == BubbleProcessing {
		debugLog("Session %s: translation already in flight, ignoring trigger", s.id)
		return false
	}
	page := s.originalImagePath
	if page == "" {
		return false
	}
	if _, done := s.translatedPages[page]; done {
		debugLog("Session %s: %s already translated", s.id, page)
		return false
	}

	s.stopRevertLocked()
	s.generation++
	gen := s.generation

	s.state = BubbleProcessing
	s.stage = ""
	s.progress = 0
	s.errorCategory = ErrorCategoryNone
	s.errorMessage = ""
	s.notifyLocked()

	req := PageRequest{
		ImagePath:       page,
		TargetLanguage:  s.opts.TargetLanguage,
		SourceLanguage:  s.opts.SourceLanguage,
		OCRLanguageHint: s.opts.OCRLanguageHint,
	}

	// The run outlives the trigger (an HTTP request, a page turn)
	runCtx := context.Background()
	if ctx != nil {
		runCtx = context.WithoutCancel(ctx)
	}

	s.inflight.Add(1)
	if s.runs != nil {
		s.runs.Add(1)
	}
	go s.run(runCtx, gen, req)
	return true
}

func (s *Session) run(ctx context.Context, gen uint64, req PageRequest) {
	defer func() {
		if s.runs != nil {
			s.runs.Done()
		}
		s.inflight.Done()
	}()

	result, err := s.pipeline.Translate(ctx, req, func(stage Stage, progress float64) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || gen != s.generation {
			return
		}
		s.stage = stage
		s.progress = progress
		s.notifyLocked()
	})

	s.finish(gen, req.ImagePath, result, err)
}

// finish applies a run's outcome unless the session was abandoned meanwhile
func (s *Session) finish(gen uint64, page string, result *PageResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.generation {
		debugLog("Session %s: dropping late result for %s", s.id, page)
		return
	}

	if err != nil {
		s.state = BubbleError
		s.errorCategory, s.errorMessage = ClassifyError(err)
		infoLog("Session %s: translation failed (%s): %v", s.id, s.errorCategory, err)
		s.notifyLocked()
		s.scheduleRevertLocked(gen, s.opts.ErrorDisplay)
		return
	}

	s.state = BubbleComplete
	s.stage = StageDone
	s.progress = ProgressDone
	s.translatedPages[page] = struct{}{}
	s.lastResult = result

	// The reader may have moved on while we were busy; only touch the page still shown
	if page == s.originalImagePath {
		if result.EditedImagePath != "" {
			s.editedImagePath = result.EditedImagePath
			s.currentImagePath = result.EditedImagePath
			s.overlays = nil
		} else {
			s.overlays = overlaysFor(result)
		}
	}

	s.notifyLocked()
	s.scheduleRevertLocked(gen, s.opts.SuccessDisplay)
}

func (s *Session) scheduleRevertLocked(gen uint64, delay time.Duration) {
	s.stopRevertLocked()
	s.cancelRevert = s.clock.AfterFunc(delay, func() { s.revert(gen) })
}

func (s *Session) stopRevertLocked() {
	if s.cancelRevert != nil {
		s.cancelRevert()
		s.cancelRevert = nil
	}
}

// revert returns complete/error to idle, then picks up a page that became current
// while the previous run was busy
func (s *Session) revert(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.generation {
		return
	}
	if s.state != BubbleComplete && s.state != BubbleError {
		return
	}

	s.state = BubbleIdle
	s.stage = ""
	s.progress = 0
	s.errorCategory = ErrorCategoryNone
	s.errorMessage = ""
	s.cancelRevert = nil
	s.notifyLocked()

	s.autoStartLocked(context.Background())
}

func (s *Session) snapshotLocked() SessionSnapshot {
	pages := make([]string, 0, len(s.translatedPages))
	for p := range s.translatedPages {
		pages = append(pages, p)
	}
	sort.Strings(pages)

	overlays := make([]Overlay, len(s.overlays))
	copy(overlays, s.overlays)

	return SessionSnapshot{
		ID:                s.id,
		State:             s.state,
		Stage:             s.stage,
		Progress:          s.progress,
		ErrorCategory:     s.errorCategory,
		ErrorMessage:      s.errorMessage,
		AutoTranslate:     s.autoTranslate,
		TargetLanguage:    s.opts.TargetLanguage,
		CurrentImagePath:  s.currentImagePath,
		OriginalImagePath: s.originalImagePath,
		EditedImagePath:   s.editedImagePath,
		Overlays:          overlays,
		TranslatedPages:   pages,
		LastResult:        s.lastResult,
		Closed:            s.closed,
	}
}

// notifyLocked pushes the current snapshot to every subscriber. A full subscriber
// loses its oldest pending snapshot rather than blocking the session.
func (s *Session) notifyLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func overlaysFor(result *PageResult) []Overlay {
	overlays := make([]Overlay, 0, len(result.Translations))
	for _, t := range result.Translations {
		overlays = append(overlays, Overlay{
			Text:     t.TranslatedText,
			Box:      t.Region.BoundingBox,
			FontSize: t.FontSize,
		})
	}
	return overlays
}
