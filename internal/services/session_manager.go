package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/codyseavey/manga-translator/internal/metrics"
)

// SessionManager owns the reader sessions served over the API
type SessionManager struct {
	pipeline *Pipeline
	defaults SessionOptions

	mu       sync.RWMutex
	sessions map[string]*Session

	// runs counts pipeline runs across all sessions, removed ones included
	runs sync.WaitGroup
}

// NewSessionManager creates a manager; defaults fill in options a client leaves empty
func NewSessionManager(pipeline *Pipeline, defaults SessionOptions) *SessionManager {
	return &SessionManager{
		pipeline: pipeline,
		defaults: defaults,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new idle session
func (m *SessionManager) Create(opts SessionOptions) *Session {
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = m.defaults.TargetLanguage
	}
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = m.defaults.SourceLanguage
	}
	if opts.OCRLanguageHint == "" {
		opts.OCRLanguageHint = m.defaults.OCRLanguageHint
	}
	if opts.SuccessDisplay == 0 {
		opts.SuccessDisplay = m.defaults.SuccessDisplay
	}
	if opts.ErrorDisplay == 0 {
		opts.ErrorDisplay = m.defaults.ErrorDisplay
	}
	if opts.Clock == nil {
		opts.Clock = m.defaults.Clock
	}

	session := NewSession(uuid.New().String(), m.pipeline, opts)
	session.runs = &m.runs

	m.mu.Lock()
	m.sessions[session.ID()] = session
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	infoLog("Session %s created (target=%s, auto=%v)", session.ID(), opts.TargetLanguage, opts.AutoTranslate)
	return session
}

// Get returns a session by id
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove closes and forgets a session
func (m *SessionManager) Remove(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	session.Close()
	metrics.ActiveSessions.Set(float64(count))
	infoLog("Session %s removed", id)
	return nil
}

// IDs lists registered session ids in sorted order
func (m *SessionManager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every session, used on shutdown
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	metrics.ActiveSessions.Set(0)
}

// Wait blocks until every pipeline run started by a managed session has returned,
// or ctx is done. Abandoned runs still write their result to the cache, so call
// CloseAll then Wait before closing the database.
func (m *SessionManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
