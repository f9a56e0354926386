package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/manga-translator/internal/services"
)

const maxPageSize = 20 * 1024 * 1024 // 20MB

// pageExtensions maps accepted upload content types to the stored file extension
var pageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type SessionHandler struct {
	sessions      *services.SessionManager
	storage       *services.OutputStorage
	autoTranslate bool
}

// NewSessionHandler creates the handler; autoTranslate is the default for new sessions
func NewSessionHandler(sessions *services.SessionManager, storage *services.OutputStorage, autoTranslate bool) *SessionHandler {
	return &SessionHandler{
		sessions:      sessions,
		storage:       storage,
		autoTranslate: autoTranslate,
	}
}

// CreateSessionRequest is the optional body of POST /api/sessions
type CreateSessionRequest struct {
	TargetLanguage  string `json:"target_language"`
	SourceLanguage  string `json:"source_language"`
	OCRLanguageHint string `json:"ocr_language_hint"`
	AutoTranslate   *bool  `json:"auto_translate"`
}

// SetPageRequest is the JSON form of PUT /api/sessions/:id/page
type SetPageRequest struct {
	ImagePath string `json:"image_path" binding:"required"`
}

// CreateSession starts a new reader session
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	auto := h.autoTranslate
	if req.AutoTranslate != nil {
		auto = *req.AutoTranslate
	}

	session := h.sessions.Create(services.SessionOptions{
		TargetLanguage:  req.TargetLanguage,
		SourceLanguage:  req.SourceLanguage,
		OCRLanguageHint: req.OCRLanguageHint,
		AutoTranslate:   auto,
	})
	c.JSON(http.StatusCreated, session.Snapshot())
}

// GetSession returns the session state
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// SetPage changes the current page, either to a server-side path (JSON body)
// or to an uploaded image (multipart field "image")
// PUT /api/sessions/:id/page
func (h *SessionHandler) SetPage(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	var path string
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		saved, err := h.saveUpload(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		path = saved
	} else {
		var req SetPageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// Only pages already in the output directory; uploads land there too
		if h.storage == nil || !h.storage.Contains(req.ImagePath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image_path must be inside the page storage directory"})
			return
		}
		path = req.ImagePath
	}

	session.SetCurrentImagePath(c.Request.Context(), path)
	c.JSON(http.StatusOK, session.Snapshot())
}

// ToggleAutoTranslate flips auto-translate for the session
// POST /api/sessions/:id/auto-translate
func (h *SessionHandler) ToggleAutoTranslate(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	enabled := session.ToggleAutoTranslate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"auto_translate": enabled,
		"session":        session.Snapshot(),
	})
}

// Translate is the manual translate button. The pipeline runs in the background;
// poll the session or follow /events for the outcome.
// POST /api/sessions/:id/translate
func (h *SessionHandler) Translate(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	before := session.Snapshot()
	if before.State == services.BubbleProcessing {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "translation already in progress",
			"message": "This page is still being translated. Please wait for it to complete.",
		})
		return
	}
	if before.OriginalImagePath == "" && !before.AutoTranslate {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no page loaded"})
		return
	}

	if session.StartTranslation(c.Request.Context()) {
		c.JSON(http.StatusAccepted, gin.H{
			"message": "translation started",
			"status":  services.BubbleProcessing,
		})
		return
	}

	after := session.Snapshot()
	switch {
	case before.AutoTranslate && !after.AutoTranslate:
		c.JSON(http.StatusOK, gin.H{
			"message":        "auto-translate disabled",
			"auto_translate": false,
		})
	case after.State == services.BubbleProcessing:
		c.JSON(http.StatusConflict, gin.H{"error": "translation already in progress"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message": "page already translated",
			"session": after,
		})
	}
}

// ResetPages forgets which pages were translated so they can be translated again
// POST /api/sessions/:id/reset
func (h *SessionHandler) ResetPages(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	session.ResetTranslatedPages()
	c.JSON(http.StatusOK, session.Snapshot())
}

// GetImage serves the current page (the burned-in result once translated).
// Only files inside the output directory are served.
// GET /api/sessions/:id/image
func (h *SessionHandler) GetImage(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	path := session.Snapshot().CurrentImagePath
	if path == "" || h.storage == nil || !h.storage.Contains(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no image available"})
		return
	}
	c.File(path)
}

// DeleteSession abandons a session. An in-flight run still caches its result.
// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Remove(c.Param("id")); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session closed"})
}

// Events streams session snapshots as server-sent events until the client
// disconnects or the session is closed
// GET /api/sessions/:id/events
func (h *SessionHandler) Events(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				c.SSEvent("closed", gin.H{"id": session.ID()})
				return false
			}
			c.SSEvent("state", snap)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *SessionHandler) lookup(c *gin.Context) (*services.Session, bool) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return session, true
}

// saveUpload stores the multipart "image" field in the output directory
func (h *SessionHandler) saveUpload(c *gin.Context) (string, error) {
	if h.storage == nil {
		return "", errors.New("uploads are not available")
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return "", errors.New("no image uploaded")
	}
	if fileHeader.Size > maxPageSize {
		return "", errors.New("image too large (max 20MB)")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", errors.New("failed to open upload")
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxPageSize+1))
	if err != nil {
		return "", errors.New("failed to read upload")
	}
	if len(imageData) > maxPageSize {
		return "", errors.New("image too large (max 20MB)")
	}

	ext, ok := pageExtensions[http.DetectContentType(imageData)]
	if !ok {
		return "", errors.New("not a valid image format")
	}

	return h.storage.SaveImage(imageData, ext)
}
