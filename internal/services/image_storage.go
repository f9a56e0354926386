package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// OutputStorage owns the directory holding uploaded pages and burned-in results
type OutputStorage struct {
	storageDir string
}

// NewOutputStorage creates the storage, making sure dir exists
func NewOutputStorage(dir string) *OutputStorage {
	if dir == "" {
		dir = "./data/pages"
	}

	// Log error but don't fail - will fail on actual writes
	if err := os.MkdirAll(dir, 0755); err != nil {
		infoLog("Warning: could not create output directory %s: %v", dir, err)
	}

	return &OutputStorage{storageDir: dir}
}

// NewPath returns a fresh, unused file path with the given extension (".png")
func (s *OutputStorage) NewPath(ext string) string {
	if ext == "" {
		ext = ".png"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(s.storageDir, uuid.New().String()+strings.ToLower(ext))
}

// SaveImage writes uploaded page data to disk and returns the full path
func (s *OutputStorage) SaveImage(imageData []byte, ext string) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	path := s.NewPath(ext)
	if err := os.WriteFile(path, imageData, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return path, nil
}

// Contains reports whether path lies inside the storage directory
func (s *OutputStorage) Contains(path string) bool {
	dir, err := filepath.Abs(s.storageDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Delete removes a file previously produced by this storage. Missing files are fine.
func (s *OutputStorage) Delete(path string) error {
	if path == "" || !s.Contains(path) {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// Dir returns the storage directory path
func (s *OutputStorage) Dir() string {
	return s.storageDir
}
