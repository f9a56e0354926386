package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codyseavey/manga-translator/internal/models"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t1200\t-1\t\n" +
	"2\t1\t1\t0\t0\t0\t100\t50\t60\t200\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t50\t30\t30\t90.5\tこん\n" +
	"5\t1\t1\t1\t2\t1\t100\t90\t30\t60\t80.5\tにちは\n" +
	"5\t1\t2\t1\t1\t2\t420\t610\t40\t20\t70\tworld\n" +
	"5\t1\t2\t1\t1\t1\t360\t600\t50\t25\t90\thello\n" +
	"5\t1\t3\t1\t1\t1\t10\t10\t5\t5\t-1\tnoise\n" +
	"5\t1\t4\t1\t1\t1\t10\t10\t5\t5\t95\t \n"

func TestParseTesseractTSV(t *testing.T) {
	regions, err := parseTesseractTSV([]byte(sampleTSV), true)
	if err != nil {
		t.Fatalf("parseTesseractTSV failed: %v", err)
	}

	// Block 3 has only a negative-confidence word and block 4 only whitespace
	if len(regions) != 2 {
		t.Fatalf("Expected 2 regions, got %d: %+v", len(regions), regions)
	}

	first := regions[0]
	if first.Text != "こんにちは" {
		t.Errorf("Expected unspaced join 'こんにちは', got %q", first.Text)
	}
	expectedBox := models.BoundingBox{X: 100, Y: 50, Width: 30, Height: 100}
	if first.BoundingBox != expectedBox {
		t.Errorf("Expected box %v, got %v", expectedBox, first.BoundingBox)
	}
	if len(first.CornerPoints) != 4 {
		t.Errorf("Expected 4 corner points, got %d", len(first.CornerPoints))
	}
	if first.Confidence < 0.85 || first.Confidence > 0.86 {
		t.Errorf("Expected mean confidence 0.855, got %v", first.Confidence)
	}

	// Words are reordered by position within the block
	if regions[1].Text != "helloworld" {
		t.Errorf("Expected words in word order, got %q", regions[1].Text)
	}
}

func TestParseTesseractTSV_Spaced(t *testing.T) {
	regions, err := parseTesseractTSV([]byte(sampleTSV), false)
	if err != nil {
		t.Fatalf("parseTesseractTSV failed: %v", err)
	}
	if regions[1].Text != "hello world" {
		t.Errorf("Expected space-joined words, got %q", regions[1].Text)
	}
}

func TestParseTesseractTSV_Empty(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no output", ""},
		{"header only", "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n"},
		{"malformed rows", "5\tx\ty\n5\t1\t1\t1\t1\t1\ta\tb\tc\td\t90\ttext\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regions, err := parseTesseractTSV([]byte(tt.data), false)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(regions) != 0 {
				t.Errorf("Expected no regions, got %d", len(regions))
			}
		})
	}
}

func TestTesseractOCR_ResolveLanguage(t *testing.T) {
	ocr := NewTesseractOCR("tesseract", "jpn")

	tests := []struct {
		hint     string
		expected string
	}{
		{"", "jpn"},
		{"auto", "jpn"},
		{"ja", "jpn"},
		{"EN", "eng"},
		{"zh-TW", "chi_tra"},
		{"jpn_vert", "jpn_vert"},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			if got := ocr.resolveLanguage(tt.hint); got != tt.expected {
				t.Errorf("resolveLanguage(%q) = %q, want %q", tt.hint, got, tt.expected)
			}
		})
	}
}

func TestValidateImagePath(t *testing.T) {
	dir := t.TempDir()

	image := filepath.Join(dir, "page.png")
	if err := os.WriteFile(image, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("txt"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.png")
	if err := os.Symlink(image, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"valid image", image, ""},
		{"missing file", filepath.Join(dir, "missing.png"), "file not found"},
		{"directory", dir, "not a regular file"},
		{"wrong extension", text, "unsupported image format"},
		{"symlink", link, "symbolic links"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateImagePath(tt.path)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTesseractOCR_DetectTextRejectsBadPath(t *testing.T) {
	ocr := NewTesseractOCR("tesseract", "")
	_, err := ocr.DetectText(context.Background(), "/nonexistent/page.png", "ja")
	if err == nil || !strings.Contains(err.Error(), "invalid image path") {
		t.Errorf("Expected invalid image path error, got %v", err)
	}
}
