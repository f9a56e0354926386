package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/codyseavey/manga-translator/internal/models"
)

// OCREngine finds text regions on a page image
type OCREngine interface {
	DetectText(ctx context.Context, imagePath, languageHint string) ([]models.TextRegion, error)
}

// tesseractLanguages maps ISO 639-1 hints to tesseract traineddata names
var tesseractLanguages = map[string]string{
	"ja":    "jpn",
	"en":    "eng",
	"ko":    "kor",
	"zh":    "chi_sim",
	"zh-cn": "chi_sim",
	"zh-tw": "chi_tra",
	"fr":    "fra",
	"de":    "deu",
	"es":    "spa",
	"it":    "ita",
	"pt":    "por",
	"ru":    "rus",
}

// Scripts written without spaces between words
var unspacedLanguages = map[string]bool{
	"jpn":     true,
	"chi_sim": true,
	"chi_tra": true,
}

// TesseractOCR runs the tesseract CLI and groups its word boxes into speech-bubble regions
type TesseractOCR struct {
	tesseractPath   string
	defaultLanguage string
}

// NewTesseractOCR creates the OCR engine. An empty path looks tesseract up in PATH.
func NewTesseractOCR(tesseractPath, defaultLanguage string) *TesseractOCR {
	if tesseractPath == "" {
		found, err := exec.LookPath("tesseract")
		if err != nil {
			found = "tesseract" // Will fail at runtime if not found
		}
		tesseractPath = found
	}
	if defaultLanguage == "" {
		defaultLanguage = "jpn"
	}
	return &TesseractOCR{
		tesseractPath:   tesseractPath,
		defaultLanguage: defaultLanguage,
	}
}

// IsAvailable checks if Tesseract is available on the system
func (o *TesseractOCR) IsAvailable() bool {
	cmd := exec.Command(o.tesseractPath, "--version")
	return cmd.Run() == nil
}

// DetectText runs sparse-text segmentation and returns one region per text block
func (o *TesseractOCR) DetectText(ctx context.Context, imagePath, languageHint string) ([]models.TextRegion, error) {
	cleanPath, err := validateImagePath(imagePath)
	if err != nil {
		return nil, fmt.Errorf("invalid image path: %w", err)
	}

	lang := o.resolveLanguage(languageHint)

	// PSM 11 (sparse text) suits scattered speech bubbles better than full-page layout analysis
	cmd := exec.CommandContext(ctx,
		o.tesseractPath,
		cleanPath,
		"stdout",
		"-l", lang,
		"--psm", "11",
		"--oem", "3",
		"tsv",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	regions, err := parseTesseractTSV(stdout.Bytes(), unspacedLanguages[lang])
	if err != nil {
		return nil, err
	}
	debugLog("OCR found %d regions in %s (lang=%s)", len(regions), filepath.Base(cleanPath), lang)
	return regions, nil
}

func (o *TesseractOCR) resolveLanguage(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" || hint == "auto" {
		return o.defaultLanguage
	}
	if lang, ok := tesseractLanguages[hint]; ok {
		return lang
	}
	// Already a traineddata name such as "jpn_vert"
	return hint
}

type tsvWord struct {
	block, par, line, word int
	box                    models.BoundingBox
	conf                   float64
	text                   string
}

// parseTesseractTSV turns tesseract TSV output into regions, one per block,
// ordered by block number. Words with negative confidence or no text are skipped.
func parseTesseractTSV(data []byte, unspaced bool) ([]models.TextRegion, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	blocks := map[int][]tsvWord{}
	header := true
	for scanner.Scan() {
		line := scanner.Text()
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 || fields[0] != "5" {
			continue
		}
		word, ok := parseTSVWord(fields)
		if !ok {
			continue
		}
		blocks[word.block] = append(blocks[word.block], word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tesseract output: %w", err)
	}

	blockIDs := make([]int, 0, len(blocks))
	for id := range blocks {
		blockIDs = append(blockIDs, id)
	}
	sort.Ints(blockIDs)

	regions := make([]models.TextRegion, 0, len(blockIDs))
	for _, id := range blockIDs {
		if region, ok := buildRegion(blocks[id], unspaced); ok {
			regions = append(regions, region)
		}
	}
	return regions, nil
}

func parseTSVWord(fields []string) (tsvWord, bool) {
	ints := make([]int, 10)
	for i := 1; i <= 9; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return tsvWord{}, false
		}
		ints[i] = v
	}
	conf, err := strconv.ParseFloat(strings.TrimSpace(fields[10]), 64)
	if err != nil || conf < 0 {
		return tsvWord{}, false
	}
	text := strings.TrimSpace(strings.Join(fields[11:], "\t"))
	if text == "" {
		return tsvWord{}, false
	}
	return tsvWord{
		block: ints[2],
		par:   ints[3],
		line:  ints[4],
		word:  ints[5],
		box: models.BoundingBox{
			X:      ints[6],
			Y:      ints[7],
			Width:  ints[8],
			Height: ints[9],
		},
		conf: conf,
		text: text,
	}, true
}

func buildRegion(words []tsvWord, unspaced bool) (models.TextRegion, bool) {
	if len(words) == 0 {
		return models.TextRegion{}, false
	}
	sort.SliceStable(words, func(i, j int) bool {
		a, b := words[i], words[j]
		if a.par != b.par {
			return a.par < b.par
		}
		if a.line != b.line {
			return a.line < b.line
		}
		return a.word < b.word
	})

	sep := " "
	if unspaced {
		sep = ""
	}

	var sb strings.Builder
	box := words[0].box
	var confSum float64
	for i, w := range words {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(w.text)
		box = box.Union(w.box)
		confSum += w.conf
	}

	return models.TextRegion{
		Text:         sb.String(),
		BoundingBox:  box,
		CornerPoints: box.Corners(),
		Confidence:   clampUnit(confSum / float64(len(words)) / 100),
	}, true
}

// validateImagePath validates and sanitizes an image path before it is handed to
// an external tool, rejecting symlinks, directories and non-image extensions
func validateImagePath(imagePath string) (string, error) {
	cleanPath := filepath.Clean(imagePath)

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", fmt.Errorf("file not found: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("symbolic links are not allowed")
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("path is not a regular file")
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	allowedExtensions := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
		".bmp":  true,
		".tiff": true,
		".tif":  true,
		".webp": true,
	}
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("unsupported image format: %s", ext)
	}

	return absPath, nil
}
