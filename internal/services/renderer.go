package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/codyseavey/manga-translator/internal/models"
)

// Stamp is one translated text drawn over its region
type Stamp struct {
	Text     string
	Box      models.BoundingBox
	FontSize float64
}

// StampStyle is shared by every stamp on a page
type StampStyle struct {
	TextColor       string  // any ImageMagick color, e.g. "#000000"
	BackgroundColor string  // fill behind the text to hide the original lettering
	Opacity         float64 // background opacity in [0,1]
}

// DefaultStampStyle is black text on a near-opaque white box
func DefaultStampStyle() StampStyle {
	return StampStyle{
		TextColor:       "#000000",
		BackgroundColor: "#FFFFFF",
		Opacity:         0.9,
	}
}

// Renderer burns stamps into a copy of the page image and returns the new path
type Renderer interface {
	Render(ctx context.Context, imagePath string, stamps []Stamp, style StampStyle) (string, error)
}

// MagickRenderer draws stamps with the ImageMagick CLI
type MagickRenderer struct {
	magickPath string
	font       string
	storage    *OutputStorage
}

// NewMagickRenderer creates the renderer. An empty path looks magick up in PATH.
func NewMagickRenderer(magickPath, font string, storage *OutputStorage) *MagickRenderer {
	if magickPath == "" {
		found, err := exec.LookPath("magick")
		if err != nil {
			found = "magick" // Will fail at runtime if not found
		}
		magickPath = found
	}
	return &MagickRenderer{magickPath: magickPath, font: font, storage: storage}
}

// IsAvailable checks if ImageMagick is available on the system
func (r *MagickRenderer) IsAvailable() bool {
	return exec.Command(r.magickPath, "-version").Run() == nil
}

// Render writes a new PNG under the output storage; the source image is never modified
func (r *MagickRenderer) Render(ctx context.Context, imagePath string, stamps []Stamp, style StampStyle) (string, error) {
	cleanPath, err := validateImagePath(imagePath)
	if err != nil {
		return "", fmt.Errorf("invalid image path: %w", err)
	}

	output := r.storage.NewPath(".png")
	args := buildMagickArgs(cleanPath, output, stamps, style, r.font)

	cmd := exec.CommandContext(ctx, r.magickPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.storage.Delete(output)
		return "", fmt.Errorf("magick error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	debugLog("Rendered %d stamps into %s", len(stamps), output)
	return output, nil
}

// buildMagickArgs draws, per stamp, a background rectangle and then a wrapped caption
// composited at the region origin
func buildMagickArgs(input, output string, stamps []Stamp, style StampStyle, font string) []string {
	args := []string{input}

	background := magickColor(style.BackgroundColor, style.Opacity)
	for _, s := range stamps {
		if s.Box.IsEmpty() {
			continue
		}
		args = append(args,
			"-fill", background,
			"-draw", fmt.Sprintf("rectangle %d,%d %d,%d", s.Box.X, s.Box.Y, s.Box.Right()-1, s.Box.Bottom()-1),
		)
		if strings.TrimSpace(s.Text) == "" {
			continue
		}

		args = append(args, "(",
			"-size", fmt.Sprintf("%dx%d", s.Box.Width, s.Box.Height),
			"-background", "none",
			"-fill", style.TextColor,
			"-gravity", "center",
			"-pointsize", strconv.FormatFloat(s.FontSize, 'f', 1, 64),
		)
		if font != "" {
			args = append(args, "-font", font)
		}
		args = append(args,
			"caption:"+escapeMagickText(s.Text),
			")",
			"-gravity", "northwest",
			"-geometry", fmt.Sprintf("+%d+%d", s.Box.X, s.Box.Y),
			"-composite",
		)
	}

	return append(args, output)
}

// magickColor applies opacity to a #RRGGBB color; other color names pass through
func magickColor(color string, opacity float64) string {
	opacity = clampUnit(opacity)
	if len(color) == 7 && color[0] == '#' {
		r, errR := strconv.ParseUint(color[1:3], 16, 8)
		g, errG := strconv.ParseUint(color[3:5], 16, 8)
		b, errB := strconv.ParseUint(color[5:7], 16, 8)
		if errR == nil && errG == nil && errB == nil {
			return fmt.Sprintf("rgba(%d,%d,%d,%.2f)", r, g, b, opacity)
		}
	}
	return color
}

// escapeMagickText stops ImageMagick from expanding %-escapes or reading "@file" text
func escapeMagickText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "%", "%%")
	if strings.HasPrefix(text, "@") {
		text = "\\" + text
	}
	return text
}
