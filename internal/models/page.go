package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BoundingBox is an axis-aligned rectangle in image pixel coordinates
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is a single pixel coordinate
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Right returns the exclusive right edge
func (b BoundingBox) Right() int { return b.X + b.Width }

// Bottom returns the exclusive bottom edge
func (b BoundingBox) Bottom() int { return b.Y + b.Height }

// IsEmpty reports whether the box has no area
func (b BoundingBox) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Union returns the smallest box containing both b and other.
// An empty box is treated as the identity.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	if b.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return b
	}
	x := min(b.X, other.X)
	y := min(b.Y, other.Y)
	return BoundingBox{
		X:      x,
		Y:      y,
		Width:  max(b.Right(), other.Right()) - x,
		Height: max(b.Bottom(), other.Bottom()) - y,
	}
}

// Corners returns the four corner points clockwise from top-left
func (b BoundingBox) Corners() []Point {
	return []Point{
		{X: b.X, Y: b.Y},
		{X: b.Right(), Y: b.Y},
		{X: b.Right(), Y: b.Bottom()},
		{X: b.X, Y: b.Bottom()},
	}
}

// TextRegion is one block of text found by OCR
type TextRegion struct {
	Text         string      `json:"text"`
	BoundingBox  BoundingBox `json:"bounding_box"`
	CornerPoints []Point     `json:"corner_points,omitempty"`
	Confidence   float64     `json:"confidence"`
}

// RegionTranslation pairs an OCR region with the translated line aligned to it
type RegionTranslation struct {
	Region         TextRegion `json:"region"`
	TranslatedText string     `json:"translated_text"`
	FontSize       float64    `json:"font_size"`
}

// JoinRegionText aggregates region texts in order, one region per line
func JoinRegionText(regions []TextRegion) string {
	lines := make([]string, len(regions))
	for i, r := range regions {
		// Newlines inside a region would break line-to-region alignment
		lines[i] = strings.Join(strings.Fields(r.Text), " ")
	}
	return strings.Join(lines, "\n")
}

// RegionContext serializes the region layout. It disambiguates identical text
// found in different page layouts and is stored verbatim alongside cache entries.
func RegionContext(regions []TextRegion) string {
	boxes := make([]BoundingBox, len(regions))
	for i, r := range regions {
		boxes[i] = r.BoundingBox
	}
	data, err := json.Marshal(boxes)
	if err != nil {
		// Unreachable for plain ints, keep a deterministic fallback anyway
		parts := make([]string, len(boxes))
		for i, b := range boxes {
			parts[i] = fmt.Sprintf("%d,%d,%d,%d", b.X, b.Y, b.Width, b.Height)
		}
		return strings.Join(parts, ";")
	}
	return string(data)
}
