// Package ink holds the drawing tool model and the raster layers strokes
// are painted on.
package ink

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ErrInvalidColor is returned when a color string cannot be parsed.
var ErrInvalidColor = errors.New("invalid color")

// Color is one of the fixed palette entries selectable from the toolbar.
type Color int

const (
	ColorCyan Color = iota
	ColorPurple
	ColorPink
	ColorYellow
	numColors
)

var palette = [numColors]struct {
	name string
	hex  string
}{
	ColorCyan:   {"cyan", "#22d3ee"},
	ColorPurple: {"purple", "#a855f7"},
	ColorPink:   {"pink", "#ec4899"},
	ColorYellow: {"yellow", "#eab308"},
}

// Colors returns the palette in toolbar order.
func Colors() []Color {
	return []Color{ColorCyan, ColorPurple, ColorPink, ColorYellow}
}

// Valid reports whether c is a palette entry.
func (c Color) Valid() bool {
	return c >= 0 && c < numColors
}

// String returns the palette name.
func (c Color) String() string {
	if !c.Valid() {
		return fmt.Sprintf("color(%d)", int(c))
	}
	return palette[c].name
}

// Hex returns the "#rrggbb" form used on the wire.
func (c Color) Hex() string {
	if !c.Valid() {
		return palette[ColorCyan].hex
	}
	return palette[c].hex
}

// RGBA returns the opaque color value.
func (c Color) RGBA() color.RGBA {
	rgba, _ := ParseHex(c.Hex())
	return rgba
}

// ParseHex parses "#rrggbb" (or "rrggbb") into an opaque color.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("%q: %w", s, ErrInvalidColor)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%q: %w", s, ErrInvalidColor)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Width is one of the fixed stroke widths selectable from the toolbar.
type Width int

const (
	WidthThin Width = iota
	WidthMedium
	WidthThick
	numWidths
)

var widthPixels = [numWidths]float64{
	WidthThin:   4,
	WidthMedium: 8,
	WidthThick:  14,
}

// Widths returns the stroke widths in toolbar order.
func Widths() []Width {
	return []Width{WidthThin, WidthMedium, WidthThick}
}

// Valid reports whether w is a known width.
func (w Width) Valid() bool {
	return w >= 0 && w < numWidths
}

// Pixels returns the line width in canvas pixels.
func (w Width) Pixels() float64 {
	if !w.Valid() {
		return widthPixels[WidthThin]
	}
	return widthPixels[w]
}

// WidthForPixels returns the width drawn at px pixels. ok is false when px
// is not one of the toolbar widths.
func WidthForPixels(px float64) (w Width, ok bool) {
	for _, w := range Widths() {
		if w.Pixels() == px {
			return w, true
		}
	}
	return WidthThin, false
}

func (w Width) String() string {
	return fmt.Sprintf("%gpx", w.Pixels())
}

// Tool is the active drawing tool.
type Tool struct {
	Color  Color `json:"color"`
	Width  Width `json:"width"`
	Eraser bool  `json:"eraser"`
}

// DefaultTool returns the tool a session starts with.
func DefaultTool() Tool {
	return Tool{Color: ColorCyan, Width: WidthThin}
}

// EraserRadius returns the radius of the hole an eraser dab punches.
func EraserRadius(width float64) float64 {
	return 3 * width
}

func (t Tool) String() string {
	if t.Eraser {
		return fmt.Sprintf("eraser %s", t.Width)
	}
	return fmt.Sprintf("%s %s", t.Color, t.Width)
}
