// Package toolbar implements the in-canvas tool menu navigated with the
// two-finger gesture.
package toolbar

import (
	"image"

	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/ink"
)

// Row is one of the expanded menu rows.
type Row int

const (
	RowColors Row = iota
	RowWidths
	RowEraser
	numRows
)

func (r Row) String() string {
	switch r {
	case RowColors:
		return "Colors"
	case RowWidths:
		return "Widths"
	case RowEraser:
		return "Eraser"
	default:
		return "?"
	}
}

// Layout is the fixed geometry of the toolbar in canvas pixels.
type Layout struct {
	Button       geom.Point
	ButtonRadius float64
	Tolerance    float64 // extra hit radius around the main button

	RowOrigin image.Point // top-left of the first row
	RowSize   image.Point
	RowGap    int

	SubRadius float64
	SubGap    float64
}

// DefaultLayout returns the standard toolbar placement in the top-left
// corner of the canvas.
func DefaultLayout() Layout {
	return Layout{
		Button:       geom.Pt(48, 48),
		ButtonRadius: 28,
		Tolerance:    12,
		RowOrigin:    image.Pt(20, 96),
		RowSize:      image.Pt(120, 44),
		RowGap:       8,
		SubRadius:    18,
		SubGap:       12,
	}
}

// RowRect returns the rectangle of row r.
func (l Layout) RowRect(r Row) image.Rectangle {
	y := l.RowOrigin.Y + int(r)*(l.RowSize.Y+l.RowGap)
	min := image.Pt(l.RowOrigin.X, y)
	return image.Rectangle{Min: min, Max: min.Add(l.RowSize)}
}

// SubItemCenter returns the center of sub-item i of row r. Sub-items run
// left to right starting just past the row's right edge.
func (l Layout) SubItemCenter(r Row, i int) geom.Point {
	rect := l.RowRect(r)
	x := float64(rect.Max.X) + l.SubGap + l.SubRadius + float64(i)*(2*l.SubRadius+l.SubGap)
	y := float64(rect.Min.Y+rect.Max.Y) / 2
	return geom.Pt(x, y)
}

// HitButton reports whether p is within the main button, tolerance included.
func (l Layout) HitButton(p geom.Point) bool {
	return geom.Dist(p, l.Button) <= l.ButtonRadius+l.Tolerance
}

// HitRow returns the row under p.
func (l Layout) HitRow(p geom.Point) (Row, bool) {
	pt := image.Pt(int(p.X), int(p.Y))
	for r := Row(0); r < numRows; r++ {
		if pt.In(l.RowRect(r)) {
			return r, true
		}
	}
	return 0, false
}

// HitSubItem returns the index of the sub-item of row r under p.
func (l Layout) HitSubItem(r Row, p geom.Point) (int, bool) {
	for i := 0; i < subItemCount(r); i++ {
		if geom.Dist(p, l.SubItemCenter(r, i)) <= l.SubRadius {
			return i, true
		}
	}
	return 0, false
}

func subItemCount(r Row) int {
	switch r {
	case RowColors:
		return len(ink.Colors())
	case RowWidths:
		return len(ink.Widths())
	default:
		return 0
	}
}
