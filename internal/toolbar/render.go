package toolbar

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/ink"
)

var (
	panelColor  = color.RGBA{R: 24, G: 24, B: 32, A: 255}
	borderColor = color.RGBA{R: 90, G: 90, B: 110, A: 255}
	activeColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	textColor   = color.RGBA{R: 230, G: 230, B: 240, A: 255}
	cursorColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Render draws the toolbar for the current menu state onto a BGR frame.
// cursor is the two-finger pointer, or nil when the gesture is not held.
func Render(frame *gocv.Mat, m *Menu, tool ink.Tool, cursor *geom.Point) {
	l := m.Layout()
	center := l.Button.ImagePoint()
	r := int(l.ButtonRadius)

	gocv.Circle(frame, center, r, panelColor, -1)
	gocv.Circle(frame, center, r, borderColor, 2)
	if tool.Eraser {
		gocv.Circle(frame, center, r/2, activeColor, 2)
	} else {
		gocv.Circle(frame, center, r/2, tool.Color.RGBA(), -1)
	}

	if m.State() == Collapsed && m.HoverTicks() > 0 {
		progress := math.Min(1, float64(m.HoverTicks())/float64(m.timing.HoverTicks+1))
		gocv.Ellipse(frame, center, image.Pt(r+4, r+4), -90, 0, 360*progress, activeColor, 3)
	}

	if m.State() != Collapsed {
		for row := Row(0); row < numRows; row++ {
			renderRow(frame, l, row, m.State(), tool)
		}
	}

	switch m.State() {
	case ColorsSubmenu:
		for i, c := range ink.Colors() {
			p := l.SubItemCenter(RowColors, i).ImagePoint()
			gocv.Circle(frame, p, int(l.SubRadius), c.RGBA(), -1)
			if !tool.Eraser && tool.Color == c {
				gocv.Circle(frame, p, int(l.SubRadius)+3, activeColor, 2)
			}
		}
	case WidthsSubmenu:
		for i, w := range ink.Widths() {
			p := l.SubItemCenter(RowWidths, i).ImagePoint()
			gocv.Circle(frame, p, int(l.SubRadius), panelColor, -1)
			gocv.Circle(frame, p, int(math.Max(1, w.Pixels()/2)), textColor, -1)
			if tool.Width == w {
				gocv.Circle(frame, p, int(l.SubRadius)+3, activeColor, 2)
			}
		}
	}

	if cursor != nil {
		gocv.Circle(frame, cursor.ImagePoint(), 6, cursorColor, 2)
	}
}

func renderRow(frame *gocv.Mat, l Layout, row Row, state MenuState, tool ink.Tool) {
	rect := l.RowRect(row)
	gocv.Rectangle(frame, rect, panelColor, -1)

	active := (row == RowColors && state == ColorsSubmenu) ||
		(row == RowWidths && state == WidthsSubmenu) ||
		(row == RowEraser && tool.Eraser)
	if active {
		gocv.Rectangle(frame, rect, activeColor, 2)
	} else {
		gocv.Rectangle(frame, rect, borderColor, 1)
	}

	org := image.Pt(rect.Min.X+12, rect.Max.Y-15)
	gocv.PutText(frame, row.String(), org, gocv.FontHersheySimplex, 0.6, textColor, 1)
}
