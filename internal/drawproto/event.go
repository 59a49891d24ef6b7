// Package drawproto defines the annotation events exchanged between peers,
// their compact wire encoding, and the send and replay paths around it.
package drawproto

import "github.com/ayusman/kalam/internal/geom"

// Kind tags an Event.
type Kind string

const (
	KindDraw  Kind = "draw"
	KindUp    Kind = "up"
	KindErase Kind = "erase"
	KindClear Kind = "clear"
)

const (
	// MinDrawPoints and MaxDrawPoints bound the point list of a draw event.
	MinDrawPoints = 2
	MaxDrawPoints = 4
)

// MinCoord and MaxCoord bound normalized coordinates on the wire. Points may
// fall a little outside the canvas when the video is cover-cropped.
const (
	MinCoord = -1.0
	MaxCoord = 2.0
)

// Event is one annotation action. Coordinates are normalized to [0,1] of
// the sender's canvas; Width is one of the toolbar widths in pixels.
type Event struct {
	Kind   Kind
	Points []geom.Point // KindDraw
	Color  string       // KindDraw, "#rrggbb"
	Width  float64      // KindDraw, KindErase
	X, Y   float64      // KindErase
}

// Draw returns a draw event for a run of normalized points.
func Draw(points []geom.Point, color string, width float64) Event {
	return Event{
		Kind:   KindDraw,
		Points: append([]geom.Point(nil), points...),
		Color:  color,
		Width:  width,
	}
}

// Erase returns an erase event centered at normalized (x, y).
func Erase(x, y, width float64) Event {
	return Event{Kind: KindErase, X: x, Y: y, Width: width}
}

// Up returns a pen-up event.
func Up() Event {
	return Event{Kind: KindUp}
}

// Clear returns a clear event.
func Clear() Event {
	return Event{Kind: KindClear}
}
