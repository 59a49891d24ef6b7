// Package geom provides the 2D geometry shared by the annotation pipeline:
// canvas points, sizes, and the cover-crop mapping from normalized landmark
// space into destination canvas pixels.
package geom

import (
	"errors"
	"image"
	"math"
)

// ErrInvalidSize is returned when a width or height is not positive.
var ErrInvalidSize = errors.New("invalid size")

// Point is a 2D point. Depending on context it holds canvas pixels or
// normalized [0,1] coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p multiplied by k.
func (p Point) Scale(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// Lerp interpolates between p and q; t=0 yields p and t=1 yields q.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// Mid returns the midpoint of p and q.
func Mid(p, q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// Dist returns the Euclidean distance between p and q.
func Dist(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// ImagePoint rounds p to the nearest integer pixel.
func (p Point) ImagePoint() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// Size is a width and height in pixels.
type Size struct {
	W int `json:"width"`
	H int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.W > 0 && s.H > 0
}

// Aspect returns W/H. It returns 0 for an invalid size.
func (s Size) Aspect() float64 {
	if !s.Valid() {
		return 0
	}
	return float64(s.W) / float64(s.H)
}

// Normalize converts a canvas pixel point into [0,1] fractions of size.
// The result is not clamped; points outside the canvas stay outside.
func Normalize(p Point, size Size) Point {
	if !size.Valid() {
		return Point{}
	}
	return Point{X: p.X / float64(size.W), Y: p.Y / float64(size.H)}
}

// Denormalize converts a normalized point into pixels of size.
func Denormalize(n Point, size Size) Point {
	return Point{X: n.X * float64(size.W), Y: n.Y * float64(size.H)}
}

// Clamp01 bounds v to the [0..1] range.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
