// Package stroke turns pen-down fingertip positions into smoothed ink and
// the matching draw events.
package stroke

import "github.com/ayusman/kalam/internal/geom"

// DefaultAlpha is the EMA weight given to each new sample.
const DefaultAlpha = 0.35

// BufferSize is the number of recent samples a stroke is fitted through.
const BufferSize = 4

// Smoother is an exponential moving average over cursor positions.
type Smoother struct {
	alpha float64
	cur   geom.Point
	ok    bool
}

// NewSmoother creates a Smoother. alpha outside (0,1] falls back to
// DefaultAlpha.
func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Smoother{alpha: alpha}
}

// Next folds raw into the average and returns the smoothed point. The first
// sample after a reset is returned unchanged.
func (s *Smoother) Next(raw geom.Point) geom.Point {
	if !s.ok {
		s.cur = raw
		s.ok = true
		return raw
	}
	s.cur = s.cur.Add(raw.Sub(s.cur).Scale(s.alpha))
	return s.cur
}

// Current returns the smoothed point, if any.
func (s *Smoother) Current() (geom.Point, bool) {
	return s.cur, s.ok
}

// Reset forgets the average.
func (s *Smoother) Reset() {
	s.cur = geom.Point{}
	s.ok = false
}

// Buffer is a ring of the most recent samples.
type Buffer struct {
	pts   [BufferSize]geom.Point
	start int
	n     int
}

// Push appends p, evicting the oldest sample when full.
func (b *Buffer) Push(p geom.Point) {
	if b.n < BufferSize {
		b.pts[(b.start+b.n)%BufferSize] = p
		b.n++
		return
	}
	b.pts[b.start] = p
	b.start = (b.start + 1) % BufferSize
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return b.n
}

// Points returns the samples oldest first.
func (b *Buffer) Points() []geom.Point {
	out := make([]geom.Point, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.pts[(b.start+i)%BufferSize]
	}
	return out
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.start, b.n = 0, 0
}
