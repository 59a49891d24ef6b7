package stroke

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/kalam/internal/drawproto"
	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/ink"
)

func logger() *zerolog.Logger {
	l := log.With().Str("module", "stroke").Logger()
	return &l
}

// Sink receives the events produced by local drawing.
type Sink interface {
	Emit(ev drawproto.Event)
}

// Synthesizer paints the local stroke for one session and reports every
// action to its Sink with coordinates normalized to the layer size.
//
// A Synthesizer is driven from a single tick loop and is not safe for
// concurrent use.
type Synthesizer struct {
	layer  *ink.Layer
	sink   Sink
	smooth *Smoother
	buf    Buffer
	down   bool
}

// NewSynthesizer creates a Synthesizer painting onto layer.
func NewSynthesizer(layer *ink.Layer, sink Sink, alpha float64) *Synthesizer {
	return &Synthesizer{
		layer:  layer,
		sink:   sink,
		smooth: NewSmoother(alpha),
	}
}

// Step advances the stroke by one tick. pos is the mapped index fingertip;
// it is ignored while the pen is up.
func (s *Synthesizer) Step(penDown bool, tool ink.Tool, pos geom.Point) {
	if !penDown {
		s.lift()
		return
	}
	s.down = true

	p := s.smooth.Next(pos)
	size := s.layer.Size()
	width := tool.Width.Pixels()

	if tool.Eraser {
		if err := s.layer.Erase(p, ink.EraserRadius(width)); err != nil {
			logger().Warn().Err(err).Msg("erase failed")
			return
		}
		n := geom.Normalize(p, size)
		s.emit(drawproto.Erase(n.X, n.Y, width))
		return
	}

	s.buf.Push(p)
	if s.buf.Len() < 2 {
		return
	}

	pts := s.buf.Points()
	if err := s.layer.Stroke(pts, tool.Color.RGBA(), width); err != nil {
		logger().Warn().Err(err).Msg("stroke failed")
		return
	}

	norm := make([]geom.Point, len(pts))
	for i, q := range pts {
		norm[i] = geom.Normalize(q, size)
	}
	s.emit(drawproto.Draw(norm, tool.Color.Hex(), width))
}

// Interrupt ends any stroke in progress, as when the hand switches to menu
// navigation. It emits Up if the pen was down.
func (s *Synthesizer) Interrupt() {
	s.lift()
}

// Clear wipes the local layer and tells peers to do the same.
func (s *Synthesizer) Clear() {
	s.layer.Clear()
	s.Reset()
	s.emit(drawproto.Clear())
}

// Reset drops the cursor and buffered samples without emitting anything.
func (s *Synthesizer) Reset() {
	s.smooth.Reset()
	s.buf.Reset()
	s.down = false
}

// PenDown reports whether a stroke is in progress.
func (s *Synthesizer) PenDown() bool {
	return s.down
}

// Cursor returns the smoothed pen position while a stroke is in progress.
func (s *Synthesizer) Cursor() (geom.Point, bool) {
	return s.smooth.Current()
}

func (s *Synthesizer) lift() {
	if !s.down {
		return
	}
	s.Reset()
	s.emit(drawproto.Up())
}

func (s *Synthesizer) emit(ev drawproto.Event) {
	if s.sink != nil {
		s.sink.Emit(ev)
	}
}
