// Package gesture derives pen and menu gestures from hand landmarks.
package gesture

import (
	"math"

	"github.com/ayusman/kalam/internal/detector"
	"github.com/ayusman/kalam/internal/geom"
)

// Thresholds are the distances (in normalized source units) and grace
// window the classifier works with.
type Thresholds struct {
	Pinch     float64 // thumb tip to index tip
	TwoFinger float64 // index tip to middle tip
	GraceMax  int     // ticks a pinch survives after the raw signal drops
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Pinch:     0.07,
		TwoFinger: 0.05,
		GraceMax:  4,
	}
}

// State is carried from one tick to the next for a single hand.
type State struct {
	PinchActive bool
	PinchGrace  int
	TwoFinger   bool
}

// Result is the per-tick outcome for a hand.
type Result struct {
	PenDown   bool
	TwoFinger bool
}

// Classify computes the next state for one hand. A two-finger pose wins
// over a pinch and clears all pinch state. A pinch that stops registering
// stays down for up to GraceMax further ticks.
func Classify(prev State, hand detector.HandLandmarks, th Thresholds) (State, Result) {
	if TwoFingerDistance(hand) < th.TwoFinger {
		return State{TwoFinger: true}, Result{TwoFinger: true}
	}

	var next State
	switch {
	case PinchDistance(hand) < th.Pinch:
		next = State{PinchActive: true}
	case prev.PinchActive && prev.PinchGrace < th.GraceMax:
		next = State{PinchActive: true, PinchGrace: prev.PinchGrace + 1}
	}
	return next, Result{PenDown: next.PinchActive}
}

// PinchDistance is the 2D distance between the thumb and index tips.
func PinchDistance(hand detector.HandLandmarks) float64 {
	return dist2D(hand.Points[detector.ThumbTip], hand.Points[detector.IndexTip])
}

// TwoFingerDistance is the 2D distance between the index and middle tips.
func TwoFingerDistance(hand detector.HandLandmarks) float64 {
	return dist2D(hand.Points[detector.IndexTip], hand.Points[detector.MiddleTip])
}

func dist2D(a, b detector.Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Classifier keeps the gesture state of each hand slot across ticks.
// Slots are positional: the first detected hand is slot 0.
type Classifier struct {
	th     Thresholds
	states []State
}

// NewClassifier creates a Classifier.
func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{th: th}
}

// SetThresholds replaces the thresholds; state is kept.
func (c *Classifier) SetThresholds(th Thresholds) {
	c.th = th
}

// Update classifies every hand of a frame. Slots with no hand this tick
// keep their previous state.
func (c *Classifier) Update(hands []detector.HandLandmarks) []Result {
	for len(c.states) < len(hands) {
		c.states = append(c.states, State{})
	}

	results := make([]Result, len(hands))
	for i, hand := range hands {
		c.states[i], results[i] = Classify(c.states[i], hand, c.th)
	}
	return results
}

// State returns the state of slot i.
func (c *Classifier) State(i int) State {
	if i < 0 || i >= len(c.states) {
		return State{}
	}
	return c.states[i]
}

// Reset forgets all hand state.
func (c *Classifier) Reset() {
	c.states = c.states[:0]
}

// IndexTip maps the index fingertip into canvas pixels.
func IndexTip(hand detector.HandLandmarks, m *geom.Mapper) geom.Point {
	p := hand.Points[detector.IndexTip]
	return m.Map(p.X, p.Y)
}

// MenuCursor is the mapped midpoint of the index and middle tips, the
// pointer used for toolbar navigation.
func MenuCursor(hand detector.HandLandmarks, m *geom.Mapper) geom.Point {
	a := hand.Points[detector.IndexTip]
	b := hand.Points[detector.MiddleTip]
	return geom.Mid(m.Map(a.X, a.Y), m.Map(b.X, b.Y))
}
