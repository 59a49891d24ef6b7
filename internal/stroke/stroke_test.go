package stroke

import (
	"math"
	"testing"

	"github.com/ayusman/kalam/internal/drawproto"
	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/ink"
)

type recordingSink struct {
	events []drawproto.Event
}

func (r *recordingSink) Emit(ev drawproto.Event) {
	r.events = append(r.events, ev)
}

func (r *recordingSink) kinds() []drawproto.Kind {
	out := make([]drawproto.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestSmoother(t *testing.T) {
	s := NewSmoother(0.35)

	if p := s.Next(geom.Pt(100, 100)); p != geom.Pt(100, 100) {
		t.Errorf("first sample = %v, want it unchanged", p)
	}

	p := s.Next(geom.Pt(200, 100))
	if math.Abs(p.X-135) > 1e-9 || math.Abs(p.Y-100) > 1e-9 {
		t.Errorf("second sample = %v, want (135, 100)", p)
	}

	s.Reset()
	if _, ok := s.Current(); ok {
		t.Error("Current() should be empty after Reset")
	}
	if p := s.Next(geom.Pt(5, 5)); p != geom.Pt(5, 5) {
		t.Errorf("sample after reset = %v, want it unchanged", p)
	}
}

func TestSmoother_InvalidAlpha(t *testing.T) {
	s := NewSmoother(0)
	s.Next(geom.Pt(0, 0))
	p := s.Next(geom.Pt(100, 0))
	if math.Abs(p.X-100*DefaultAlpha) > 1e-9 {
		t.Errorf("expected default alpha, got x=%f", p.X)
	}
}

func TestBuffer(t *testing.T) {
	var b Buffer
	for i := 1; i <= 6; i++ {
		b.Push(geom.Pt(float64(i), 0))
	}

	if b.Len() != BufferSize {
		t.Fatalf("Len() = %d, want %d", b.Len(), BufferSize)
	}
	pts := b.Points()
	for i, want := range []float64{3, 4, 5, 6} {
		if pts[i].X != want {
			t.Errorf("Points()[%d] = %v, want x=%v", i, pts[i], want)
		}
	}

	b.Reset()
	if b.Len() != 0 || len(b.Points()) != 0 {
		t.Error("buffer should be empty after Reset")
	}
}

func newSynth(t *testing.T) (*Synthesizer, *ink.Layer, *recordingSink) {
	t.Helper()
	layer, err := ink.NewLayer(geom.Size{W: 400, H: 200})
	if err != nil {
		t.Fatalf("NewLayer() error = %v", err)
	}
	t.Cleanup(func() { layer.Close() })
	sink := &recordingSink{}
	return NewSynthesizer(layer, sink, DefaultAlpha), layer, sink
}

func TestSynthesizer_Draw(t *testing.T) {
	s, layer, sink := newSynth(t)
	tool := ink.DefaultTool()

	s.Step(true, tool, geom.Pt(100, 100))
	if len(sink.events) != 0 {
		t.Fatalf("single sample should not emit, got %v", sink.kinds())
	}

	s.Step(true, tool, geom.Pt(100, 100))
	if len(sink.events) != 1 || sink.events[0].Kind != drawproto.KindDraw {
		t.Fatalf("expected one draw event, got %v", sink.kinds())
	}
	ev := sink.events[0]
	if len(ev.Points) != 2 {
		t.Errorf("draw points = %d, want 2", len(ev.Points))
	}
	if ev.Points[0] != geom.Pt(0.25, 0.5) {
		t.Errorf("normalized point = %v, want (0.25, 0.5)", ev.Points[0])
	}
	if ev.Color != ink.ColorCyan.Hex() || ev.Width != ink.WidthThin.Pixels() {
		t.Errorf("unexpected tool on event: %+v", ev)
	}

	for i := 0; i < 4; i++ {
		s.Step(true, tool, geom.Pt(200+float64(i)*20, 100))
	}
	last := sink.events[len(sink.events)-1]
	if len(last.Points) != BufferSize {
		t.Errorf("draw points = %d, want %d", len(last.Points), BufferSize)
	}
	if layer.Empty() {
		t.Error("expected ink on the local layer")
	}
	if !s.PenDown() {
		t.Error("PenDown() should be true mid-stroke")
	}
}

func TestSynthesizer_UpOnce(t *testing.T) {
	s, _, sink := newSynth(t)
	tool := ink.DefaultTool()

	s.Step(false, tool, geom.Pt(10, 10))
	if len(sink.events) != 0 {
		t.Fatalf("pen up without a stroke should not emit, got %v", sink.kinds())
	}

	s.Step(true, tool, geom.Pt(10, 10))
	s.Step(true, tool, geom.Pt(20, 10))
	s.Step(false, tool, geom.Pt(20, 10))
	s.Step(false, tool, geom.Pt(20, 10))

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[1] != drawproto.KindUp {
		t.Fatalf("events = %v, want [draw up]", kinds)
	}
	if _, ok := s.Cursor(); ok {
		t.Error("cursor should be cleared on pen up")
	}

	// A new stroke starts fresh: one sample does not draw.
	s.Step(true, tool, geom.Pt(300, 150))
	if len(sink.events) != 2 {
		t.Errorf("first sample of a new stroke emitted %v", sink.kinds())
	}
}

func TestSynthesizer_Eraser(t *testing.T) {
	s, layer, sink := newSynth(t)

	draw := ink.Tool{Color: ink.ColorYellow, Width: ink.WidthMedium}
	s.Step(true, draw, geom.Pt(100, 100))
	for i := 0; i < 4; i++ {
		s.Step(true, draw, geom.Pt(200, 100))
	}
	s.Step(false, draw, geom.Pt(200, 100))
	if px := layer.At(150, 100); px.A == 0 {
		t.Fatal("expected ink before erasing")
	}

	eraser := ink.Tool{Color: ink.ColorYellow, Width: ink.WidthMedium, Eraser: true}
	s.Step(true, eraser, geom.Pt(150, 100))

	last := sink.events[len(sink.events)-1]
	if last.Kind != drawproto.KindErase {
		t.Fatalf("last event = %s, want erase", last.Kind)
	}
	if last.X != 0.375 || last.Y != 0.5 || last.Width != ink.WidthMedium.Pixels() {
		t.Errorf("erase event = %+v, want center (0.375, 0.5) width 8", last)
	}
	if px := layer.At(150, 100); px.A != 0 {
		t.Errorf("erased pixel alpha = %d, want 0", px.A)
	}
}

func TestSynthesizer_InterruptAndClear(t *testing.T) {
	s, layer, sink := newSynth(t)
	tool := ink.DefaultTool()

	s.Step(true, tool, geom.Pt(50, 50))
	s.Step(true, tool, geom.Pt(80, 50))
	s.Interrupt()
	s.Interrupt()

	if kinds := sink.kinds(); len(kinds) != 2 || kinds[1] != drawproto.KindUp {
		t.Fatalf("events = %v, want [draw up]", kinds)
	}
	if s.PenDown() {
		t.Error("PenDown() should be false after Interrupt")
	}

	s.Clear()
	if !layer.Empty() {
		t.Error("Clear should wipe the local layer")
	}
	if last := sink.events[len(sink.events)-1]; last.Kind != drawproto.KindClear {
		t.Errorf("last event = %s, want clear", last.Kind)
	}
}
