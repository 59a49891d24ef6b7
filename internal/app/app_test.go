package app

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalam/internal/capture"
	"github.com/ayusman/kalam/internal/detector"
	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/store"
	"github.com/ayusman/kalam/internal/transport"
)

var testCanvas = geom.Size{W: 640, H: 480}

type fixture struct {
	app    *App
	camera *capture.MockCamera
	hands  *detector.MockDetector
	out    gocv.Mat
	base   time.Time
	clock  int
}

func newFixture(t *testing.T, s *store.Store) *fixture {
	t.Helper()

	frames := capture.SolidFrames(2, testCanvas, 60)
	cam := capture.NewMockCamera(frames, true)
	hands := detector.NewMockDetector()

	a, err := New(Config{
		Store:       s,
		Camera:      cam,
		Canvas:      testCanvas,
		Room:        "maths",
		NewDetector: func() (detector.Detector, error) { return hands, nil },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	f := &fixture{app: a, camera: cam, hands: hands, out: gocv.NewMat(), base: time.Now()}
	t.Cleanup(func() {
		a.Close()
		f.out.Close()
		for _, m := range frames {
			m.Close()
		}
	})
	return f
}

func (f *fixture) tick() {
	f.clock++
	f.app.processFrame(f.base.Add(time.Duration(f.clock)*16*time.Millisecond), &f.out)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "kalam.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApp_FrameBeforeFirstTick(t *testing.T) {
	f := newFixture(t, nil)

	m, seq, ok := f.app.Frame()
	defer m.Close()
	if ok || seq != 0 {
		t.Errorf("Frame() = seq %d ok %v, want nothing before the first tick", seq, ok)
	}
}

func TestApp_PublishesFrames(t *testing.T) {
	f := newFixture(t, nil)
	f.tick()
	f.tick()

	m, seq, ok := f.app.Frame()
	defer m.Close()
	if !ok || seq != 2 {
		t.Fatalf("Frame() = seq %d ok %v, want seq 2", seq, ok)
	}
	if m.Cols() != testCanvas.W || m.Rows() != testCanvas.H {
		t.Errorf("frame %dx%d, want %dx%d", m.Cols(), m.Rows(), testCanvas.W, testCanvas.H)
	}
	if v := m.GetVecbAt(400, 600); v[0] != 60 {
		t.Errorf("pixel = %v, want camera gray", v)
	}
}

func TestApp_StartGesturesUnavailable(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	a, err := New(Config{
		Camera:      cam,
		Canvas:      testCanvas,
		NewDetector: func() (detector.Detector, error) { return nil, detector.ErrUnavailable },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	err = a.StartGestures()
	if !errors.Is(err, ErrGestureUnavailable) {
		t.Fatalf("StartGestures() error = %v, want ErrGestureUnavailable", err)
	}
	if a.Session().Active() {
		t.Error("session should stay inactive")
	}
	if a.Controls().State().GestureMode {
		t.Error("gesture mode should stay off")
	}
}

func TestApp_DrawingReachesPeer(t *testing.T) {
	host := newFixture(t, nil)
	guest := newFixture(t, nil)

	left, right := transport.NewPipe()
	host.app.Connect(left)
	guest.app.Connect(right)

	if err := host.app.StartGestures(); err != nil {
		t.Fatalf("StartGestures() error = %v", err)
	}
	host.hands.SetScript([][]detector.HandLandmarks{
		{detector.Pinch(0.40, 0.5)},
		{detector.Pinch(0.45, 0.5)},
		{detector.Pinch(0.50, 0.5)},
		{detector.OpenHand(0.50, 0.5)},
	})
	for i := 0; i < 4; i++ {
		host.tick()
	}
	guest.tick()

	st := host.app.Status()
	if st.Sent < 3 || st.Dropped != 0 {
		t.Errorf("host sent %d dropped %d, want a stroke and its end", st.Sent, st.Dropped)
	}
	if st.Link != transport.StateOpen.String() {
		t.Errorf("link = %s, want open", st.Link)
	}
	if got := guest.app.Status().Received; got != st.Sent {
		t.Errorf("guest received %d, want %d", got, st.Sent)
	}

	_, remote := guest.app.Session().Layers()
	if remote.Empty() {
		t.Error("guest remote layer should hold the host stroke")
	}
	local, _ := guest.app.Session().Layers()
	if !local.Empty() {
		t.Error("guest local layer should be untouched")
	}
}

func TestApp_DisconnectedDropsStrokes(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.app.StartGestures(); err != nil {
		t.Fatalf("StartGestures() error = %v", err)
	}
	f.hands.SetScript([][]detector.HandLandmarks{
		{detector.Pinch(0.40, 0.5)},
		{detector.Pinch(0.45, 0.5)},
		{detector.OpenHand(0.45, 0.5)},
	})
	for i := 0; i < 3; i++ {
		f.tick()
	}

	st := f.app.Status()
	if st.Sent != 0 || st.Dropped == 0 {
		t.Errorf("sent %d dropped %d, want everything dropped", st.Sent, st.Dropped)
	}
	if st.Link != "none" {
		t.Errorf("link = %s, want none", st.Link)
	}
	local, _ := f.app.Session().Layers()
	if local.Empty() {
		t.Error("local ink should be drawn without a connection")
	}
}

func TestApp_IdleSkipsDetection(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.app.StartGestures(); err != nil {
		t.Fatalf("StartGestures() error = %v", err)
	}

	f.tick()
	if f.hands.Calls() != 1 {
		t.Fatalf("detector calls = %d, want 1", f.hands.Calls())
	}

	// Solid frames never move.
	f.app.processFrame(f.base.Add(IdleTimeout+time.Second), &f.out)
	if !f.app.Status().Idle {
		t.Fatal("app should be idle after the scene stays still")
	}
	if f.hands.Calls() != 1 {
		t.Errorf("detector calls = %d, idle ticks should skip detection", f.hands.Calls())
	}
	if got := f.app.interval(); got != time.Second/IdleFPS {
		t.Errorf("interval = %v, want idle rate", got)
	}
}

func TestApp_CameraOff(t *testing.T) {
	f := newFixture(t, nil)
	f.app.Controls().SetCamera(false)
	f.tick()

	if n := f.camera.Reads(); n != 0 {
		t.Errorf("camera reads = %d, want none while off", n)
	}
	m, _, ok := f.app.Frame()
	defer m.Close()
	if !ok {
		t.Fatal("frame should still be published")
	}
	if v := m.GetVecbAt(10, 10); v[0] != 0 || v[1] != 0 || v[2] != 0 {
		t.Errorf("pixel = %v, want black", v)
	}
}

func TestApp_SetCanvas(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.app.SetCanvas(geom.Size{W: 0, H: 10}); !errors.Is(err, geom.ErrInvalidSize) {
		t.Errorf("SetCanvas(0x10) error = %v, want ErrInvalidSize", err)
	}
	if err := f.app.SetCanvas(geom.Size{W: 50000, H: 50000}); !errors.Is(err, geom.ErrInvalidSize) {
		t.Errorf("SetCanvas(50000x50000) error = %v, want ErrInvalidSize", err)
	}
	if err := f.app.SetCanvas(geom.Size{W: MaxCanvasSide, H: 2160}); err != nil {
		t.Errorf("SetCanvas(%dx2160) error = %v", MaxCanvasSide, err)
	}
	if err := f.app.SetCanvas(geom.Size{W: 320, H: 180}); err != nil {
		t.Fatalf("SetCanvas() error = %v", err)
	}
	f.tick()

	m, _, _ := f.app.Frame()
	defer m.Close()
	if m.Cols() != 320 || m.Rows() != 180 {
		t.Errorf("frame %dx%d, want 320x180", m.Cols(), m.Rows())
	}
	if got := f.app.Session().Status().Canvas; got != (geom.Size{W: 320, H: 180}) {
		t.Errorf("session canvas = %+v", got)
	}
}

func TestApp_StoredSettingsAndHistory(t *testing.T) {
	s := newTestStore(t)
	if err := s.Settings().Set("tick_rate", "30"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	f := newFixture(t, s)

	if err := f.app.StartGestures(); err != nil {
		t.Fatalf("StartGestures() error = %v", err)
	}
	if got := f.app.Tuning().TickRate; got != 30 {
		t.Errorf("TickRate = %d, want stored 30", got)
	}
	if got := f.app.interval(); got != time.Second/30 {
		t.Errorf("interval = %v, want 1/30s", got)
	}

	f.app.StopGestures()

	rec, err := s.Sessions().Get(f.app.Session().ID())
	if err != nil {
		t.Fatalf("Sessions().Get() error = %v", err)
	}
	if rec.Room != "maths" || rec.EndedAt == nil {
		t.Errorf("record = %+v, want ended session in maths", rec)
	}
}

func TestApp_BadStoredSettingFallsBack(t *testing.T) {
	s := newTestStore(t)
	if err := s.Settings().Set("pinch_threshold", "wide"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	f := newFixture(t, s)

	if err := f.app.StartGestures(); err != nil {
		t.Fatalf("StartGestures() error = %v", err)
	}
	if got := f.app.Tuning().PinchThreshold; got != 0.07 {
		t.Errorf("PinchThreshold = %v, want default", got)
	}
}

func TestApp_StartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline loop test")
	}
	f := newFixture(t, nil)

	if err := f.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !f.app.Running() {
		t.Fatal("Running() = false after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.app.Status().Frames < 3 {
		if time.Now().After(deadline) {
			t.Fatal("pipeline produced no frames")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := f.app.StartGestures(); err != nil {
		t.Fatalf("StartGestures() error = %v", err)
	}
	f.app.Stop()
	if f.app.Running() {
		t.Error("Running() = true after Stop")
	}
	if f.app.Session().Active() {
		t.Error("Stop should end gesture mode")
	}
	if !f.hands.Closed() {
		t.Error("Stop should close the detector")
	}
	if f.camera.IsOpen() {
		t.Error("Stop should close the camera")
	}
}
