// Package session runs the gesture annotation pipeline for one participant:
// each tick maps landmarks onto the canvas, classifies gestures, drives the
// toolbar and the stroke synthesizer, and composites video, ink and
// toolbar into the host's frame.
package session

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/detector"
	"github.com/ayusman/kalam/internal/drawproto"
	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/gesture"
	"github.com/ayusman/kalam/internal/ink"
	"github.com/ayusman/kalam/internal/stroke"
	"github.com/ayusman/kalam/internal/toolbar"
)

// ErrClosed is returned by Tick after Close.
var ErrClosed = errors.New("session closed")

var (
	black         = gocv.NewScalar(0, 0, 0, 0)
	boneColor     = color.RGBA{R: 0x00, G: 0xff, B: 0x88, A: 0xff}
	jointColor    = color.RGBA{R: 0xff, G: 0x33, B: 0x66, A: 0xff}
	pointerColor  = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	jointRadius   = 4
	boneThickness = 3
)

func logger() *zerolog.Logger {
	l := log.With().Str("module", "session").Logger()
	return &l
}

// Config configures a Session.
type Config struct {
	Canvas geom.Size
	Mirror bool
	Tuning config.Tuning
}

// Status is a point-in-time view of a session for the host UI.
type Status struct {
	ID        string       `json:"id"`
	Active    bool         `json:"active"`
	Controls  ControlState `json:"controls"`
	Tool      ink.Tool     `json:"tool"`
	Menu      string       `json:"menu"`
	PenDown   bool         `json:"pen_down"`
	TwoFinger bool         `json:"two_finger"`
	Hands     int          `json:"hands"`
	Canvas    geom.Size    `json:"canvas"`
	Ticks     uint64       `json:"ticks"`
}

// Session owns all per-participant annotation state. Tick is called from a
// single loop; Start, Stop and Status may be called from other goroutines.
// Remote events are replayed onto the remote layer as they arrive.
type Session struct {
	mu sync.Mutex

	id       string
	controls *Controls
	mirror   bool
	tuning   config.Tuning

	sink       stroke.Sink
	mapper     *geom.Mapper
	classifier *gesture.Classifier
	menu       *toolbar.Menu
	synth      *stroke.Synthesizer
	tool       ink.Tool

	local  *ink.Layer
	remote *ink.Layer

	unsubscribe func()

	active    bool
	closed    bool
	lostTicks int
	last      gesture.Result
	hands     int
	ticks     uint64
}

// New creates a stopped session. Local strokes are reported to sink and
// events arriving on receiver are drawn on the remote layer.
func New(cfg Config, controls *Controls, sink stroke.Sink, receiver *drawproto.Receiver) (*Session, error) {
	local, err := ink.NewLayer(cfg.Canvas)
	if err != nil {
		return nil, fmt.Errorf("local layer: %w", err)
	}
	remote, err := ink.NewLayer(cfg.Canvas)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("remote layer: %w", err)
	}
	if controls == nil {
		controls = NewControls()
	}

	s := &Session{
		id:       uuid.New().String(),
		controls: controls,
		mirror:   cfg.Mirror,
		sink:     sink,
		mapper:   geom.NewMapper(cfg.Mirror),
		local:    local,
		remote:   remote,
		tool:     ink.DefaultTool(),
	}
	s.configure(cfg.Tuning)

	if receiver != nil {
		s.unsubscribe = receiver.Subscribe(drawproto.NewReplayer(remote))
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Controls returns the session's toggles.
func (s *Session) Controls() *Controls {
	return s.controls
}

// Start begins gesture processing with fresh per-session state. The tool
// returns to its defaults and tuning is reapplied.
func (s *Session) Start(t config.Tuning) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configure(t)
	s.tool = ink.DefaultTool()
	s.lostTicks = 0
	s.last = gesture.Result{}
	s.active = true
	logger().Info().Str("session", s.id).Msg("gesture mode started")
}

// Stop halts gesture processing and wipes both layers.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	s.synth.Reset()
	s.classifier.Reset()
	s.menu.Reset()
	s.local.Clear()
	s.remote.Clear()
	s.last = gesture.Result{}
	logger().Info().Str("session", s.id).Msg("gesture mode stopped")
}

// Active reports whether gesture processing is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close detaches from the receiver and releases both layers.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.active = false
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return errors.Join(s.local.Close(), s.remote.Close())
}

// Layers returns the local and remote ink layers.
func (s *Session) Layers() (local, remote *ink.Layer) {
	return s.local, s.remote
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		ID:        s.id,
		Active:    s.active,
		Controls:  s.controls.State(),
		Tool:      s.tool,
		Menu:      s.menu.State().String(),
		PenDown:   s.synth.PenDown(),
		TwoFinger: s.last.TwoFinger,
		Hands:     s.hands,
		Canvas:    s.local.Size(),
		Ticks:     s.ticks,
	}
}

// Tick runs one frame of the pipeline. video is the camera frame (BGR, may
// be nil), hands are the detections for that frame, and out is the BGR
// canvas to render into; its size is the canvas size for this tick.
func (s *Session) Tick(video *gocv.Mat, hands []detector.HandLandmarks, now time.Time, out *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.ticks++
	ctl := s.controls.State()

	// Resize first so no ink lands on a stale surface.
	canvas := geom.Size{W: out.Cols(), H: out.Rows()}
	if err := s.local.Resize(canvas); err != nil {
		return fmt.Errorf("resize local layer: %w", err)
	}
	if err := s.remote.Resize(canvas); err != nil {
		return fmt.Errorf("resize remote layer: %w", err)
	}

	haveVideo := s.compositeVideo(video, out, canvas, ctl.Camera)

	if s.controls.takeClear() {
		s.synth.Clear()
	}

	var cursor *geom.Point
	var pointer *geom.Point
	s.hands = len(hands)
	if s.active && ctl.DrawMode && haveVideo {
		cursor, pointer = s.step(hands, now)
	} else if s.active {
		s.synth.Interrupt()
		s.menu.Release()
		s.menu.Tick(now)
		s.last = gesture.Result{}
	}

	if err := s.local.CompositeOnto(out); err != nil {
		return fmt.Errorf("composite local ink: %w", err)
	}
	if err := s.remote.CompositeOnto(out); err != nil {
		return fmt.Errorf("composite remote ink: %w", err)
	}

	if s.active && haveVideo && s.tuning.ShowLandmarks {
		for _, h := range hands {
			s.drawSkeleton(out, h)
		}
	}
	if pointer != nil {
		r := int(s.tool.Width.Pixels()/2) + 4
		gocv.Circle(out, pointer.ImagePoint(), r, pointerColor, 2)
	}
	if s.active && ctl.DrawMode {
		toolbar.Render(out, s.menu, s.tool, cursor)
	}
	return nil
}

// step applies the gesture logic for the primary hand. It returns the menu
// cursor when navigating and the fingertip pointer otherwise.
func (s *Session) step(hands []detector.HandLandmarks, now time.Time) (cursor, pointer *geom.Point) {
	defer s.menu.Tick(now)

	if len(hands) == 0 {
		s.lostTicks++
		if s.tuning.LostHandTicks > 0 && s.lostTicks >= s.tuning.LostHandTicks {
			s.synth.Interrupt()
			s.classifier.Reset()
			s.menu.Release()
			s.last = gesture.Result{}
		}
		return nil, nil
	}
	s.lostTicks = 0

	results := s.classifier.Update(hands)
	primary, res := hands[0], results[0]
	s.last = res

	if res.TwoFinger {
		s.synth.Interrupt()
		c := gesture.MenuCursor(primary, s.mapper)
		s.tool = s.menu.Hover(c, s.tool, now)
		return &c, nil
	}

	s.menu.Release()
	tip := gesture.IndexTip(primary, s.mapper)
	s.synth.Step(res.PenDown, s.tool, tip)
	if p, ok := s.synth.Cursor(); ok {
		return nil, &p
	}
	return nil, &tip
}

// compositeVideo fills out with the cover-cropped video frame. It reports
// whether a frame was drawn.
func (s *Session) compositeVideo(video, out *gocv.Mat, canvas geom.Size, camera bool) bool {
	if !camera || video == nil || video.Empty() {
		out.SetTo(black)
		return false
	}

	src := geom.Size{W: video.Cols(), H: video.Rows()}
	if err := s.mapper.Update(src, canvas); err != nil {
		logger().Debug().Err(err).Msg("skip video frame")
		out.SetTo(black)
		return false
	}
	crop, _ := s.mapper.Crop()

	frame := *video
	if video.Channels() != 3 {
		converted := gocv.NewMat()
		defer converted.Close()
		code := gocv.ColorBGRAToBGR
		if video.Channels() == 1 {
			code = gocv.ColorGrayToBGR
		}
		gocv.CvtColor(*video, &converted, code)
		frame = converted
	}

	region := frame.Region(crop.Rect(src))
	defer region.Close()
	gocv.Resize(region, out, image.Pt(canvas.W, canvas.H), 0, 0, gocv.InterpolationLinear)
	if s.mirror {
		gocv.Flip(*out, out, 1)
	}
	return true
}

func (s *Session) drawSkeleton(out *gocv.Mat, hand detector.HandLandmarks) {
	var pts [detector.NumLandmarks]image.Point
	for i, p := range hand.Points {
		pts[i] = s.mapper.Map(p.X, p.Y).ImagePoint()
	}
	for _, c := range detector.Connections {
		gocv.Line(out, pts[c[0]], pts[c[1]], boneColor, boneThickness)
	}
	for _, p := range pts {
		gocv.Circle(out, p, jointRadius, jointColor, -1)
	}
}

// configure rebuilds the tunable components. Caller holds s.mu or owns s.
func (s *Session) configure(t config.Tuning) {
	s.tuning = t
	s.classifier = gesture.NewClassifier(t.Thresholds())
	s.menu = toolbar.NewMenu(t.Layout(), t.Timing())
	s.synth = stroke.NewSynthesizer(s.local, s.sink, t.SmoothingAlpha)
}
