// Package app runs the host side of kalam: it reads the camera, detects
// hands, steps the annotation session and keeps the latest composited
// frame for the UI surfaces.
package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/kalam/internal/capture"
	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/detector"
	"github.com/ayusman/kalam/internal/drawproto"
	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/session"
	"github.com/ayusman/kalam/internal/store"
	"github.com/ayusman/kalam/internal/transport"
)

// Pipeline timing constants.
const (
	// IdleFPS is the loop rate after the scene has been still for IdleTimeout.
	IdleFPS = 15
	// IdleTimeout is how long without motion before dropping to IdleFPS.
	IdleTimeout = 2 * time.Second
	// MaxCanvasSide caps either canvas dimension.
	MaxCanvasSide = 3840
)

// ErrGestureUnavailable is returned by StartGestures when no hand detector
// could be initialised.
var ErrGestureUnavailable = errors.New("gesture mode cannot start")

func logger() *zerolog.Logger {
	l := log.With().Str("module", "app").Logger()
	return &l
}

// DetectorFactory creates the hand detector on first use.
type DetectorFactory func() (detector.Detector, error)

// Config holds configuration options for the application.
type Config struct {
	Store        *store.Store
	Camera       capture.Camera // nil opens device CameraID
	CameraID     int
	Canvas       geom.Size
	Mirror       bool
	MotionThresh float64
	Room         string
	NewDetector  DetectorFactory // nil uses the MediaPipe service
}

// Channel is a transport the app sends local strokes on and receives
// remote strokes from.
type Channel interface {
	drawproto.Channel
	OnMessage(h transport.MessageHandler)
}

// Status is what the host UI shows about the running app.
type Status struct {
	Session  session.Status `json:"session"`
	Running  bool           `json:"running"`
	Idle     bool           `json:"idle"`
	Link     string         `json:"link"`
	Sent     int64          `json:"sent"`
	Dropped  int64          `json:"dropped"`
	Received int64          `json:"received"`
	Frames   uint64         `json:"frames"`
}

// App wires camera, detector, session and transport together.
type App struct {
	config   Config
	camera   capture.Camera
	motion   *capture.MotionDetector
	controls *session.Controls
	session  *session.Session
	sender   *drawproto.Sender
	receiver *drawproto.Receiver

	mu       sync.RWMutex
	detector detector.Detector
	channel  Channel
	tuning   config.Tuning
	canvas   geom.Size
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  time.Time

	loop loopState

	frameMu     sync.RWMutex
	frame       gocv.Mat
	frameSeq    uint64
	frameClosed bool
}

// loopState is owned by the pipeline goroutine.
type loopState struct {
	idle       bool
	lastMotion time.Time
}

// New creates a stopped App.
func New(cfg Config) (*App, error) {
	if cfg.MotionThresh <= 0 {
		cfg.MotionThresh = 1.0
	}
	if CheckCanvas(cfg.Canvas) != nil {
		cfg.Canvas = geom.Size{W: capture.DefaultWidth, H: capture.DefaultHeight}
	}
	if cfg.Camera == nil {
		cfg.Camera = capture.NewCamera(capture.DefaultOptions(cfg.CameraID))
	}
	if cfg.NewDetector == nil {
		cfg.NewDetector = func() (detector.Detector, error) {
			return detector.NewMediaPipeDetector(detector.DefaultConfig())
		}
	}

	a := &App{
		config:   cfg,
		camera:   cfg.Camera,
		motion:   capture.NewMotionDetector(cfg.MotionThresh),
		controls: session.NewControls(),
		sender:   drawproto.NewSender(nil),
		receiver: drawproto.NewReceiver(),
		canvas:   cfg.Canvas,
		frame:    gocv.NewMat(),
		loop:     loopState{lastMotion: time.Now()},
	}
	a.tuning = a.loadTuning()

	s, err := session.New(session.Config{
		Canvas: cfg.Canvas,
		Mirror: cfg.Mirror,
		Tuning: a.tuning,
	}, a.controls, a.sender, a.receiver)
	if err != nil {
		a.motion.Close()
		a.frame.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.session = s
	return a, nil
}

// loadTuning applies stored overrides to the defaults. Invalid stored
// values are logged and the defaults kept.
func (a *App) loadTuning() config.Tuning {
	t := config.DefaultTuning()
	if a.config.Store == nil {
		return t
	}
	values, err := a.config.Store.Settings().All()
	if err != nil {
		logger().Warn().Err(err).Msg("failed to read settings")
		return t
	}
	applied, err := t.ApplySettings(values)
	if err != nil {
		logger().Warn().Err(err).Msg("ignoring stored settings")
		return t
	}
	return applied
}

// Connect routes local strokes to ch and remote strokes from ch into the
// session. A nil ch disconnects; strokes are then dropped.
func (a *App) Connect(ch Channel) {
	a.mu.Lock()
	a.channel = ch
	a.mu.Unlock()

	if ch == nil {
		a.sender.SetChannel(nil)
		return
	}
	ch.OnMessage(a.receiver.HandleMessage)
	a.sender.SetChannel(ch)
}

// Start opens the camera and begins the pipeline. If the camera cannot be
// opened the pipeline still runs with the camera control off, so the
// canvas and remote ink stay live, and the open error is returned.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}
	var openErr error
	if err := a.camera.Open(); err != nil {
		openErr = fmt.Errorf("open camera: %w", err)
		a.controls.SetCamera(false)
	}

	a.started = time.Now()
	a.loop = loopState{lastMotion: a.started}
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	logger().Info().Str("session", a.session.ID()).Msg("pipeline started")
	return openErr
}

// Stop halts the pipeline and releases the camera and detector. The
// session is stopped but stays usable for a later Start.
func (a *App) Stop() {
	a.StopGestures()

	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.camera.Close(); err != nil {
		logger().Warn().Err(err).Msg("error closing camera")
	}
	a.motion.Reset()
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			logger().Warn().Err(err).Msg("error closing detector")
		}
		a.detector = nil
	}
	logger().Info().Msg("pipeline stopped")
}

// Close stops the app and frees the session.
func (a *App) Close() error {
	a.Stop()
	a.motion.Close()

	a.frameMu.Lock()
	if !a.frameClosed {
		a.frameClosed = true
		a.frame.Close()
	}
	a.frameMu.Unlock()

	return a.session.Close()
}

// Running reports whether the pipeline goroutine is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// StartGestures enables gesture processing with the stored tuning. It
// returns ErrGestureUnavailable if the detector cannot be created; video
// and transport are unaffected.
func (a *App) StartGestures() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detector == nil {
		d, err := a.config.NewDetector()
		if err != nil {
			logger().Warn().Err(err).Msg("hand detector unavailable")
			return fmt.Errorf("%w: %v", ErrGestureUnavailable, err)
		}
		a.detector = d
	}

	a.tuning = a.loadTuning()
	a.session.Start(a.tuning)
	a.controls.SetGestureMode(true)

	if a.config.Store != nil {
		if err := a.config.Store.Sessions().Begin(a.session.ID(), a.config.Room, time.Now()); err != nil {
			logger().Warn().Err(err).Msg("failed to record session start")
		}
	}
	return nil
}

// StopGestures disables gesture processing and wipes the canvas.
func (a *App) StopGestures() {
	if !a.session.Active() {
		a.controls.SetGestureMode(false)
		return
	}
	a.session.Stop()
	a.controls.SetGestureMode(false)

	if a.config.Store != nil {
		sent, dropped := a.sender.Stats()
		if err := a.config.Store.Sessions().End(a.session.ID(), time.Now(), sent, dropped); err != nil {
			logger().Warn().Err(err).Msg("failed to record session end")
		}
	}
}

// SetCanvas changes the size frames are composited at from the next tick.
func (a *App) SetCanvas(size geom.Size) error {
	if err := CheckCanvas(size); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.canvas = size
	return nil
}

// CheckCanvas rejects sizes that are empty or larger than MaxCanvasSide on
// either side.
func CheckCanvas(size geom.Size) error {
	if !size.Valid() || size.W > MaxCanvasSide || size.H > MaxCanvasSide {
		return fmt.Errorf("canvas %dx%d: %w", size.W, size.H, geom.ErrInvalidSize)
	}
	return nil
}

// Canvas returns the current canvas size.
func (a *App) Canvas() geom.Size {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.canvas
}

// Controls returns the UI toggles.
func (a *App) Controls() *session.Controls {
	return a.controls
}

// Session returns the annotation session.
func (a *App) Session() *session.Session {
	return a.session
}

// Receiver returns the inbound event dispatcher.
func (a *App) Receiver() *drawproto.Receiver {
	return a.receiver
}

// Tuning returns the tuning the session currently runs with.
func (a *App) Tuning() config.Tuning {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tuning
}

// Status returns a snapshot for the host UI.
func (a *App) Status() Status {
	a.mu.RLock()
	running := a.stopCh != nil
	idle := a.loop.idle
	link := "none"
	if a.channel != nil {
		link = a.channel.State().String()
	}
	a.mu.RUnlock()

	sent, dropped := a.sender.Stats()
	received, _ := a.receiver.Stats()

	a.frameMu.RLock()
	frames := a.frameSeq
	a.frameMu.RUnlock()

	return Status{
		Session:  a.session.Status(),
		Running:  running,
		Idle:     idle,
		Link:     link,
		Sent:     sent,
		Dropped:  dropped,
		Received: received,
		Frames:   frames,
	}
}

// Frame returns a copy of the latest composited frame and its sequence
// number. ok is false before the first tick. The caller closes the Mat.
func (a *App) Frame() (frame gocv.Mat, seq uint64, ok bool) {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()

	if a.frameClosed || a.frameSeq == 0 || a.frame.Empty() {
		return gocv.NewMat(), 0, false
	}
	return a.frame.Clone(), a.frameSeq, true
}
