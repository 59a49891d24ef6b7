package detector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// serviceScript is the Python landmark service shipped under scripts/.
const serviceScript = "landmark_service.py"

// headerSize is the request header: frame length (uint32) followed by the
// frame timestamp in microseconds (uint64), both big-endian.
const headerSize = 12

func logger() *zerolog.Logger {
	l := log.With().Str("module", "detector").Logger()
	return &l
}

// MediaPipeDetector runs the MediaPipe hand landmarker in a Python
// subprocess. Each frame goes to the service's stdin as a header plus the
// JPEG bytes; the service answers with one JSON line per frame.
//
// The process is started on the first Detect and stopped again after
// Config.IdleShutdown without frames.
type MediaPipeDetector struct {
	config Config
	script string
	python string

	mu        sync.Mutex
	svc       *service
	idleTimer *time.Timer
}

// service is a running landmark process.
type service struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// NewMediaPipeDetector locates the landmark service. It fails with
// ErrUnavailable when the script cannot be found; the process itself is
// started lazily.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := firstExisting(scriptCandidates())
	if script == "" {
		return nil, fmt.Errorf("%s not found: %w", serviceScript, ErrUnavailable)
	}

	def := DefaultConfig()
	if config.MaxHands <= 0 {
		config.MaxHands = def.MaxHands
	}
	if config.IdleShutdown <= 0 {
		config.IdleShutdown = def.IdleShutdown
	}

	python := firstExisting(venvCandidates())
	if python == "" {
		python = "python3"
	}

	return &MediaPipeDetector{config: config, script: script, python: python}, nil
}

// Detect sends frame to the service and returns the hands it found, at most
// MaxHands and each scoring at least MinConfidence.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat, ts time.Duration) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.svc == nil {
		svc, err := d.start()
		if err != nil {
			return nil, err
		}
		d.svc = svc
	}

	if err := writeRequest(d.svc.stdin, buf.GetBytes(), ts); err != nil {
		d.stopLocked()
		return nil, err
	}
	line, err := d.svc.stdout.ReadBytes('\n')
	if err != nil {
		d.stopLocked()
		return nil, fmt.Errorf("read response: %w", err)
	}
	d.armIdleTimer()

	return parseResponse(line, d.config)
}

// Close stops the service if it is running.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *MediaPipeDetector) start() (*service, error) {
	cmd := exec.Command(d.python, d.script,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection", strconv.FormatFloat(d.config.MinConfidence, 'f', 2, 64),
		"--min-tracking", strconv.FormatFloat(d.config.MinTrackingConf, 'f', 2, 64),
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start landmark service: %v: %w", err, ErrUnavailable)
	}

	logger().Info().Str("script", d.script).Int("pid", cmd.Process.Pid).Msg("landmark service started")
	return &service{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

// stopLocked ends the service. Caller holds d.mu.
func (d *MediaPipeDetector) stopLocked() error {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if d.svc == nil {
		return nil
	}

	svc := d.svc
	d.svc = nil
	svc.stdin.Close()
	err := svc.cmd.Wait()
	logger().Info().Msg("landmark service stopped")
	return err
}

func (d *MediaPipeDetector) armIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Reset(d.config.IdleShutdown)
		return
	}
	d.idleTimer = time.AfterFunc(d.config.IdleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.idleTimer = nil
		if err := d.stopLocked(); err != nil {
			logger().Debug().Err(err).Msg("idle shutdown")
		}
	})
}

// writeRequest frames one JPEG for the service.
func writeRequest(w io.Writer, jpeg []byte, ts time.Duration) error {
	if ts < 0 {
		ts = 0
	}
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(jpeg)))
	binary.BigEndian.PutUint64(header[4:], uint64(ts.Microseconds()))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(jpeg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

type serviceResponse struct {
	Hands []jsonHand `json:"hands"`
	Error string     `json:"error,omitempty"`
}

// parseResponse decodes one service line and applies the hand limits.
func parseResponse(line []byte, cfg Config) ([]HandLandmarks, error) {
	var resp serviceResponse
	if err := sonic.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("landmark service: %s", resp.Error)
	}

	hands := make([]HandLandmarks, 0, len(resp.Hands))
	for _, h := range resp.Hands {
		if cfg.MaxHands > 0 && len(hands) == cfg.MaxHands {
			break
		}
		if h.Score < cfg.MinConfidence {
			continue
		}
		hands = append(hands, h.toHandLandmarks())
	}
	return hands, nil
}

func scriptCandidates() []string {
	paths := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
	}
	if dir := execDir(); dir != "" {
		paths = append(paths, filepath.Join(dir, "scripts", serviceScript))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".kalam", "scripts", serviceScript))
	}
	return paths
}

func venvCandidates() []string {
	rel := filepath.Join("venv", "bin", "python")
	paths := []string{rel, filepath.Join("..", rel), filepath.Join("..", "..", rel)}
	if dir := execDir(); dir != "" {
		paths = append(paths, filepath.Join(dir, rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".kalam", rel))
	}
	return paths
}

func execDir() string {
	p, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(p)
}

// firstExisting returns the absolute form of the first path that exists.
func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

// jsonHand is a hand as reported by the service.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{Handedness: h.Handedness, Score: h.Score}
	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		p := h.Points[i]
		lm.Points[i] = Point3D{X: p.X, Y: p.Y, Z: p.Z}
	}
	return lm
}
