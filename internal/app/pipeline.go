package app

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalam/internal/detector"
)

// runPipeline is the main loop. It ticks at the tuned rate while the scene
// moves and falls back to IdleFPS after IdleTimeout without motion; idle
// ticks still composite video and ink but skip hand detection.
func (a *App) runPipeline(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	out := gocv.NewMat()
	defer out.Close()

	interval := a.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			a.processFrame(now, &out)

			if next := a.interval(); next != interval {
				interval = next
				ticker.Reset(interval)
				a.camera.SetFPS(int(time.Second / interval))
			}
		}
	}
}

// interval returns the tick period for the current idle state.
func (a *App) interval() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.loop.idle {
		return time.Second / IdleFPS
	}
	return a.tuning.TickInterval()
}

// processFrame runs one tick: read, motion check, detect, session tick,
// publish.
func (a *App) processFrame(now time.Time, out *gocv.Mat) {
	a.ensureCanvas(out)
	ctl := a.controls.State()

	var frame *gocv.Mat
	if ctl.Camera {
		f, err := a.camera.ReadFrame()
		if err != nil {
			logger().Debug().Err(err).Msg("no camera frame")
		} else {
			frame = f
			defer frame.Close()
		}
	}

	idle := a.updateMotion(frame, now)

	var hands []detector.HandLandmarks
	if frame != nil && !idle && a.session.Active() {
		hands = a.detect(frame, now)
	}

	if err := a.session.Tick(frame, hands, now, out); err != nil {
		logger().Warn().Err(err).Msg("session tick failed")
		return
	}
	a.publish(out)
}

// updateMotion feeds the motion detector and returns whether the loop is
// idle after this frame.
func (a *App) updateMotion(frame *gocv.Mat, now time.Time) bool {
	moved := false
	if frame != nil {
		moved, _ = a.motion.Detect(frame)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case moved:
		a.loop.lastMotion = now
		if a.loop.idle {
			a.loop.idle = false
			logger().Debug().Msg("switched to active mode")
		}
	case !a.loop.idle && now.Sub(a.loop.lastMotion) > IdleTimeout:
		a.loop.idle = true
		logger().Debug().Msg("switched to idle mode")
	}
	return a.loop.idle
}

func (a *App) detect(frame *gocv.Mat, now time.Time) []detector.HandLandmarks {
	a.mu.RLock()
	d := a.detector
	started := a.started
	a.mu.RUnlock()
	if d == nil {
		return nil
	}

	ts := now.Sub(started)
	if ts < 0 {
		ts = 0
	}
	hands, err := d.Detect(frame, ts)
	if err != nil {
		logger().Debug().Err(err).Msg("hand detection failed")
		return nil
	}
	return hands
}

// ensureCanvas reallocates out when the canvas size changed.
func (a *App) ensureCanvas(out *gocv.Mat) {
	size := a.Canvas()
	if out.Cols() == size.W && out.Rows() == size.H && out.Type() == gocv.MatTypeCV8UC3 {
		return
	}
	out.Close()
	*out = gocv.NewMatWithSize(size.H, size.W, gocv.MatTypeCV8UC3)
}

func (a *App) publish(out *gocv.Mat) {
	a.frameMu.Lock()
	defer a.frameMu.Unlock()
	if a.frameClosed {
		return
	}
	out.CopyTo(&a.frame)
	a.frameSeq++
}
