package session

import "sync"

// ControlState is a snapshot of the host's toggles.
type ControlState struct {
	Camera      bool `json:"camera"`
	GestureMode bool `json:"gesture_mode"`
	DrawMode    bool `json:"draw_mode"`
}

// Controls are the toggles the host UI flips while a session runs. They
// may be changed from any goroutine; the session reads them once per tick.
type Controls struct {
	mu    sync.Mutex
	state ControlState
	clear bool
}

// NewControls returns controls with the camera and drawing enabled and
// gesture mode off.
func NewControls() *Controls {
	return &Controls{state: ControlState{Camera: true, DrawMode: true}}
}

// SetCamera turns the camera on or off.
func (c *Controls) SetCamera(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Camera = on
}

// SetGestureMode records whether gesture detection is requested.
func (c *Controls) SetGestureMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.GestureMode = on
}

// SetDrawMode turns drawing on or off.
func (c *Controls) SetDrawMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.DrawMode = on
}

// RequestClear asks for the local drawing to be wiped on the next tick.
func (c *Controls) RequestClear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear = true
}

// State returns the current toggles.
func (c *Controls) State() ControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controls) takeClear() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.clear
	c.clear = false
	return pending
}
