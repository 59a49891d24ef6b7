// Package tray provides the system tray controls of the kalam host.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/kalam/internal/ink"
)

// Tray represents the system tray application.
type Tray struct {
	onGestureMode func(on bool) error
	onDrawMode    func(on bool)
	onClear       func()
	onSettings    func()
	onQuit        func()
	gestureMode   bool
	drawMode      bool
	tool          string
	mu            sync.RWMutex

	// Menu items stored for later updates
	menuGesture *systray.MenuItem
	menuDraw    *systray.MenuItem
	menuTool    *systray.MenuItem
}

// New creates a Tray with gesture mode off and drawing enabled.
func New() *Tray {
	return &Tray{
		drawMode: true,
		tool:     ink.DefaultTool().String(),
	}
}

// OnGestureMode sets the callback for the gesture mode toggle. A returned
// error leaves the toggle unchanged.
func (t *Tray) OnGestureMode(fn func(on bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onGestureMode = fn
}

// OnDrawMode sets the callback for the draw mode toggle.
func (t *Tray) OnDrawMode(fn func(on bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDrawMode = fn
}

// OnClear sets the callback for "Clear drawing".
func (t *Tray) OnClear(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClear = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Kalam")
	systray.SetTooltip("Kalam gesture annotation")

	t.mu.Lock()
	t.menuGesture = systray.AddMenuItemCheckbox("Gesture mode", "Draw with hand gestures", t.gestureMode)
	t.menuDraw = systray.AddMenuItemCheckbox("Draw mode", "Let pinches leave ink", t.drawMode)
	t.menuTool = systray.AddMenuItem(toolTitle(t.tool), "Current tool")
	t.menuTool.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuClear := systray.AddMenuItem("Clear drawing", "Erase local ink for everyone")
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Kalam")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuGesture.ClickedCh:
				t.handleGestureMode()
			case <-t.menuDraw.ClickedCh:
				t.handleDrawMode()
			case <-menuClear.ClickedCh:
				t.handleClear()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleGestureMode flips gesture mode, keeping the old state if the
// callback refuses.
func (t *Tray) handleGestureMode() {
	t.mu.Lock()
	next := !t.gestureMode
	callback := t.onGestureMode
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(next); err != nil {
			t.SetGestureMode(!next)
			return
		}
	}
	t.SetGestureMode(next)
}

func (t *Tray) handleDrawMode() {
	t.mu.Lock()
	t.drawMode = !t.drawMode
	on := t.drawMode
	setChecked(t.menuDraw, on)
	callback := t.onDrawMode
	t.mu.Unlock()

	if callback != nil {
		callback(on)
	}
}

func (t *Tray) handleClear() {
	t.mu.RLock()
	callback := t.onClear
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetGestureMode reflects gesture mode changed elsewhere, e.g. over the API.
func (t *Tray) SetGestureMode(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gestureMode = on
	setChecked(t.menuGesture, on)
}

// SetDrawMode reflects draw mode changed elsewhere.
func (t *Tray) SetDrawMode(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drawMode = on
	setChecked(t.menuDraw, on)
}

// SetTool updates the tool status line.
func (t *Tray) SetTool(tool ink.Tool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tool = tool.String()
	if t.menuTool != nil {
		t.menuTool.SetTitle(toolTitle(t.tool))
	}
}

// GestureMode returns the gesture toggle state.
func (t *Tray) GestureMode() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gestureMode
}

// DrawMode returns the draw toggle state.
func (t *Tray) DrawMode() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.drawMode
}

// Tool returns the tool status text.
func (t *Tray) Tool() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tool
}

func toolTitle(tool string) string {
	return "Tool: " + tool
}

func setChecked(item *systray.MenuItem, on bool) {
	if item == nil {
		return
	}
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}
}
