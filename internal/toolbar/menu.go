package toolbar

import (
	"time"

	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/ink"
)

// MenuState is the visible state of the toolbar.
type MenuState int

const (
	Collapsed MenuState = iota
	Expanded
	ColorsSubmenu
	WidthsSubmenu
)

func (s MenuState) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Expanded:
		return "expanded"
	case ColorsSubmenu:
		return "colors"
	case WidthsSubmenu:
		return "widths"
	default:
		return "unknown"
	}
}

// Timing holds the debounce settings of the menu.
type Timing struct {
	HoverTicks    int           // ticks a target must be held before it activates
	CollapseTicks int           // ticks away from every target before the menu closes
	SettleDelay   time.Duration // pause after a sub-item commit before closing
}

// DefaultTiming returns the tuned defaults for a 60 tick/s loop.
func DefaultTiming() Timing {
	return Timing{
		HoverTicks:    6,
		CollapseTicks: 15,
		SettleDelay:   300 * time.Millisecond,
	}
}

type targetKind int

const (
	targetNone targetKind = iota
	targetButton
	targetRow
	targetSubItem
)

type target struct {
	kind  targetKind
	row   Row
	index int
}

// Menu is the toolbar state machine. It is fed the two-finger cursor once
// per tick through Hover and advanced with Tick.
type Menu struct {
	layout Layout
	timing Timing

	state   MenuState
	hovered target
	hover   int
	outside int

	settling bool
	settleAt time.Time
}

// NewMenu creates a collapsed menu.
func NewMenu(layout Layout, timing Timing) *Menu {
	return &Menu{layout: layout, timing: timing}
}

// Layout returns the menu geometry.
func (m *Menu) Layout() Layout {
	return m.layout
}

// SetTiming replaces the debounce settings.
func (m *Menu) SetTiming(t Timing) {
	m.timing = t
}

// State returns the current menu state.
func (m *Menu) State() MenuState {
	return m.state
}

// HoverTicks returns the hover counter for the current target.
func (m *Menu) HoverTicks() int {
	return m.hover
}

// Settling reports whether a commit is waiting to collapse the menu.
func (m *Menu) Settling() bool {
	return m.settling
}

// Hover feeds one tick of cursor position and returns the tool, updated if
// a selection was confirmed. Input is ignored while a commit settles.
func (m *Menu) Hover(pos geom.Point, tool ink.Tool, now time.Time) ink.Tool {
	m.Tick(now)
	if m.settling {
		return tool
	}

	t := m.targetAt(pos)
	if t != m.hovered {
		m.hovered = t
		m.hover = 0
	}

	if m.state == Collapsed {
		if t.kind == targetButton {
			m.hover++
			if m.hover > m.timing.HoverTicks {
				m.setState(Expanded)
			}
		}
		return tool
	}

	if t.kind == targetNone {
		m.outside++
		if m.outside > m.timing.CollapseTicks {
			m.setState(Collapsed)
		}
		return tool
	}
	m.outside = 0

	if t.kind == targetButton {
		return tool
	}

	m.hover++
	if m.hover <= m.timing.HoverTicks {
		return tool
	}

	switch t.kind {
	case targetRow:
		switch t.row {
		case RowColors:
			m.setState(ColorsSubmenu)
		case RowWidths:
			m.setState(WidthsSubmenu)
		case RowEraser:
			tool.Eraser = true
			m.setState(Expanded)
		}
	case targetSubItem:
		switch t.row {
		case RowColors:
			tool.Color = ink.Colors()[t.index]
			tool.Eraser = false
		case RowWidths:
			tool.Width = ink.Widths()[t.index]
		}
		m.hover = 0
		m.settling = true
		m.settleAt = now.Add(m.timing.SettleDelay)
	}
	return tool
}

// Release ends a run of hover input, as when the two-finger gesture stops.
// Counters restart on the next Hover.
func (m *Menu) Release() {
	m.hovered = target{}
	m.hover = 0
	m.outside = 0
}

// Tick completes a pending settle once its delay has passed.
func (m *Menu) Tick(now time.Time) {
	if m.settling && !now.Before(m.settleAt) {
		m.settling = false
		m.setState(Collapsed)
	}
}

// Reset returns the menu to its initial collapsed state.
func (m *Menu) Reset() {
	m.settling = false
	m.setState(Collapsed)
}

func (m *Menu) setState(s MenuState) {
	m.state = s
	m.hovered = target{}
	m.hover = 0
	m.outside = 0
}

func (m *Menu) targetAt(p geom.Point) target {
	switch m.state {
	case Collapsed:
		if m.layout.HitButton(p) {
			return target{kind: targetButton}
		}
		return target{}
	case ColorsSubmenu:
		if i, ok := m.layout.HitSubItem(RowColors, p); ok {
			return target{kind: targetSubItem, row: RowColors, index: i}
		}
	case WidthsSubmenu:
		if i, ok := m.layout.HitSubItem(RowWidths, p); ok {
			return target{kind: targetSubItem, row: RowWidths, index: i}
		}
	}

	if r, ok := m.layout.HitRow(p); ok {
		return target{kind: targetRow, row: r}
	}
	if m.layout.HitButton(p) {
		return target{kind: targetButton}
	}
	return target{}
}
