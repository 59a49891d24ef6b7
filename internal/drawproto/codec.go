package drawproto

import (
	"errors"
	"fmt"
	"math"

	"github.com/bytedance/sonic"

	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/ink"
)

// ErrMalformed is returned for events that fail to parse or validate.
var ErrMalformed = errors.New("malformed draw event")

// precision is the number of decimals kept for normalized coordinates.
const precision = 1e5

// wireEvent is the JSON form. Keys are single letters to keep messages small:
//
//	{"t":"draw","p":[[0.1,0.2],[0.15,0.22]],"c":"#22d3ee","w":4}
//	{"t":"erase","x":0.5,"y":0.5,"w":8}
//	{"t":"up"}
//	{"t":"clear"}
type wireEvent struct {
	T string       `json:"t"`
	P [][2]float64 `json:"p,omitempty"`
	C string       `json:"c,omitempty"`
	W float64      `json:"w,omitempty"`
	X *float64     `json:"x,omitempty"`
	Y *float64     `json:"y,omitempty"`
}

// Encode validates ev and returns its wire form.
func Encode(ev Event) ([]byte, error) {
	if err := Validate(ev); err != nil {
		return nil, err
	}

	w := wireEvent{T: string(ev.Kind)}
	switch ev.Kind {
	case KindDraw:
		w.P = make([][2]float64, len(ev.Points))
		for i, p := range ev.Points {
			w.P[i] = [2]float64{round(p.X), round(p.Y)}
		}
		w.C = ev.Color
		w.W = ev.Width
	case KindErase:
		x, y := round(ev.X), round(ev.Y)
		w.X, w.Y = &x, &y
		w.W = ev.Width
	}

	data, err := sonic.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	return data, nil
}

// Decode parses and validates a wire message.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := sonic.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ev := Event{Kind: Kind(w.T)}
	switch ev.Kind {
	case KindDraw:
		ev.Points = make([]geom.Point, len(w.P))
		for i, p := range w.P {
			ev.Points[i] = geom.Pt(p[0], p[1])
		}
		ev.Color = w.C
		ev.Width = w.W
	case KindErase:
		if w.X == nil || w.Y == nil {
			return Event{}, fmt.Errorf("%w: erase without position", ErrMalformed)
		}
		ev.X, ev.Y = *w.X, *w.Y
		ev.Width = w.W
	}

	if err := Validate(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks that ev is well formed. Widths must be toolbar widths and
// coordinates must lie within [MinCoord, MaxCoord].
func Validate(ev Event) error {
	switch ev.Kind {
	case KindUp, KindClear:
		return nil
	case KindDraw:
		if n := len(ev.Points); n < MinDrawPoints || n > MaxDrawPoints {
			return fmt.Errorf("%w: draw with %d points", ErrMalformed, n)
		}
		for _, p := range ev.Points {
			if !inRange(p.X) || !inRange(p.Y) {
				return fmt.Errorf("%w: point (%v, %v) out of range", ErrMalformed, p.X, p.Y)
			}
		}
		if _, err := ink.ParseHex(ev.Color); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return validWidth(ev.Width)
	case KindErase:
		if !inRange(ev.X) || !inRange(ev.Y) {
			return fmt.Errorf("%w: position (%v, %v) out of range", ErrMalformed, ev.X, ev.Y)
		}
		return validWidth(ev.Width)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, ev.Kind)
	}
}

func validWidth(w float64) error {
	if _, ok := ink.WidthForPixels(w); !ok {
		return fmt.Errorf("%w: width %v", ErrMalformed, w)
	}
	return nil
}

func round(v float64) float64 {
	return math.Round(v*precision) / precision
}

// inRange is false for NaN.
func inRange(v float64) bool {
	return v >= MinCoord && v <= MaxCoord
}
