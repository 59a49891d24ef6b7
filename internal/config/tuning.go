package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ayusman/kalam/internal/gesture"
	"github.com/ayusman/kalam/internal/toolbar"
)

// Tuning holds every threshold of the gesture pipeline. Values can be
// overridden per installation through the settings store.
type Tuning struct {
	PinchThreshold     float64       `json:"pinch_threshold"`
	TwoFingerThreshold float64       `json:"two_finger_threshold"`
	GraceMax           int           `json:"grace_max"`
	HoverTicks         int           `json:"hover_ticks"`
	CollapseTicks      int           `json:"collapse_ticks"`
	SettleDelay        time.Duration `json:"settle_delay"`
	HitTolerance       float64       `json:"hit_tolerance"`
	SmoothingAlpha     float64       `json:"smoothing_alpha"`
	LostHandTicks      int           `json:"lost_hand_ticks"` // 0 keeps stroke state while hands are lost
	TickRate           int           `json:"tick_rate"`
	ShowLandmarks      bool          `json:"show_landmarks"`
}

// DefaultTuning returns the tuned defaults.
func DefaultTuning() Tuning {
	th := gesture.DefaultThresholds()
	tm := toolbar.DefaultTiming()
	return Tuning{
		PinchThreshold:     th.Pinch,
		TwoFingerThreshold: th.TwoFinger,
		GraceMax:           th.GraceMax,
		HoverTicks:         tm.HoverTicks,
		CollapseTicks:      tm.CollapseTicks,
		SettleDelay:        tm.SettleDelay,
		HitTolerance:       toolbar.DefaultLayout().Tolerance,
		SmoothingAlpha:     0.35,
		LostHandTicks:      30,
		TickRate:           60,
	}
}

// Thresholds returns the classifier settings.
func (t Tuning) Thresholds() gesture.Thresholds {
	return gesture.Thresholds{
		Pinch:     t.PinchThreshold,
		TwoFinger: t.TwoFingerThreshold,
		GraceMax:  t.GraceMax,
	}
}

// Timing returns the menu debounce settings.
func (t Tuning) Timing() toolbar.Timing {
	return toolbar.Timing{
		HoverTicks:    t.HoverTicks,
		CollapseTicks: t.CollapseTicks,
		SettleDelay:   t.SettleDelay,
	}
}

// Layout returns the toolbar layout with the tuned hit tolerance.
func (t Tuning) Layout() toolbar.Layout {
	l := toolbar.DefaultLayout()
	l.Tolerance = t.HitTolerance
	return l
}

// TickInterval returns the period of the active tick loop.
func (t Tuning) TickInterval() time.Duration {
	if t.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(t.TickRate)
}

type setting struct {
	apply func(t *Tuning, v string) error
	get   func(t Tuning) string
}

func floatSetting(field func(*Tuning) *float64, min, max float64) setting {
	return setting{
		apply: func(t *Tuning, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			if f < min || f > max {
				return fmt.Errorf("%v out of range [%v, %v]", f, min, max)
			}
			*field(t) = f
			return nil
		},
		get: func(t Tuning) string {
			return strconv.FormatFloat(*field(&t), 'f', -1, 64)
		},
	}
}

func intSetting(field func(*Tuning) *int, min, max int) setting {
	return setting{
		apply: func(t *Tuning, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			if n < min || n > max {
				return fmt.Errorf("%d out of range [%d, %d]", n, min, max)
			}
			*field(t) = n
			return nil
		},
		get: func(t Tuning) string {
			return strconv.Itoa(*field(&t))
		},
	}
}

var settings = map[string]setting{
	"pinch_threshold":      floatSetting(func(t *Tuning) *float64 { return &t.PinchThreshold }, 0.001, 1),
	"two_finger_threshold": floatSetting(func(t *Tuning) *float64 { return &t.TwoFingerThreshold }, 0.001, 1),
	"hit_tolerance":        floatSetting(func(t *Tuning) *float64 { return &t.HitTolerance }, 0, 200),
	"smoothing_alpha":      floatSetting(func(t *Tuning) *float64 { return &t.SmoothingAlpha }, 0.01, 1),
	"grace_max":            intSetting(func(t *Tuning) *int { return &t.GraceMax }, 0, 120),
	"hover_ticks":          intSetting(func(t *Tuning) *int { return &t.HoverTicks }, 0, 600),
	"collapse_ticks":       intSetting(func(t *Tuning) *int { return &t.CollapseTicks }, 0, 600),
	"lost_hand_ticks":      intSetting(func(t *Tuning) *int { return &t.LostHandTicks }, 0, 3600),
	"tick_rate":            intSetting(func(t *Tuning) *int { return &t.TickRate }, 1, 240),
	"settle_delay": {
		apply: func(t *Tuning, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			if d < 0 {
				return fmt.Errorf("negative duration %s", d)
			}
			t.SettleDelay = d
			return nil
		},
		get: func(t Tuning) string { return t.SettleDelay.String() },
	},
	"show_landmarks": {
		apply: func(t *Tuning, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			t.ShowLandmarks = b
			return nil
		},
		get: func(t Tuning) string { return strconv.FormatBool(t.ShowLandmarks) },
	},
}

// SettingKeys returns the names accepted by ApplySettings, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSetting reports whether key names a tuning value.
func IsSetting(key string) bool {
	_, ok := settings[key]
	return ok
}

// ValidateSetting checks a single value without applying it.
func ValidateSetting(key, value string) error {
	s, ok := settings[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	t := DefaultTuning()
	if err := s.apply(&t, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// ApplySettings returns t with overrides applied. Unknown keys are ignored;
// the first unparsable value aborts with an error naming its key.
func (t Tuning) ApplySettings(values map[string]string) (Tuning, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := t
	for _, k := range keys {
		s, ok := settings[k]
		if !ok {
			continue
		}
		if err := s.apply(&out, values[k]); err != nil {
			return t, fmt.Errorf("setting %s: %w", k, err)
		}
	}
	return out, nil
}

// Settings returns t as a key/value map in the ApplySettings format.
func (t Tuning) Settings() map[string]string {
	out := make(map[string]string, len(settings))
	for k, s := range settings {
		out[k] = s.get(t)
	}
	return out
}
