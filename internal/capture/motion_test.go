package capture

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalam/internal/geom"
)

func solid(t *testing.T, size geom.Size, level float64) *gocv.Mat {
	t.Helper()
	f := SolidFrames(1, size, level)[0]
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMotionDetector_Detect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	vga := geom.Size{W: 640, H: 480}

	tests := []struct {
		name       string
		threshold  float64
		first      float64
		second     float64
		wantMotion bool
		minChanged float64
	}{
		{name: "still scene", threshold: 1, first: 40, second: 40},
		{name: "lights on", threshold: 1, first: 0, second: 255, wantMotion: true, minChanged: 50},
		{name: "small drift under pixel threshold", threshold: 1, first: 100, second: 110},
		{name: "full change under a higher bar", threshold: 100, first: 0, second: 255, minChanged: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := NewMotionDetector(tt.threshold)
			defer md.Close()

			if moved, changed := md.Detect(solid(t, vga, tt.first)); moved || changed != 0 {
				t.Fatalf("baseline frame = %v, %f; want no motion", moved, changed)
			}

			moved, changed := md.Detect(solid(t, vga, tt.second))
			if moved != tt.wantMotion {
				t.Errorf("motion = %v (%.1f%% changed), want %v", moved, changed, tt.wantMotion)
			}
			if changed < tt.minChanged {
				t.Errorf("changed = %.1f%%, want at least %.1f%%", changed, tt.minChanged)
			}
		})
	}
}

func TestMotionDetector_NilFrame(t *testing.T) {
	md := NewMotionDetector(1)
	defer md.Close()

	if moved, changed := md.Detect(nil); moved || changed != 0 {
		t.Errorf("Detect(nil) = %v, %f", moved, changed)
	}
	if md.initialized {
		t.Error("a nil frame must not set the baseline")
	}
}

func TestMotionDetector_HDFrameDownscaled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1)
	defer md.Close()

	black := gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC4)
	defer black.Close()
	black.SetTo(gocv.NewScalar(0, 0, 0, 255))
	white := gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC4)
	defer white.Close()
	white.SetTo(gocv.NewScalar(255, 255, 255, 255))

	md.Detect(&black)
	if md.prevGray.Cols() != analysisWidth || md.prevGray.Rows() != 180 {
		t.Errorf("baseline = %dx%d, want %dx180", md.prevGray.Cols(), md.prevGray.Rows(), analysisWidth)
	}

	if moved, changed := md.Detect(&white); !moved || changed < 50 {
		t.Errorf("Detect() = %v, %f; want motion on a BGRA black to white change", moved, changed)
	}
}

func TestMotionDetector_Rebaseline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	t.Run("resolution change", func(t *testing.T) {
		md := NewMotionDetector(1)
		defer md.Close()

		md.Detect(solid(t, geom.Size{W: 160, H: 120}, 0))
		if moved, changed := md.Detect(solid(t, geom.Size{W: 160, H: 90}, 255)); moved || changed != 0 {
			t.Errorf("resolution change should reset the baseline, got %v, %f", moved, changed)
		}
	})

	t.Run("reset", func(t *testing.T) {
		md := NewMotionDetector(1)
		defer md.Close()

		md.Detect(solid(t, geom.Size{W: 160, H: 120}, 0))
		md.Reset()
		if md.initialized || !md.prevGray.Empty() {
			t.Fatal("Reset should drop the baseline")
		}
		if moved, _ := md.Detect(solid(t, geom.Size{W: 160, H: 120}, 255)); moved {
			t.Error("first frame after Reset should only set the baseline")
		}
	})

	t.Run("close then reuse", func(t *testing.T) {
		md := NewMotionDetector(1)
		md.Detect(solid(t, geom.Size{W: 160, H: 120}, 0))
		md.Close()
		md.Close()

		if moved, _ := md.Detect(solid(t, geom.Size{W: 160, H: 120}, 255)); moved {
			t.Error("first frame after Close should only set the baseline")
		}
		md.Close()
	})
}

func TestMotionDetector_SetThreshold(t *testing.T) {
	tests := []struct {
		set  float64
		want float64
	}{
		{set: 5, want: 5},
		{set: 0.5, want: 0.5},
		{set: 0, want: 1},
		{set: -1, want: 1},
	}

	for _, tt := range tests {
		md := NewMotionDetector(1)
		md.SetThreshold(tt.set)
		if md.threshold != tt.want {
			t.Errorf("SetThreshold(%v): threshold = %v, want %v", tt.set, md.threshold, tt.want)
		}
		md.Close()
	}
}
