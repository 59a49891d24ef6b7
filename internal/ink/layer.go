package ink

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalam/internal/geom"
)

// ErrSizeMismatch is returned when compositing onto a frame of another size.
var ErrSizeMismatch = errors.New("layer and frame sizes differ")

const (
	// glowScale widens the blurred pass relative to the line width.
	glowScale = 2.0
	// coreOpacity is the opacity of the sharp pass drawn over the glow.
	coreOpacity = 0.7
)

var transparent = color.RGBA{}

// Layer is a BGRA raster surface holding ink. Transparent pixels let the
// video show through when the layer is composited.
//
// A Layer may be written from one goroutine while another composites it.
type Layer struct {
	mu   sync.Mutex
	mat  gocv.Mat
	size geom.Size
}

// NewLayer allocates a transparent layer of the given size.
func NewLayer(size geom.Size) (*Layer, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("new layer %dx%d: %w", size.W, size.H, geom.ErrInvalidSize)
	}
	return &Layer{
		mat:  newSurface(size),
		size: size,
	}, nil
}

func newSurface(size geom.Size) gocv.Mat {
	m := gocv.NewMatWithSize(size.H, size.W, gocv.MatTypeCV8UC4)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return m
}

// Size returns the layer dimensions.
func (l *Layer) Size() geom.Size {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Resize changes the layer dimensions, scaling the existing ink into the
// new surface. Resizing to the current size is a no-op.
func (l *Layer) Resize(size geom.Size) error {
	if !size.Valid() {
		return fmt.Errorf("resize layer to %dx%d: %w", size.W, size.H, geom.ErrInvalidSize)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if size == l.size {
		return nil
	}

	tmp := l.mat.Clone()
	defer tmp.Close()

	next := newSurface(size)
	if err := gocv.Resize(tmp, &next, image.Pt(size.W, size.H), 0, 0, gocv.InterpolationLinear); err != nil {
		next.Close()
		return fmt.Errorf("resize layer to %dx%d: %w", size.W, size.H, err)
	}

	l.mat.Close()
	l.mat = next
	l.size = size
	return nil
}

// Clear makes every pixel transparent.
func (l *Layer) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// Stroke paints a glowing line through points. The points are fitted with
// Flatten, so two points give a straight segment. Fewer than two points
// paint nothing.
func (l *Layer) Stroke(points []geom.Point, c color.RGBA, width float64) error {
	if len(points) < 2 || width <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.strokeLocked(points, c, width)
}

// StrokeNormalized is Stroke for points in [0,1] of the layer. The points
// are scaled to the size the layer has while it draws them.
func (l *Layer) StrokeNormalized(points []geom.Point, c color.RGBA, width float64) error {
	if len(points) < 2 || width <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pts := make([]geom.Point, len(points))
	for i, p := range points {
		pts[i] = geom.Denormalize(p, l.size)
	}
	return l.strokeLocked(pts, c, width)
}

func (l *Layer) strokeLocked(points []geom.Point, c color.RGBA, width float64) error {
	path := Flatten(points)

	glow := thickness(width * glowScale)
	blur := glow | 1
	bounds := pathBounds(path, glow+blur).Intersect(image.Rect(0, 0, l.size.W, l.size.H))
	if bounds.Empty() {
		return nil
	}

	scratch := gocv.NewMatWithSize(bounds.Dy(), bounds.Dx(), gocv.MatTypeCV8UC4)
	defer scratch.Close()
	origin := bounds.Min

	// Glow: wide pass with a blurred alpha edge at full opacity.
	scratch.SetTo(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0))
	if err := drawPath(&scratch, path, origin, opaque(c), glow); err != nil {
		return err
	}
	if err := gocv.GaussianBlur(scratch, &scratch, image.Pt(blur, blur), 0, 0, gocv.BorderDefault); err != nil {
		return fmt.Errorf("blur glow: %w", err)
	}
	l.blend(scratch, origin, 1)

	// Core: the line itself at reduced opacity.
	scratch.SetTo(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0))
	if err := drawPath(&scratch, path, origin, opaque(c), thickness(width)); err != nil {
		return err
	}
	l.blend(scratch, origin, coreOpacity)
	return nil
}

// Erase punches a fully transparent disc into the layer.
func (l *Layer) Erase(center geom.Point, radius float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eraseLocked(center, radius)
}

// EraseNormalized is Erase with center in [0,1] of the layer.
func (l *Layer) EraseNormalized(center geom.Point, radius float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eraseLocked(geom.Denormalize(center, l.size), radius)
}

func (l *Layer) eraseLocked(center geom.Point, radius float64) error {
	r := int(math.Round(radius))
	if r <= 0 {
		return nil
	}
	if err := gocv.Circle(&l.mat, center.ImagePoint(), r, transparent, -1); err != nil {
		return fmt.Errorf("erase at %v: %w", center, err)
	}
	return nil
}

// At returns the pixel at (x, y) as straight-alpha RGBA. Points outside the
// layer are transparent.
func (l *Layer) At(x, y int) color.RGBA {
	l.mu.Lock()
	defer l.mu.Unlock()

	if x < 0 || y < 0 || x >= l.size.W || y >= l.size.H {
		return transparent
	}
	px, err := l.mat.DataPtrUint8()
	if err != nil {
		return transparent
	}
	i := (y*l.size.W + x) * 4
	return color.RGBA{B: px[i], G: px[i+1], R: px[i+2], A: px[i+3]}
}

// Empty reports whether the layer has no visible ink.
func (l *Layer) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	px, err := l.mat.DataPtrUint8()
	if err != nil {
		return true
	}
	for i := 3; i < len(px); i += 4 {
		if px[i] != 0 {
			return false
		}
	}
	return true
}

// CompositeOnto draws the layer over a BGR frame of the same size.
func (l *Layer) CompositeOnto(frame *gocv.Mat) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if frame.Cols() != l.size.W || frame.Rows() != l.size.H {
		return fmt.Errorf("composite %dx%d onto %dx%d: %w",
			l.size.W, l.size.H, frame.Cols(), frame.Rows(), ErrSizeMismatch)
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("composite onto mat type %v: unsupported", frame.Type())
	}

	src, err := l.mat.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("read layer: %w", err)
	}
	dst, err := frame.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}

	n := l.size.W * l.size.H
	for p := 0; p < n; p++ {
		a := uint32(src[p*4+3])
		if a == 0 {
			continue
		}
		s, d := p*4, p*3
		inv := 255 - a
		dst[d] = uint8((uint32(src[s])*a + uint32(dst[d])*inv) / 255)
		dst[d+1] = uint8((uint32(src[s+1])*a + uint32(dst[d+1])*inv) / 255)
		dst[d+2] = uint8((uint32(src[s+2])*a + uint32(dst[d+2])*inv) / 255)
	}
	return nil
}

// Close releases the surface.
func (l *Layer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mat.Close()
}

// blend composites scratch over the layer at origin using source-over with
// straight alpha. Caller holds l.mu.
func (l *Layer) blend(scratch gocv.Mat, origin image.Point, opacity float64) {
	src, err := scratch.DataPtrUint8()
	if err != nil {
		return
	}
	dst, err := l.mat.DataPtrUint8()
	if err != nil {
		return
	}

	w, h := scratch.Cols(), scratch.Rows()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := (y*w + x) * 4
			sa := float64(src[s+3]) / 255 * opacity
			if sa == 0 {
				continue
			}
			d := ((origin.Y+y)*l.size.W + origin.X + x) * 4
			da := float64(dst[d+3]) / 255
			oa := sa + da*(1-sa)
			for k := 0; k < 3; k++ {
				v := (float64(src[s+k])*sa + float64(dst[d+k])*da*(1-sa)) / oa
				dst[d+k] = uint8(math.Round(v))
			}
			dst[d+3] = uint8(math.Round(oa * 255))
		}
	}
}

func drawPath(m *gocv.Mat, path []geom.Point, origin image.Point, c color.RGBA, t int) error {
	for i := 1; i < len(path); i++ {
		a := path[i-1].ImagePoint().Sub(origin)
		b := path[i].ImagePoint().Sub(origin)
		if err := gocv.Line(m, a, b, c, t); err != nil {
			return fmt.Errorf("draw path: %w", err)
		}
	}
	return nil
}

func pathBounds(path []geom.Point, pad int) image.Rectangle {
	var r image.Rectangle
	for _, p := range path {
		pt := p.ImagePoint()
		r = r.Union(image.Rectangle{Min: pt, Max: pt.Add(image.Pt(1, 1))})
	}
	return r.Inset(-pad)
}

func thickness(width float64) int {
	t := int(math.Round(width))
	if t < 1 {
		return 1
	}
	return t
}

func opaque(c color.RGBA) color.RGBA {
	c.A = 0xff
	return c
}
