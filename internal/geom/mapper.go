package geom

import (
	"fmt"
	"image"
	"math"
)

// Crop is a rectangle in source (video) pixels.
type Crop struct {
	SX, SY float64
	SW, SH float64
}

// Rect returns the crop rounded to an integer rectangle clipped to src.
func (c Crop) Rect(src Size) image.Rectangle {
	r := image.Rect(
		int(math.Round(c.SX)),
		int(math.Round(c.SY)),
		int(math.Round(c.SX+c.SW)),
		int(math.Round(c.SY+c.SH)),
	)
	return r.Intersect(image.Rect(0, 0, src.W, src.H))
}

// CoverCrop computes the centered source rectangle that fills dst with no
// letterboxing. When the source is wider than the destination the source
// width is trimmed, otherwise the source height is trimmed.
func CoverCrop(src, dst Size) (Crop, error) {
	if !src.Valid() {
		return Crop{}, fmt.Errorf("source %dx%d: %w", src.W, src.H, ErrInvalidSize)
	}
	if !dst.Valid() {
		return Crop{}, fmt.Errorf("destination %dx%d: %w", dst.W, dst.H, ErrInvalidSize)
	}

	vw, vh := float64(src.W), float64(src.H)
	dstAspect := dst.Aspect()

	if src.Aspect() > dstAspect {
		sw := vh * dstAspect
		return Crop{SX: (vw - sw) / 2, SY: 0, SW: sw, SH: vh}, nil
	}

	sh := vw / dstAspect
	return Crop{SX: 0, SY: (vh - sh) / 2, SW: vw, SH: sh}, nil
}

// Mapper converts normalized source coordinates into destination canvas
// pixels through the cover crop. The crop is cached for the last
// source/destination pair and recomputed whenever either size changes.
type Mapper struct {
	// Mirror flips the destination horizontally, for hosts that draw the
	// canvas unmirrored while presenting a mirrored selfie view.
	Mirror bool

	src   Size
	dst   Size
	crop  Crop
	valid bool
}

// NewMapper creates a Mapper. Sizes are supplied per tick through Update.
func NewMapper(mirror bool) *Mapper {
	return &Mapper{Mirror: mirror}
}

// Update sets the current source and destination sizes. The crop is only
// recomputed when one of them differs from the previous call.
func (m *Mapper) Update(src, dst Size) error {
	if m.valid && src == m.src && dst == m.dst {
		return nil
	}

	crop, err := CoverCrop(src, dst)
	if err != nil {
		m.valid = false
		return err
	}

	m.src = src
	m.dst = dst
	m.crop = crop
	m.valid = true
	return nil
}

// Crop returns the active crop and whether one has been computed.
func (m *Mapper) Crop() (Crop, bool) {
	return m.crop, m.valid
}

// Destination returns the destination size of the active crop.
func (m *Mapper) Destination() Size {
	return m.dst
}

// Map converts a normalized source point into destination pixels.
// It returns the zero point if no crop is active.
func (m *Mapper) Map(x, y float64) Point {
	if !m.valid {
		return Point{}
	}

	px := (x*float64(m.src.W) - m.crop.SX) * float64(m.dst.W) / m.crop.SW
	py := (y*float64(m.src.H) - m.crop.SY) * float64(m.dst.H) / m.crop.SH

	if m.Mirror {
		px = float64(m.dst.W) - px
	}
	return Point{X: px, Y: py}
}
