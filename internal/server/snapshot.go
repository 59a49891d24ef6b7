package server

import (
	"image"
	"image/png"
	"net/http"
	"strconv"

	xdraw "golang.org/x/image/draw"
)

// maxSnapshotWidth caps the requested snapshot width.
const maxSnapshotWidth = 3840

// SnapshotHandler serves the latest composited frame as a PNG, optionally
// scaled to ?width=N keeping the aspect ratio.
type SnapshotHandler struct {
	source FrameSource
}

// NewSnapshotHandler creates a SnapshotHandler reading from source.
func NewSnapshotHandler(source FrameSource) *SnapshotHandler {
	return &SnapshotHandler{source: source}
}

// ServeHTTP implements http.Handler.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxSnapshotWidth {
			http.Error(w, "Invalid width", http.StatusBadRequest)
			return
		}
		width = n
	}

	frame, _, ok := h.source.Frame()
	defer frame.Close()
	if !ok {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}

	img, err := frame.ToImage()
	if err != nil {
		http.Error(w, "Failed to convert frame", http.StatusInternalServerError)
		return
	}
	if width > 0 {
		img = scale(img, width)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		logger().Debug().Err(err).Msg("png encode failed")
	}
}

// scale resizes img to width, keeping the aspect ratio.
func scale(img image.Image, width int) image.Image {
	b := img.Bounds()
	if b.Dx() == width || b.Dx() == 0 {
		return img
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
