package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/kalam/internal/app"
	"github.com/ayusman/kalam/internal/geom"
	"github.com/ayusman/kalam/internal/session"
	"github.com/ayusman/kalam/internal/store"
)

// Controller is the part of the app the session endpoints drive.
type Controller interface {
	Status() app.Status
	Controls() *session.Controls
	StartGestures() error
	StopGestures()
	SetCanvas(size geom.Size) error
}

// SessionHandler reports and changes the host's controls.
//
//	GET  /api/session
//	POST /api/session   {"camera": bool, "gesture_mode": bool, "draw_mode": bool, "clear": bool, "canvas": {...}}
//
// Omitted fields are left unchanged.
type SessionHandler struct {
	ctl Controller
}

// NewSessionHandler creates a SessionHandler for ctl.
func NewSessionHandler(ctl Controller) *SessionHandler {
	return &SessionHandler{ctl: ctl}
}

type controlRequest struct {
	Camera      *bool      `json:"camera"`
	GestureMode *bool      `json:"gesture_mode"`
	DrawMode    *bool      `json:"draw_mode"`
	Clear       bool       `json:"clear"`
	Canvas      *geom.Size `json:"canvas"`
}

// ServeHTTP implements http.Handler.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.ctl.Status())
	case http.MethodPost:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SessionHandler) update(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Canvas != nil {
		if err := app.CheckCanvas(*req.Canvas); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.ctl.SetCanvas(*req.Canvas); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	controls := h.ctl.Controls()
	if req.Camera != nil {
		controls.SetCamera(*req.Camera)
	}
	if req.DrawMode != nil {
		controls.SetDrawMode(*req.DrawMode)
	}
	if req.Clear {
		controls.RequestClear()
	}
	if req.GestureMode != nil {
		if *req.GestureMode {
			if err := h.ctl.StartGestures(); err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, app.ErrGestureUnavailable) {
					status = http.StatusServiceUnavailable
				}
				writeError(w, status, err.Error())
				return
			}
		} else {
			h.ctl.StopGestures()
		}
	}

	writeJSON(w, http.StatusOK, h.ctl.Status())
}

// HistoryHandler lists recent gesture-mode runs.
//
//	GET /api/sessions?limit=N
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a HistoryHandler backed by s.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

type historyResponse struct {
	Sessions []*store.SessionRecord `json:"sessions"`
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	records, err := h.store.Sessions().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if records == nil {
		records = []*store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Sessions: records})
}
