package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/store"
)

// SettingsHandler serves the tuning overrides kept in the store. Changes
// take effect the next time gesture mode starts.
//
//	GET    /api/settings
//	GET    /api/settings/{key}
//	PUT    /api/settings/{key}   {"value": "..."}
//	DELETE /api/settings/{key}
type SettingsHandler struct {
	store *store.Store
}

// NewSettingsHandler creates a SettingsHandler backed by s.
func NewSettingsHandler(s *store.Store) *SettingsHandler {
	return &SettingsHandler{store: s}
}

type settingRequest struct {
	Value string `json:"value"`
}

type settingResponse struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	Overridden bool   `json:"overridden"`
}

type listSettingsResponse struct {
	Settings  map[string]string `json:"settings"`
	Overrides map[string]string `json:"overrides"`
	Keys      []string          `json:"keys"`
}

// ServeHTTP routes between the collection and item endpoints.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/settings")
	key = strings.TrimPrefix(key, "/")

	if key == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w)
		return
	}

	if !config.IsSetting(key) {
		writeError(w, http.StatusNotFound, "Unknown setting")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, key)
	case http.MethodPut:
		h.put(w, r, key)
	case http.MethodDelete:
		h.delete(w, key)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) list(w http.ResponseWriter) {
	overrides, err := h.store.Settings().All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings")
		return
	}

	effective := config.DefaultTuning().Settings()
	for k, v := range overrides {
		if config.IsSetting(k) {
			effective[k] = v
		}
	}

	writeJSON(w, http.StatusOK, listSettingsResponse{
		Settings:  effective,
		Overrides: overrides,
		Keys:      config.SettingKeys(),
	})
}

func (h *SettingsHandler) get(w http.ResponseWriter, key string) {
	value, err := h.store.Settings().Get(key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: config.DefaultTuning().Settings()[key]})
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to read setting")
	default:
		writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: value, Overridden: true})
	}
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request, key string) {
	var req settingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := config.ValidateSetting(key, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Settings().Set(key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save setting")
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: req.Value, Overridden: true})
}

func (h *SettingsHandler) delete(w http.ResponseWriter, key string) {
	err := h.store.Settings().Delete(key)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Setting not overridden")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
