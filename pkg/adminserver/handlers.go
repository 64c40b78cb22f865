package adminserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/lsmdb/pkg/changefeed"
	"github.com/mnohosten/lsmdb/pkg/engine"
)

type handlers struct {
	eng *engine.Engine
	cf  *changefeed.Hub
}

// handleGet serves GET /{key}: 200 with the raw value body, or 404 if the
// key is absent.
func (h *handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	val, ok, err := h.eng.Get([]byte(key))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(val)
}

// handlePut serves PUT /{key}: the request body becomes the stored value.
func (h *handlers) handlePut(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	val, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.eng.Put([]byte(key), val); err != nil {
		if errors.Is(err, engine.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.cf.Publish(changefeed.Event{Op: changefeed.EventPut, Key: key, Value: val})
	w.WriteHeader(http.StatusNoContent)
}

// handleDelete serves DELETE /{key}.
func (h *handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.eng.Remove([]byte(key)); err != nil {
		if errors.Is(err, engine.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.cf.Publish(changefeed.Event{Op: changefeed.EventRemove, Key: key})
	w.WriteHeader(http.StatusNoContent)
}

// handleStats serves GET /stats.
func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.eng.Stats())
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
