package http

import (
	"io"
	"net/http"
	"net/url"

	"github.com/datavtar/localfirst/internal/kv"
	"github.com/go-chi/chi/v5"
)

// KVHandler exposes a medium over HTTP so remote clients can use it as
// their own, see kv.Remote.
type KVHandler struct {
	Medium kv.Medium
}

// NewKVHandler hosts the keys of m under kv.HostPrefix. The collections the
// server's own stores hold are never reachable through it, so a remote write
// cannot be lost under a store's next save.
func NewKVHandler(m kv.Medium) *KVHandler {
	return &KVHandler{Medium: kv.Prefix(m, kv.HostPrefix)}
}

// Get handles GET /api/kv/{key}.
func (h *KVHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok, err := h.Medium.Get(r.Context(), keyParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, v)
}

// Put handles PUT /api/kv/{key}.
func (h *KVHandler) Put(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Medium.Set(r.Context(), keyParam(r), string(b)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/kv/{key}.
func (h *KVHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Medium.Remove(r.Context(), keyParam(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Keys handles GET /api/kv?prefix=.
func (h *KVHandler) Keys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Medium.Keys(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// keyParam returns the unescaped {key} path segment.
func keyParam(r *http.Request) string {
	k := chi.URLParam(r, "key")
	if u, err := url.PathUnescape(k); err == nil {
		return u
	}
	return k
}
