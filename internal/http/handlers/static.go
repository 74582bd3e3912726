package handlers

import (
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// StaticAsset serves a stored object when the request carries a valid,
// unexpired signature. Paths are never browsable without one.
func (a *App) StaticAsset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "key required")
		return
	}

	exp, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
	if err != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}
	if time.Now().Unix() > exp {
		a.error(w, http.StatusUnauthorized, "unauthorized", "signature expired")
		return
	}
	if !a.Store.VerifySignature(key, exp, r.URL.Query().Get("sig")) {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}

	data, err := a.Store.Read(r.Context(), key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "object not found")
		return
	}

	w.Header().Set("Content-Type", contentTypeForKey(key))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeForKey(key string) string {
	switch path.Ext(key) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return "application/octet-stream"
}
