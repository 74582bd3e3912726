package handlers

import (
	"io"
	"net/http"
)

const maxUploadBytes = 16 << 20

var acceptedUploadTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

type uploadResponse struct {
	Path      string `json:"path"`
	SignedURL string `json:"signed_url"`
}

// UploadInput stores a room photo for use as a generation input and returns
// the storage path to reference on submission.
func (a *App) UploadInput(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)

	contentType := r.Header.Get("Content-Type")
	if _, ok := acceptedUploadTypes[contentType]; !ok {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "upload must be jpeg, png or webp")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	if len(data) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "empty upload")
		return
	}
	if len(data) > maxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
		return
	}

	path, signedURL, err := a.Store.Upload(r.Context(), userID, data, contentType)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, uploadResponse{Path: path, SignedURL: signedURL})
}
