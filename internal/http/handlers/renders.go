package handlers

import (
	"fmt"
	"net/http"
	"time"

	"server/pkg/zip"

	"github.com/go-chi/chi/v5"
)

// signedAssetTTL bounds how long returned variant URLs stay valid.
const signedAssetTTL = 15 * time.Minute

type renderVariantDTO struct {
	Idx      int    `json:"idx"`
	ImageURL string `json:"image_url"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

type renderResponse struct {
	ID        string             `json:"id"`
	JobID     string             `json:"job_id"`
	Mode      string             `json:"mode"`
	RoomType  string             `json:"room_type,omitempty"`
	Style     string             `json:"style,omitempty"`
	Cover     int                `json:"cover_variant_index"`
	Variants  []renderVariantDTO `json:"variants"`
	CreatedAt time.Time          `json:"created_at"`
}

func (a *App) RenderGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	renderID := chi.URLParam(r, "id")
	if renderID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	render, err := a.Renders.GetByID(r.Context(), renderID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if render == nil || render.OwnerID != userID {
		a.error(w, http.StatusNotFound, "not_found", "render not found")
		return
	}

	variants, err := a.Renders.ListVariants(r.Context(), render.ID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	resp := renderResponse{
		ID:        render.ID,
		JobID:     render.JobID,
		Mode:      string(render.Mode),
		RoomType:  render.RoomType,
		Style:     render.Style,
		Cover:     render.CoverVariantIndex,
		Variants:  make([]renderVariantDTO, 0, len(variants)),
		CreatedAt: render.CreatedAt,
	}
	for _, v := range variants {
		dto := renderVariantDTO{Idx: v.Idx}
		if url, err := a.Store.SignedURL(v.ImagePath, signedAssetTTL); err == nil {
			dto.ImageURL = url
		}
		if v.ThumbPath != "" {
			if url, err := a.Store.SignedURL(v.ThumbPath, signedAssetTTL); err == nil {
				dto.ThumbURL = url
			}
		}
		resp.Variants = append(resp.Variants, dto)
	}
	a.json(w, http.StatusOK, resp)
}

// RenderDownload streams every variant of a render as a single zip archive.
func (a *App) RenderDownload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	renderID := chi.URLParam(r, "id")
	if renderID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	render, err := a.Renders.GetByID(r.Context(), renderID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if render == nil || render.OwnerID != userID {
		a.error(w, http.StatusNotFound, "not_found", "render not found")
		return
	}

	variants, err := a.Renders.ListVariants(r.Context(), render.ID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	assets := make([]zip.Asset, 0, len(variants))
	for _, v := range variants {
		data, err := a.Store.Read(r.Context(), v.ImagePath)
		if err != nil {
			a.Logger.Warn().Err(err).Str("render_id", render.ID).Int("idx", v.Idx).Msg("skip unreadable variant")
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("%s-%d", render.ID, v.Idx),
			MIME:     "image/jpeg",
			Data:     data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "render has no readable variants")
		return
	}

	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=render-%s.zip", render.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
