package handlers

import (
	"net/http"
	"strconv"
	"time"

	"monteur/internal/domain"
	"monteur/internal/middleware"
)

const (
	defaultGalleryLimit = 50
	maxGalleryLimit     = 200
)

type galleryItemResponse struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	ImageURL       string           `json:"imageUrl"`
	VideoURL       string           `json:"videoUrl,omitempty"`
	StaticImageURL string           `json:"staticImageUrl,omitempty"`
	Position       *domain.Position `json:"position,omitempty"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// ListGallery returns published items with text in the request locale.
func (a *App) ListGallery(w http.ResponseWriter, r *http.Request) {
	if a.Gallery == nil {
		a.error(w, http.StatusServiceUnavailable, "gallery_unavailable", "gallery database is not configured")
		return
	}
	limit, ok := queryInt(r, "limit", defaultGalleryLimit)
	if !ok || limit <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
		return
	}
	if limit > maxGalleryLimit {
		limit = maxGalleryLimit
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok || offset < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "offset must be a non-negative integer")
		return
	}

	items, err := a.Gallery.ListPublished(r.Context(), limit, offset)
	if err != nil {
		a.logger(r).Error().Err(err).Msg("gallery: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list gallery")
		return
	}

	locale := middleware.LocaleFromContext(r.Context())
	out := make([]galleryItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, galleryItemResponse{
			ID:             item.ID,
			Title:          item.Title(locale),
			Description:    item.Description(locale),
			ImageURL:       item.ImageURL,
			VideoURL:       item.VideoURL,
			StaticImageURL: item.StaticImageURL,
			Position:       item.Position,
			UpdatedAt:      item.UpdatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"locale": locale,
		"limit":  limit,
		"offset": offset,
		"items":  out,
	})
}

func queryInt(r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
