package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"monteur/internal/domain"
	"monteur/internal/staticimage"
)

const maxRequestBody = 64 << 10

var errGenerateTimeout = errors.New("generation budget exhausted")

type staticImageRequest struct {
	SourceImageURL string           `json:"sourceImageUrl"`
	ItemID         string           `json:"itemId"`
	Position       *domain.Position `json:"position"`
	Force          bool             `json:"force"`
}

type galleryStaticImageRequest struct {
	Position *domain.Position `json:"position"`
	Force    bool             `json:"force"`
}

type galleryStaticImageResponse struct {
	ItemID   string          `json:"itemId"`
	Position domain.Position `json:"position"`
	*staticimage.Result
}

// GenerateStaticImage renders the static image for an arbitrary source and item id.
func (a *App) GenerateStaticImage(w http.ResponseWriter, r *http.Request) {
	var req staticImageRequest
	if !a.decode(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.SourceImageURL) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "sourceImageUrl is required")
		return
	}
	if req.Position == nil {
		a.error(w, http.StatusBadRequest, "invalid_geometry", "position is required")
		return
	}

	ctx, cancel := a.generateContext(r)
	defer cancel()
	res, err := a.Generator.Generate(ctx, staticimage.Request{
		SourceImageURL: strings.TrimSpace(req.SourceImageURL),
		ItemID:         strings.TrimSpace(req.ItemID),
		Position:       *req.Position,
		Force:          req.Force,
	})
	if err != nil {
		a.generateError(w, r, budgetError(ctx, err))
		return
	}
	a.json(w, http.StatusOK, res)
}

// GenerateGalleryStaticImage renders the static image of a stored gallery item
// and records the position and URL on the item.
func (a *App) GenerateGalleryStaticImage(w http.ResponseWriter, r *http.Request) {
	if a.Gallery == nil {
		a.error(w, http.StatusServiceUnavailable, "gallery_unavailable", "gallery database is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := staticimage.ValidateItemID(id); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var req galleryStaticImageRequest
	if !a.decode(w, r, &req, true) {
		return
	}

	ctx, cancel := a.generateContext(r)
	defer cancel()
	item, err := a.Gallery.Get(ctx, id)
	if err != nil {
		a.generateError(w, r, budgetError(ctx, err))
		return
	}
	pos := req.Position
	if pos == nil {
		pos = item.Position
	}
	if pos == nil {
		a.error(w, http.StatusBadRequest, "invalid_geometry", "no position in request or on the item")
		return
	}
	if strings.TrimSpace(item.ImageURL) == "" {
		a.generateError(w, r, domain.ErrNoSourceImage)
		return
	}

	res, err := a.Generator.Generate(ctx, staticimage.Request{
		SourceImageURL: item.ImageURL,
		ItemID:         item.ID,
		Position:       *pos,
		Force:          req.Force,
	})
	if err != nil {
		a.generateError(w, r, budgetError(ctx, err))
		return
	}
	if err := a.Gallery.SaveStaticImage(ctx, item.ID, *pos, res.URL); err != nil {
		a.logger(r).Error().Err(err).Str("item_id", item.ID).Str("url", res.URL).Msg("gallery: save static image failed")
		a.error(w, http.StatusInternalServerError, "internal", "static image published but the gallery item was not updated")
		return
	}
	a.json(w, http.StatusOK, galleryStaticImageResponse{ItemID: item.ID, Position: *pos, Result: res})
}

// generateContext derives the context for one generation. The deadline ends
// before the server write deadline, so a slow fetch or publish is reported to
// the caller instead of dropping the connection.
func (a *App) generateContext(r *http.Request) (context.Context, context.CancelFunc) {
	if a.GenerateTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), a.GenerateTimeout)
}

// budgetError tags err when the generation deadline expired, whatever stage
// observed it.
func budgetError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", errGenerateTimeout, err)
	}
	return err
}

// decode reads a JSON body. An empty body is accepted when optional is set.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

// generateError maps pipeline and repository errors onto HTTP answers.
func (a *App) generateError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, errGenerateTimeout):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, staticimage.ErrInvalidItemID):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, staticimage.ErrGeometry), errors.Is(err, domain.ErrInvalidPosition):
		status, code = http.StatusBadRequest, "invalid_geometry"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNoSourceImage):
		status, code = http.StatusUnprocessableEntity, "no_source_image"
	case errors.Is(err, staticimage.ErrInvalidImage):
		status, code = http.StatusUnprocessableEntity, "invalid_image"
	case errors.Is(err, staticimage.ErrFetch):
		status, code = http.StatusBadGateway, "fetch_failed"
	case errors.Is(err, staticimage.ErrPublish):
		status, code = http.StatusBadGateway, "publish_failed"
	case errors.Is(err, staticimage.ErrTransform):
		status, code = http.StatusInternalServerError, "transform_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, code = http.StatusGatewayTimeout, "timeout"
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		a.logger(r).Error().Err(err).Int("status", status).Msg("static image request failed")
		message = serverMessages[code]
	}
	a.error(w, status, code, message)
}

// serverMessages replace internal error text in 5xx answers.
var serverMessages = map[string]string{
	"fetch_failed":     "could not download the source image",
	"publish_failed":   "could not publish the static image",
	"transform_failed": "could not render the static image",
	"timeout":          "request timed out",
	"internal":         "internal error",
}
