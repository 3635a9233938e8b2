package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"monteur/internal/domain"
	"monteur/internal/staticimage"
)

// StaticImageGenerator renders and publishes one static image.
type StaticImageGenerator interface {
	Generate(ctx context.Context, req staticimage.Request) (*staticimage.Result, error)
}

type App struct {
	Generator StaticImageGenerator
	// Gallery is nil when no database is configured; gallery routes then
	// answer 503.
	Gallery domain.GalleryRepository
	Logger  zerolog.Logger
	// GenerateTimeout bounds each generation request. Zero leaves only the
	// request context.
	GenerateTimeout time.Duration
}

func NewApp(gen StaticImageGenerator, gallery domain.GalleryRepository, logger zerolog.Logger) *App {
	return &App{Generator: gen, Gallery: gallery, Logger: logger}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

// logger returns the request-scoped logger set by the access log middleware,
// or the app logger.
func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}
