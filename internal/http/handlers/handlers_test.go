package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"monteur/internal/domain"
	"monteur/internal/middleware"
	"monteur/internal/staticimage"
	"monteur/internal/storage"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req staticimage.Request) (*staticimage.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*staticimage.Result)
	return res, args.Error(1)
}

type MockGallery struct {
	mock.Mock
}

func (m *MockGallery) ListPublished(ctx context.Context, limit, offset int) ([]domain.GalleryItem, error) {
	args := m.Called(ctx, limit, offset)
	items, _ := args.Get(0).([]domain.GalleryItem)
	return items, args.Error(1)
}

func (m *MockGallery) ListWithPosition(ctx context.Context, limit, offset int) ([]domain.GalleryItem, error) {
	args := m.Called(ctx, limit, offset)
	items, _ := args.Get(0).([]domain.GalleryItem)
	return items, args.Error(1)
}

func (m *MockGallery) Get(ctx context.Context, id string) (*domain.GalleryItem, error) {
	args := m.Called(ctx, id)
	item, _ := args.Get(0).(*domain.GalleryItem)
	return item, args.Error(1)
}

func (m *MockGallery) SaveStaticImage(ctx context.Context, id string, pos domain.Position, url string) error {
	return m.Called(ctx, id, pos, url).Error(0)
}

func testRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.I18N("fr", nil))
	r.Get("/v1/healthz", app.Health)
	r.Get("/gallery", app.ListGallery)
	r.Post("/admin/static-images", app.GenerateStaticImage)
	r.Post("/admin/gallery/{id}/static-image", app.GenerateGalleryStaticImage)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var payload map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	}
	return rr, payload
}

func errorCode(payload map[string]any) string {
	e, _ := payload["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

var sampleResult = &staticimage.Result{
	URL:          "https://ref.supabase.co/storage/v1/object/public/gallery/static_image_42.jpg",
	Key:          "static_image_42.jpg",
	Crop:         staticimage.Rect{X: 300, Y: 200, Width: 600, Height: 400},
	SourceWidth:  1200,
	SourceHeight: 800,
	Bytes:        12345,
	ScratchPath:  "/tmp/static_images/static_image_42.jpg",
}

func TestHealth(t *testing.T) {
	rr, payload := do(t, testRouter(NewApp(&MockGenerator{}, nil, zerolog.Nop())), http.MethodGet, "/v1/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, false, payload["gallery"])
}

func TestGenerateStaticImage(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, staticimage.Request{
		SourceImageURL: "https://ref.supabase.co/storage/v1/object/public/gallery/42.png",
		ItemID:         "42",
		Position:       domain.Position{X: -300, Y: -200, Scale: 1},
		Force:          true,
	}).Return(sampleResult, nil).Once()

	body := `{"sourceImageUrl":" https://ref.supabase.co/storage/v1/object/public/gallery/42.png ","itemId":"42","position":{"x":-300,"y":-200,"scale":1},"force":true}`
	rr, payload := do(t, testRouter(NewApp(gen, nil, zerolog.Nop())), http.MethodPost, "/admin/static-images", body)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, sampleResult.URL, payload["url"])
	assert.Equal(t, "static_image_42.jpg", payload["key"])
	assert.Equal(t, float64(1200), payload["sourceWidth"])
	assert.Equal(t, map[string]any{"x": float64(300), "y": float64(200), "width": float64(600), "height": float64(400)}, payload["crop"])
	assert.NotContains(t, rr.Body.String(), "/tmp/static_images")
	gen.AssertExpectations(t)
}

func TestGenerateStaticImageBadRequests(t *testing.T) {
	gen := &MockGenerator{}
	h := testRouter(NewApp(gen, nil, zerolog.Nop()))

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{`, "bad_request"},
		{"missing url", `{"itemId":"1","position":{"x":0,"y":0,"scale":1}}`, "bad_request"},
		{"missing position", `{"sourceImageUrl":"https://a/b.png","itemId":"1"}`, "invalid_geometry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, payload := do(t, h, http.MethodPost, "/admin/static-images", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.code, errorCode(payload))
		})
	}
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestGenerateStaticImageErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: %q", staticimage.ErrInvalidItemID, "../x"), http.StatusBadRequest, "bad_request"},
		{fmt.Errorf("%w: scale", staticimage.ErrGeometry), http.StatusBadRequest, "invalid_geometry"},
		{fmt.Errorf("%w: png: invalid format", staticimage.ErrInvalidImage), http.StatusUnprocessableEntity, "invalid_image"},
		{fmt.Errorf("%w: http 404", staticimage.ErrFetch), http.StatusBadGateway, "fetch_failed"},
		{fmt.Errorf("%w: %w", staticimage.ErrFetch, context.DeadlineExceeded), http.StatusBadGateway, "fetch_failed"},
		{fmt.Errorf("%w: %w", staticimage.ErrPublish, &storage.PublishError{Key: "k", Create: errors.New("a"), Overwrite: errors.New("b")}), http.StatusBadGateway, "publish_failed"},
		{fmt.Errorf("%w: encode", staticimage.ErrTransform), http.StatusInternalServerError, "transform_failed"},
		{fmt.Errorf("wait for k: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{errors.New("unexpected"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			gen := &MockGenerator{}
			gen.On("Generate", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			body := `{"sourceImageUrl":"https://a/b.png","itemId":"1","position":{"x":0,"y":0,"scale":1}}`
			rr, payload := do(t, testRouter(NewApp(gen, nil, zerolog.Nop())), http.MethodPost, "/admin/static-images", body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, errorCode(payload))
		})
	}
}

func TestGenerateGalleryStaticImageUsesStoredPosition(t *testing.T) {
	stored := domain.Position{X: -300, Y: -200, Scale: 1}
	gallery := &MockGallery{}
	gallery.On("Get", mock.Anything, "42").Return(&domain.GalleryItem{
		ID:       "42",
		ImageURL: "https://ref.supabase.co/storage/v1/object/public/gallery/42.png",
		Position: &stored,
	}, nil).Once()
	gallery.On("SaveStaticImage", mock.Anything, "42", stored, sampleResult.URL).Return(nil).Once()

	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, staticimage.Request{
		SourceImageURL: "https://ref.supabase.co/storage/v1/object/public/gallery/42.png",
		ItemID:         "42",
		Position:       stored,
	}).Return(sampleResult, nil).Once()

	rr, payload := do(t, testRouter(NewApp(gen, gallery, zerolog.Nop())), http.MethodPost, "/admin/gallery/42/static-image", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "42", payload["itemId"])
	assert.Equal(t, sampleResult.URL, payload["url"])
	gallery.AssertExpectations(t)
	gen.AssertExpectations(t)
}

func TestGenerateGalleryStaticImageBodyPositionWins(t *testing.T) {
	stored := domain.Position{Scale: 1}
	fresh := domain.Position{X: -10, Y: -20, Scale: 0.5}
	gallery := &MockGallery{}
	gallery.On("Get", mock.Anything, "42").Return(&domain.GalleryItem{ID: "42", ImageURL: "https://a/42.png", Position: &stored}, nil)
	gallery.On("SaveStaticImage", mock.Anything, "42", fresh, sampleResult.URL).Return(nil).Once()

	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req staticimage.Request) bool {
		return req.Position == fresh && req.Force
	})).Return(sampleResult, nil).Once()

	rr, _ := do(t, testRouter(NewApp(gen, gallery, zerolog.Nop())), http.MethodPost, "/admin/gallery/42/static-image", `{"position":{"x":-10,"y":-20,"scale":0.5},"force":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	gallery.AssertExpectations(t)
	gen.AssertExpectations(t)
}

func TestGenerateGalleryStaticImageFailures(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		rr, payload := do(t, testRouter(NewApp(&MockGenerator{}, nil, zerolog.Nop())), http.MethodPost, "/admin/gallery/42/static-image", "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "gallery_unavailable", errorCode(payload))
	})

	t.Run("unknown item", func(t *testing.T) {
		gallery := &MockGallery{}
		gallery.On("Get", mock.Anything, "42").Return(nil, domain.ErrNotFound)
		rr, payload := do(t, testRouter(NewApp(&MockGenerator{}, gallery, zerolog.Nop())), http.MethodPost, "/admin/gallery/42/static-image", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", errorCode(payload))
	})

	t.Run("no position anywhere", func(t *testing.T) {
		gallery := &MockGallery{}
		gallery.On("Get", mock.Anything, "42").Return(&domain.GalleryItem{ID: "42", ImageURL: "https://a/42.png"}, nil)
		rr, payload := do(t, testRouter(NewApp(&MockGenerator{}, gallery, zerolog.Nop())), http.MethodPost, "/admin/gallery/42/static-image", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "invalid_geometry", errorCode(payload))
	})

	t.Run("no source image", func(t *testing.T) {
		gallery := &MockGallery{}
		gallery.On("Get", mock.Anything, "42").Return(&domain.GalleryItem{ID: "42", Position: &domain.Position{Scale: 1}}, nil)
		rr, payload := do(t, testRouter(NewApp(&MockGenerator{}, gallery, zerolog.Nop())), http.MethodPost, "/admin/gallery/42/static-image", "")
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "no_source_image", errorCode(payload))
	})

	t.Run("invalid id", func(t *testing.T) {
		rr, payload := do(t, testRouter(NewApp(&MockGenerator{}, &MockGallery{}, zerolog.Nop())), http.MethodPost, "/admin/gallery/a.b/static-image", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "bad_request", errorCode(payload))
	})

	t.Run("save fails after publish", func(t *testing.T) {
		pos := domain.Position{Scale: 1}
		gallery := &MockGallery{}
		gallery.On("Get", mock.Anything, "42").Return(&domain.GalleryItem{ID: "42", ImageURL: "https://a/42.png", Position: &pos}, nil)
		gallery.On("SaveStaticImage", mock.Anything, "42", pos, sampleResult.URL).Return(errors.New("db down"))
		gen := &MockGenerator{}
		gen.On("Generate", mock.Anything, mock.Anything).Return(sampleResult, nil)

		rr, payload := do(t, testRouter(NewApp(gen, gallery, zerolog.Nop())), http.MethodPost, "/admin/gallery/42/static-image", "")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "internal", errorCode(payload))
	})
}

func TestListGalleryLocalized(t *testing.T) {
	pos := domain.Position{X: -1, Y: -2, Scale: 1}
	items := []domain.GalleryItem{
		{ID: "1", TitleFR: "Montage", TitleEN: "Edit", DescriptionFR: "Film", DescriptionEN: "", ImageURL: "https://a/1.png", Position: &pos, UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	gallery := &MockGallery{}
	gallery.On("ListPublished", mock.Anything, 50, 0).Return(items, nil)
	h := testRouter(NewApp(&MockGenerator{}, gallery, zerolog.Nop()))

	rr, payload := do(t, h, http.MethodGet, "/gallery", "", "Accept-Language", "en-US,en;q=0.9")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "en", payload["locale"])
	list := payload["items"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "Edit", first["title"])
	assert.Equal(t, "Film", first["description"])
	assert.Equal(t, map[string]any{"x": float64(-1), "y": float64(-2), "scale": float64(1)}, first["position"])

	_, payload = do(t, h, http.MethodGet, "/gallery", "")
	assert.Equal(t, "fr", payload["locale"])
	assert.Equal(t, "Montage", payload["items"].([]any)[0].(map[string]any)["title"])
}

func TestListGalleryPaging(t *testing.T) {
	gallery := &MockGallery{}
	gallery.On("ListPublished", mock.Anything, 200, 400).Return([]domain.GalleryItem{}, nil).Once()
	h := testRouter(NewApp(&MockGenerator{}, gallery, zerolog.Nop()))

	rr, payload := do(t, h, http.MethodGet, "/gallery?limit=1000&offset=400", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(200), payload["limit"])
	assert.Equal(t, []any{}, payload["items"])

	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		rr, payload := do(t, h, http.MethodGet, "/gallery?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		assert.Equal(t, "bad_request", errorCode(payload))
	}
	gallery.AssertExpectations(t)
}

func TestListGalleryFailure(t *testing.T) {
	gallery := &MockGallery{}
	gallery.On("ListPublished", mock.Anything, 50, 0).Return(nil, errors.New("db down"))
	rr, payload := do(t, testRouter(NewApp(&MockGenerator{}, gallery, zerolog.Nop())), http.MethodGet, "/gallery", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal", errorCode(payload))
}

func hasDeadline(ctx context.Context) bool {
	_, ok := ctx.Deadline()
	return ok
}

func TestGenerateStaticImageTimeout(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.MatchedBy(hasDeadline), mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, fmt.Errorf("%w: %w", staticimage.ErrPublish, context.DeadlineExceeded)).Once()

	app := NewApp(gen, nil, zerolog.Nop())
	app.GenerateTimeout = 20 * time.Millisecond

	body := `{"sourceImageUrl":"https://a/b.png","itemId":"1","position":{"x":0,"y":0,"scale":1}}`
	start := time.Now()
	rr, payload := do(t, testRouter(app), http.MethodPost, "/admin/static-images", body)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.Equal(t, "timeout", errorCode(payload))
	gen.AssertExpectations(t)
}

func TestGenerateGalleryStaticImageTimeoutSkipsSave(t *testing.T) {
	pos := domain.Position{Scale: 1}
	gallery := &MockGallery{}
	gallery.On("Get", mock.MatchedBy(hasDeadline), "42").Return(&domain.GalleryItem{ID: "42", ImageURL: "https://a/42.png", Position: &pos}, nil)
	gen := &MockGenerator{}
	gen.On("Generate", mock.MatchedBy(hasDeadline), mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, fmt.Errorf("%w: %w", staticimage.ErrFetch, context.DeadlineExceeded)).Once()

	app := NewApp(gen, gallery, zerolog.Nop())
	app.GenerateTimeout = 20 * time.Millisecond

	rr, payload := do(t, testRouter(app), http.MethodPost, "/admin/gallery/42/static-image", "")
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.Equal(t, "timeout", errorCode(payload))
	gallery.AssertNotCalled(t, "SaveStaticImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gen.AssertExpectations(t)
}
