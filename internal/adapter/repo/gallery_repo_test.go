package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monteur/internal/domain"
	"monteur/internal/infra/sqltest"
	"monteur/internal/sqlinline"
)

var updated = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func galleryRecord(id string, position any) []any {
	return []any{
		id,
		"Montage mariage", "Wedding edit",
		"Un film de mariage", "A wedding film",
		"https://ref.supabase.co/storage/v1/object/public/gallery/" + id + ".png",
		"https://youtu.be/" + id,
		"",
		position,
		1,
		true,
		updated,
	}
}

func TestGalleryListPublished(t *testing.T) {
	exec := &sqltest.Executor{
		QueryFunc: func(query string, args ...any) (pgx.Rows, error) {
			return sqltest.NewRows(
				galleryRecord("1", []byte(`{"x":-300,"y":-200,"scale":1}`)),
				galleryRecord("2", nil),
			), nil
		},
	}
	repo := NewGalleryRepository(exec)

	items, err := repo.ListPublished(context.Background(), 50, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "Wedding edit", items[0].Title(domain.LocaleEN))
	require.NotNil(t, items[0].Position)
	assert.Equal(t, domain.Position{X: -300, Y: -200, Scale: 1}, *items[0].Position)
	assert.Equal(t, updated, items[0].UpdatedAt)
	assert.Nil(t, items[1].Position)

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, sqlinline.QListPublishedGalleryItems, calls[0].Query)
	assert.Equal(t, []any{50, 10}, calls[0].Args)
}

func TestGalleryListWithPositionEmpty(t *testing.T) {
	exec := &sqltest.Executor{}
	items, err := NewGalleryRepository(exec).ListWithPosition(context.Background(), 200, 0)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Equal(t, sqlinline.QListPositionedGalleryItems, exec.Calls()[0].Query)
}

func TestGalleryListErrors(t *testing.T) {
	boom := errors.New("connection reset")

	repo := NewGalleryRepository(&sqltest.Executor{
		QueryFunc: func(string, ...any) (pgx.Rows, error) { return nil, boom },
	})
	_, err := repo.ListPublished(context.Background(), 1, 0)
	assert.ErrorIs(t, err, boom)

	repo = NewGalleryRepository(&sqltest.Executor{
		QueryFunc: func(string, ...any) (pgx.Rows, error) {
			return sqltest.NewRows(galleryRecord("1", nil)).WithErr(boom), nil
		},
	})
	_, err = repo.ListPublished(context.Background(), 1, 0)
	assert.ErrorIs(t, err, boom)

	repo = NewGalleryRepository(&sqltest.Executor{
		QueryFunc: func(string, ...any) (pgx.Rows, error) {
			return sqltest.NewRows(galleryRecord("1", []byte(`{"x":`))), nil
		},
	})
	_, err = repo.ListPublished(context.Background(), 1, 0)
	assert.Error(t, err)
}

func TestGalleryGet(t *testing.T) {
	exec := &sqltest.Executor{
		QueryRowFunc: func(query string, args ...any) pgx.Row {
			return sqltest.ValuesRow(galleryRecord("7", []byte(`{"x":0,"y":0,"scale":0.5}`))...)
		},
	}
	item, err := NewGalleryRepository(exec).Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "7", item.ID)
	assert.Equal(t, 0.5, item.Position.Scale)
	assert.Equal(t, []any{"7"}, exec.Calls()[0].Args)
}

func TestGalleryGetNotFound(t *testing.T) {
	_, err := NewGalleryRepository(&sqltest.Executor{}).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGallerySaveStaticImage(t *testing.T) {
	exec := &sqltest.Executor{}
	repo := NewGalleryRepository(exec)

	err := repo.SaveStaticImage(context.Background(), "7", domain.Position{X: -1.5, Y: 2, Scale: 1.25}, "https://cdn/static_image_7.jpg")
	require.NoError(t, err)

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, sqlinline.QSaveGalleryStaticImage, calls[0].Query)
	require.Len(t, calls[0].Args, 3)
	assert.Equal(t, "7", calls[0].Args[0])
	var saved domain.Position
	require.NoError(t, json.Unmarshal(calls[0].Args[1].([]byte), &saved))
	assert.Equal(t, domain.Position{X: -1.5, Y: 2, Scale: 1.25}, saved)
	assert.Equal(t, "https://cdn/static_image_7.jpg", calls[0].Args[2])
}

func TestGallerySaveStaticImageMissingRow(t *testing.T) {
	exec := &sqltest.Executor{
		ExecFunc: func(string, ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	err := NewGalleryRepository(exec).SaveStaticImage(context.Background(), "7", domain.Position{Scale: 1}, "u")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
