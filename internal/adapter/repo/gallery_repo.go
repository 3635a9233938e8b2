package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"monteur/internal/domain"
	"monteur/internal/infra"
	"monteur/internal/sqlinline"
)

// GalleryRepositoryPG implements domain.GalleryRepository on the
// gallery_items table.
type GalleryRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGalleryRepository creates a new GalleryRepositoryPG.
func NewGalleryRepository(sql infra.SQLExecutor) *GalleryRepositoryPG {
	return &GalleryRepositoryPG{sql: sql}
}

// ListPublished returns published items in display order.
func (r *GalleryRepositoryPG) ListPublished(ctx context.Context, limit, offset int) ([]domain.GalleryItem, error) {
	return r.list(ctx, sqlinline.QListPublishedGalleryItems, limit, offset)
}

// ListWithPosition returns every item that has a saved position and a source
// image, published or not.
func (r *GalleryRepositoryPG) ListWithPosition(ctx context.Context, limit, offset int) ([]domain.GalleryItem, error) {
	return r.list(ctx, sqlinline.QListPositionedGalleryItems, limit, offset)
}

// Get fetches one item by id.
func (r *GalleryRepositoryPG) Get(ctx context.Context, id string) (*domain.GalleryItem, error) {
	item, err := scanGalleryItem(r.sql.QueryRow(ctx, sqlinline.QGetGalleryItem, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// SaveStaticImage stores the position an artifact was rendered from together
// with its public URL.
func (r *GalleryRepositoryPG) SaveStaticImage(ctx context.Context, id string, pos domain.Position, url string) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QSaveGalleryStaticImage, id, raw, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GalleryRepositoryPG) list(ctx context.Context, query string, limit, offset int) ([]domain.GalleryItem, error) {
	rows, err := r.sql.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.GalleryItem{}
	for rows.Next() {
		item, err := scanGalleryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanGalleryItem(row pgx.Row) (*domain.GalleryItem, error) {
	var (
		item      domain.GalleryItem
		position  []byte
		updatedAt time.Time
	)
	if err := row.Scan(
		&item.ID,
		&item.TitleFR,
		&item.TitleEN,
		&item.DescriptionFR,
		&item.DescriptionEN,
		&item.ImageURL,
		&item.VideoURL,
		&item.StaticImageURL,
		&position,
		&item.SortOrder,
		&item.Published,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	pos, err := domain.DecodePosition(position)
	if err != nil {
		return nil, fmt.Errorf("gallery item %s: %w", item.ID, err)
	}
	item.Position = pos
	item.UpdatedAt = updatedAt
	return &item, nil
}
