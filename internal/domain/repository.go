package domain

import "context"

// GalleryRepository handles persistence for gallery items.
type GalleryRepository interface {
	ListPublished(ctx context.Context, limit, offset int) ([]GalleryItem, error)
	ListWithPosition(ctx context.Context, limit, offset int) ([]GalleryItem, error)
	Get(ctx context.Context, id string) (*GalleryItem, error)
	SaveStaticImage(ctx context.Context, id string, pos Position, url string) error
}
