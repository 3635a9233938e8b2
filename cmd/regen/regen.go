package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"monteur/internal/domain"
	"monteur/internal/staticimage"
)

type generator interface {
	Generate(ctx context.Context, req staticimage.Request) (*staticimage.Result, error)
}

type regenerator struct {
	gallery     domain.GalleryRepository
	generator   generator
	fetcher     staticimage.SourceFetcher
	maxPixels   int64
	concurrency int
	pageSize    int
	itemTimeout time.Duration
	dryRun      bool
	out         io.Writer
	logger      zerolog.Logger

	mu sync.Mutex
}

type summary struct {
	total  int
	ok     int
	failed int
}

// run regenerates every positioned item, or only itemID when set. Item
// failures are counted and do not stop the others; the returned error is for
// failures to list items or a cancelled context.
func (r *regenerator) run(ctx context.Context, itemID string) (summary, error) {
	items, err := r.items(ctx, itemID)
	if err != nil {
		return summary{}, err
	}

	concurrency := r.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	var sum summary
	sum.total = len(items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			line, err := r.process(gctx, item)
			r.mu.Lock()
			defer r.mu.Unlock()
			if err != nil {
				sum.failed++
				r.logger.Error().Err(err).Str("item_id", item.ID).Msg("regen: item failed")
				fmt.Fprintf(r.out, "FAIL %s: %v\n", item.ID, err)
				return nil
			}
			sum.ok++
			fmt.Fprintln(r.out, line)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	return sum, nil
}

func (r *regenerator) items(ctx context.Context, itemID string) ([]domain.GalleryItem, error) {
	if itemID != "" {
		item, err := r.gallery.Get(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("load item %s: %w", itemID, err)
		}
		return []domain.GalleryItem{*item}, nil
	}

	pageSize := r.pageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	var all []domain.GalleryItem
	for offset := 0; ; offset += pageSize {
		page, err := r.gallery.ListWithPosition(ctx, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list gallery at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func (r *regenerator) process(ctx context.Context, item domain.GalleryItem) (string, error) {
	if item.Position == nil {
		return "", fmt.Errorf("%w: item has no stored position", domain.ErrInvalidPosition)
	}
	if item.ImageURL == "" {
		return "", domain.ErrNoSourceImage
	}
	if r.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.itemTimeout)
		defer cancel()
	}
	if r.dryRun {
		return r.preview(ctx, item)
	}
	if r.generator == nil {
		return "", errors.New("no generator configured")
	}
	res, err := r.generator.Generate(ctx, staticimage.Request{
		SourceImageURL: item.ImageURL,
		ItemID:         item.ID,
		Position:       *item.Position,
		Force:          true,
	})
	if err != nil {
		return "", err
	}
	if err := r.gallery.SaveStaticImage(ctx, item.ID, *item.Position, res.URL); err != nil {
		return "", fmt.Errorf("save url: %w", err)
	}
	return fmt.Sprintf("OK   %s %s %s", item.ID, res.Crop, res.URL), nil
}

// preview fetches and probes the source and reports the crop that would be used.
func (r *regenerator) preview(ctx context.Context, item domain.GalleryItem) (string, error) {
	if r.fetcher == nil {
		return "", errors.New("no fetcher configured")
	}
	data, err := r.fetcher.Fetch(ctx, item.ImageURL)
	if err != nil {
		return "", err
	}
	info, err := staticimage.Probe(data, r.maxPixels)
	if err != nil {
		return "", err
	}
	rect, err := staticimage.ComputeCrop(staticimage.OutputFrame, info.Width, info.Height, *item.Position)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DRY  %s %dx%d crop %s -> %s", item.ID, info.Width, info.Height, rect, staticimage.ObjectKey(item.ID)), nil
}
