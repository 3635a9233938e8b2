package staticimage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"monteur/internal/domain"
)

// SourceFetcher downloads the original image.
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Scratch stages the rendered file locally, replacing any previous copy.
type Scratch interface {
	Replace(ctx context.Context, key string, data []byte) (string, error)
}

// Publisher writes the artifact to object storage, creating or overwriting it.
type Publisher interface {
	Publish(ctx context.Context, key string, data []byte) error
	PublicURL(key string) string
}

// statusCoder is implemented by publish errors that carry HTTP status codes.
type statusCoder interface {
	StatusCodes() []int
}

// Request asks for the static image of one gallery item.
type Request struct {
	SourceImageURL string
	ItemID         string
	Position       domain.Position
	// Force is only logged. Every call regenerates and overwrites.
	Force bool
}

// Result describes a published artifact.
type Result struct {
	URL          string `json:"url"`
	Key          string `json:"key"`
	Crop         Rect   `json:"crop"`
	SourceWidth  int    `json:"sourceWidth"`
	SourceHeight int    `json:"sourceHeight"`
	Bytes        int    `json:"bytes"`
	ScratchPath  string `json:"-"`
}

// Options wires a Generator.
type Options struct {
	Fetcher   SourceFetcher
	Scratch   Scratch
	Publisher Publisher
	Logger    zerolog.Logger
	// MaxSourcePixels bounds the decoded source size. Zero uses 100 megapixels.
	MaxSourcePixels int64
	// TransformConcurrency bounds concurrent decode/resize/encode work. Zero means 2.
	TransformConcurrency int64
}

// Generator runs the fetch, probe, crop, render and publish pipeline.
type Generator struct {
	fetcher   SourceFetcher
	scratch   Scratch
	publisher Publisher
	logger    zerolog.Logger
	maxPixels int64
	slots     *semaphore.Weighted
	locks     *keyLock
}

// NewGenerator validates opts and returns a Generator.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("staticimage: fetcher is required")
	}
	if opts.Scratch == nil {
		return nil, errors.New("staticimage: scratch store is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("staticimage: publisher is required")
	}
	concurrency := opts.TransformConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Generator{
		fetcher:   opts.Fetcher,
		scratch:   opts.Scratch,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		maxPixels: opts.MaxSourcePixels,
		slots:     semaphore.NewWeighted(concurrency),
		locks:     newKeyLock(),
	}, nil
}

// Generate renders and publishes the static image for req.ItemID and returns
// its public URL. Any stage failure aborts the call; nothing is uploaded
// unless the JPEG was fully produced.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := ValidateItemID(req.ItemID); err != nil {
		return nil, err
	}
	if err := req.Position.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeometry, err)
	}

	key := ObjectKey(req.ItemID)
	log := g.logger.With().
		Str("item_id", req.ItemID).
		Str("key", key).
		Str("source_url", req.SourceImageURL).
		Bool("force", req.Force).
		Logger()

	unlock, err := g.locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", key, err)
	}
	defer unlock()

	log.Debug().
		Float64("x", req.Position.X).
		Float64("y", req.Position.Y).
		Float64("scale", req.Position.Scale).
		Msg("static image: start")

	data, err := g.fetcher.Fetch(ctx, req.SourceImageURL)
	if err != nil {
		log.Error().Err(err).Msg("static image: fetch failed")
		return nil, err
	}

	info, err := Probe(data, g.maxPixels)
	if err != nil {
		log.Error().Err(err).Int("source_bytes", len(data)).Msg("static image: probe failed")
		return nil, err
	}

	rect, err := ComputeCrop(OutputFrame, info.Width, info.Height, req.Position)
	if err != nil {
		log.Error().Err(err).Int("source_width", info.Width).Int("source_height", info.Height).Msg("static image: geometry failed")
		return nil, err
	}
	log.Debug().
		Str("format", info.Format).
		Int("source_width", info.Width).
		Int("source_height", info.Height).
		Stringer("crop", rect).
		Msg("static image: crop computed")

	out, err := g.render(ctx, data, rect)
	if err != nil {
		log.Error().Err(err).Stringer("crop", rect).Msg("static image: render failed")
		return nil, err
	}

	path, err := g.scratch.Replace(ctx, key, out)
	if err != nil {
		log.Error().Err(err).Int("bytes", len(out)).Msg("static image: scratch write failed")
		return nil, fmt.Errorf("%w: scratch: %w", ErrPublish, err)
	}

	if err := g.publisher.Publish(ctx, key, out); err != nil {
		evt := log.Error().Err(err).Int("bytes", len(out)).Str("scratch_path", path)
		var sc statusCoder
		if errors.As(err, &sc) {
			evt = evt.Ints("status_codes", sc.StatusCodes())
		}
		evt.Msg("static image: publish failed, scratch copy kept for manual reconciliation")
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	res := &Result{
		URL:          g.publisher.PublicURL(key),
		Key:          key,
		Crop:         rect,
		SourceWidth:  info.Width,
		SourceHeight: info.Height,
		Bytes:        len(out),
		ScratchPath:  path,
	}
	log.Info().
		Str("url", res.URL).
		Stringer("crop", rect).
		Int("bytes", res.Bytes).
		Dur("elapsed", time.Since(start)).
		Msg("static image: published")
	return res, nil
}

func (g *Generator) render(ctx context.Context, data []byte, rect Rect) ([]byte, error) {
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for transform slot: %w", ErrTransform, err)
	}
	defer g.slots.Release(1)
	return Render(data, rect, OutputFrame)
}
