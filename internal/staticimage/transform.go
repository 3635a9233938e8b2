package staticimage

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/jpegli"
	_ "golang.org/x/image/webp"
)

const (
	jpegQuality            = 100
	defaultMaxSourcePixels = 100_000_000
)

// jpegOptions keeps full chroma resolution (4:4:4) and a single sequential
// scan. The standard library encoder always writes 4:2:0.
var jpegOptions = jpegli.EncodingOptions{
	Quality:             jpegQuality,
	ChromaSubsampling:   image.YCbCrSubsampleRatio444,
	ProgressiveLevel:    0,
	StandardQuantTables: true,
}

// SourceInfo is what Probe learns from the image header.
type SourceInfo struct {
	Width  int
	Height int
	Format string
}

// Probe reads the true pixel size of data from its header. The size sent by
// the browser is relative to the displayed image and is never used.
func Probe(data []byte, maxPixels int64) (SourceInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return SourceInfo{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return SourceInfo{}, fmt.Errorf("%w: %s reports %dx%d", ErrInvalidImage, format, cfg.Width, cfg.Height)
	}
	if maxPixels <= 0 {
		maxPixels = defaultMaxSourcePixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return SourceInfo{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}
	return SourceInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Render cuts rect out of the source image, stretches it to exactly frame
// (aspect ratio is not preserved) with a Lanczos filter and encodes the result
// as a quality 100 baseline JPEG without chroma subsampling.
func Render(data []byte, rect Rect, frame Frame) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrTransform, err)
	}
	b := src.Bounds()
	window := image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height).Add(b.Min)
	if !window.In(b) || window.Empty() {
		return nil, fmt.Errorf("%w: crop %s outside %dx%d image", ErrTransform, rect, b.Dx(), b.Dy())
	}

	cropped := imaging.Crop(src, window)
	resized := imaging.Resize(cropped, frame.Width, frame.Height, imaging.Lanczos)

	var buf bytes.Buffer
	opts := jpegOptions
	if err := jpegli.Encode(&buf, resized, &opts); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrTransform, err)
	}
	return buf.Bytes(), nil
}
