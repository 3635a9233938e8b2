// Package staticimage renders the fixed-frame JPEG shown for a gallery item:
// it maps the admin's pan/zoom onto the source image, crops and resamples that
// window into the output frame and publishes the result under a stable key.
package staticimage

import (
	"fmt"
	"math"
	"regexp"

	"monteur/internal/domain"
)

// Frame is an output canvas size in pixels.
type Frame struct {
	Width  int
	Height int
}

// OutputFrame is the size of every generated artifact. It is not a request
// parameter; changing it means redeploying.
var OutputFrame = Frame{Width: 600, Height: 400}

// Rect is an axis-aligned rectangle in source pixel coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// ComputeCrop maps pos onto a source image of srcW x srcH pixels and returns
// the part of the source visible through frame.
//
// The window is clamped to the source bounds. Panning or zooming past an edge
// truncates the window instead of failing; only a window that ends up with no
// area is an error.
func ComputeCrop(frame Frame, srcW, srcH int, pos domain.Position) (Rect, error) {
	if err := pos.Validate(); err != nil {
		return Rect{}, fmt.Errorf("%w: %w", ErrGeometry, err)
	}
	if srcW <= 0 || srcH <= 0 {
		return Rect{}, fmt.Errorf("%w: source size %dx%d", ErrGeometry, srcW, srcH)
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return Rect{}, fmt.Errorf("%w: frame size %dx%d", ErrGeometry, frame.Width, frame.Height)
	}

	left := roundHalfUp(-pos.X / pos.Scale)
	top := roundHalfUp(-pos.Y / pos.Scale)
	width := roundHalfUp(float64(frame.Width) / pos.Scale)
	height := roundHalfUp(float64(frame.Height) / pos.Scale)

	x := clamp(left, 0, srcW)
	y := clamp(top, 0, srcH)
	rect := Rect{
		X:      x,
		Y:      y,
		Width:  min(width, srcW-x),
		Height: min(height, srcH-y),
	}
	if rect.Width <= 0 || rect.Height <= 0 {
		return Rect{}, fmt.Errorf("%w: empty crop %s of %dx%d source", ErrGeometry, rect, srcW, srcH)
	}
	return rect, nil
}

// roundHalfUp rounds .5 towards positive infinity and saturates at the int range.
func roundHalfUp(v float64) int {
	r := math.Floor(v + 0.5)
	switch {
	case r >= math.MaxInt32:
		return math.MaxInt32
	case r <= math.MinInt32:
		return math.MinInt32
	}
	return int(r)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

var itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateItemID rejects ids that cannot be used verbatim in a filename and an
// object key. Ids are rejected rather than rewritten so two ids never collide
// on one key.
func ValidateItemID(id string) error {
	if !itemIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidItemID, id)
	}
	return nil
}

// ObjectKey is the storage key (and scratch filename) for an item.
func ObjectKey(itemID string) string {
	return "static_image_" + itemID + ".jpg"
}
