package staticimage

import "errors"

// Stage errors. Every failure returned by Generate wraps exactly one of these
// together with the underlying cause, so callers can branch with errors.Is.
var (
	ErrInvalidItemID = errors.New("invalid item id")
	ErrFetch         = errors.New("fetch source image")
	ErrInvalidImage  = errors.New("invalid source image")
	ErrGeometry      = errors.New("invalid crop geometry")
	ErrTransform     = errors.New("transform image")
	ErrPublish       = errors.New("publish image")
)
