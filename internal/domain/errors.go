package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPosition = errors.New("invalid position")
	ErrNoSourceImage   = errors.New("no source image")
)
