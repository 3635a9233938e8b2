package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Locales served by the public site.
const (
	LocaleFR = "fr"
	LocaleEN = "en"
)

// Position is the pan/zoom committed by the admin position selector. X and Y
// are the offset, in scaled pixels, of the scaled image's top-left corner
// relative to the frame's top-left corner. Scale 1.0 means one source pixel per
// frame pixel.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// Validate rejects positions the crop geometry cannot handle.
func (p Position) Validate() error {
	for _, v := range []float64{p.X, p.Y, p.Scale} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidPosition)
		}
	}
	if p.Scale <= 0 {
		return fmt.Errorf("%w: scale must be > 0, got %g", ErrInvalidPosition, p.Scale)
	}
	return nil
}

// GalleryItem is a showcase entry managed from the admin screens.
type GalleryItem struct {
	ID             string
	TitleFR        string
	TitleEN        string
	DescriptionFR  string
	DescriptionEN  string
	ImageURL       string
	VideoURL       string
	StaticImageURL string
	Position       *Position
	SortOrder      int
	Published      bool
	UpdatedAt      time.Time
}

// Title returns the title for locale, falling back to the other language.
func (g GalleryItem) Title(locale string) string {
	return pick(locale, g.TitleFR, g.TitleEN)
}

// Description returns the description for locale, falling back to the other language.
func (g GalleryItem) Description(locale string) string {
	return pick(locale, g.DescriptionFR, g.DescriptionEN)
}

func pick(locale, fr, en string) string {
	if strings.EqualFold(locale, LocaleEN) {
		if strings.TrimSpace(en) != "" {
			return en
		}
		return fr
	}
	if strings.TrimSpace(fr) != "" {
		return fr
	}
	return en
}

// DecodePosition parses the jsonb position column. Empty or null input yields nil.
func DecodePosition(raw []byte) (*Position, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var pos Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	return &pos, nil
}
