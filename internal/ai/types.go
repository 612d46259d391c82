package ai

import "fmt"

// Image is one unit of work submitted for rating. It is treated as
// immutable once created.
type Image struct {
	ID       string            `json:"id" yaml:"id"`
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	B64      string            `json:"b64,omitempty" yaml:"b64,omitempty"`
	Filename string            `json:"filename,omitempty" yaml:"filename,omitempty"`
	Tags     []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ColorLabel is the color tag a provider assigns to an image.
type ColorLabel string

const (
	ColorNone   ColorLabel = "none"
	ColorRed    ColorLabel = "red"
	ColorYellow ColorLabel = "yellow"
	ColorGreen  ColorLabel = "green"
	ColorBlue   ColorLabel = "blue"
	ColorPurple ColorLabel = "purple"
	ColorWhite  ColorLabel = "white"
	ColorBlack  ColorLabel = "black"
)

// MaxStarRating is the highest star rating a provider may assign.
const MaxStarRating = 5

// Rating is the structured output a provider returns for one image.
type Rating struct {
	ImageID     string     `json:"imageId"`
	StarRating  int        `json:"starRating"`
	ColorLabel  ColorLabel `json:"colorLabel,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Confidence  float64    `json:"aiConfidence,omitempty"`
}

// Validate checks the rating is attributable and within range.
func (r Rating) Validate() error {
	if r.ImageID == "" {
		return fmt.Errorf("rating has no image id")
	}
	if r.StarRating < 0 || r.StarRating > MaxStarRating {
		return fmt.Errorf("rating for %s: star rating %d out of range 0..%d", r.ImageID, r.StarRating, MaxStarRating)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rating for %s: confidence %.2f out of range 0..1", r.ImageID, r.Confidence)
	}
	switch r.ColorLabel {
	case "", ColorNone, ColorRed, ColorYellow, ColorGreen, ColorBlue, ColorPurple, ColorWhite, ColorBlack:
		return nil
	default:
		return fmt.Errorf("rating for %s: unknown color label %q", r.ImageID, r.ColorLabel)
	}
}
