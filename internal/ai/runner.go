package ai

import (
	"context"
	"time"
)

// SingleImageRequest is the input for rating one image.
type SingleImageRequest struct {
	Image        Image
	Prompt       string
	SystemPrompt string
}

// Adapter rates one image at a time against a single provider.
//
// Errors returned by an Adapter should be *Failure values so callers can
// decide the retry policy without re-inspecting the error text.
type Adapter interface {
	ProcessSingleImage(ctx context.Context, req SingleImageRequest) (Rating, error)
}

// GroupRequest is one provider call covering a contiguous group of images.
type GroupRequest struct {
	ProviderID string
	Images     []Image
	Prompt     string
}

// GroupResult reports the outcome of a group call. When OK is false,
// RetryAfter carries the provider's hint (zero means none).
type GroupResult struct {
	OK         bool
	RetryAfter time.Duration
	Ratings    []Rating
}

// SubmitFunc submits one group of images to a provider.
type SubmitFunc func(ctx context.Context, req GroupRequest) (GroupResult, error)
