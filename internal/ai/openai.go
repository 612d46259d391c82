package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/CodexForgeBR/cull-engine/internal/parser"
	"github.com/CodexForgeBR/cull-engine/internal/ratelimit"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-5"

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIAdapter rates images through the OpenAI chat completions API.
// The SDK's own retries are disabled; retry policy belongs to the caller.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	now    func() time.Time
}

// NewOpenAIAdapter creates an adapter. Returns an error if no API key is set.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OpenAI API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		now:    time.Now,
	}, nil
}

// ProcessSingleImage rates one image.
func (a *OpenAIAdapter) ProcessSingleImage(ctx context.Context, req SingleImageRequest) (Rating, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.TextContentPart(fmt.Sprintf("Image id: %s. Reply with one JSON object with imageId, starRating (0-5), colorLabel, title, description, tags.", req.Image.ID)),
	}
	if part, ok := imagePart(req.Image); ok {
		parts = append(parts, part)
	}

	content, err := a.complete(ctx, req.SystemPrompt, parts)
	if err != nil {
		return Rating{}, err
	}

	var r Rating
	found, err := parser.DecodeJSON(content, "starRating", &r)
	if err != nil || !found {
		return Rating{}, NewTransient(0, fmt.Errorf("no rating in reply for %s: %v", req.Image.ID, err))
	}
	if r.ImageID == "" {
		r.ImageID = req.Image.ID
	}
	if err := r.Validate(); err != nil {
		return Rating{}, NewTransient(0, err)
	}
	return r, nil
}

// SubmitGroup rates a group of images in one call. A throttled or failed
// call comes back as a not-OK result together with the classified failure.
func (a *OpenAIAdapter) SubmitGroup(ctx context.Context, req GroupRequest) (GroupResult, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.TextContentPart(`Reply with one JSON object {"ratings": [...]} holding one rating per image (imageId, starRating 0-5, colorLabel, title, description, tags).`),
	}
	for _, img := range req.Images {
		parts = append(parts, openai.TextContentPart("Image id: "+img.ID))
		if part, ok := imagePart(img); ok {
			parts = append(parts, part)
		}
	}

	content, err := a.complete(ctx, "", parts)
	if err != nil {
		f := Classify(err)
		return GroupResult{OK: false, RetryAfter: f.RetryAfter}, f
	}

	var reply struct {
		Ratings []Rating `json:"ratings"`
	}
	found, err := parser.DecodeJSON(content, "ratings", &reply)
	if err != nil || !found {
		return GroupResult{OK: false}, NewTransient(0, fmt.Errorf("no ratings in group reply: %v", err))
	}

	ratings := make([]Rating, 0, len(reply.Ratings))
	for _, r := range reply.Ratings {
		if err := r.Validate(); err != nil {
			return GroupResult{OK: false}, NewTransient(0, err)
		}
		ratings = append(ratings, r)
	}
	return GroupResult{OK: true, Ratings: ratings}, nil
}

func (a *OpenAIAdapter) complete(ctx context.Context, systemPrompt string, parts []openai.ChatCompletionContentPartUnionParam) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(parts))

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
	})
	if err != nil {
		return "", a.failureFrom(err)
	}
	if len(completion.Choices) == 0 {
		return "", NewTransient(0, errors.New("empty completion"))
	}
	return completion.Choices[0].Message.Content, nil
}

// failureFrom maps SDK errors onto the failure taxonomy: 429 or a
// rate-limit message is RateLimited, 5xx and transport errors are
// Transient, other 4xx are Permanent.
func (a *OpenAIAdapter) failureFrom(err error) *Failure {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		if ratelimit.IsRateLimitMessage(err.Error()) {
			return &Failure{Kind: RateLimited, Err: err}
		}
		return NewTransient(0, err)
	}

	status := apiErr.StatusCode
	switch {
	case ratelimit.IsRateLimitStatus(status), ratelimit.IsRateLimitMessage(apiErr.Message):
		var retryAfter time.Duration
		if apiErr.Response != nil {
			retryAfter, _ = ratelimit.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), a.now())
		}
		return &Failure{Kind: RateLimited, StatusCode: status, RetryAfter: retryAfter, Err: err}
	case status >= http.StatusInternalServerError, status == http.StatusRequestTimeout:
		return NewTransient(status, err)
	case status >= http.StatusBadRequest:
		return NewPermanent(status, err)
	default:
		return NewTransient(status, err)
	}
}

func imagePart(img Image) (openai.ChatCompletionContentPartUnionParam, bool) {
	url := img.URL
	if url == "" && img.B64 != "" {
		url = "data:image/jpeg;base64," + img.B64
	}
	if url == "" {
		return openai.ChatCompletionContentPartUnionParam{}, false
	}
	return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}), true
}
