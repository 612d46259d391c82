package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionServer serves canned chat completion replies.
func completionServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-5",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeAPIError(w http.ResponseWriter, status int, retryAfter string) {
	w.Header().Set("Content-Type", "application/json")
	if retryAfter != "" {
		w.Header().Set("Retry-After", retryAfter)
	}
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error": {"message": "status %d", "type": "test_error"}}`, status)
}

func newTestAdapter(t *testing.T, srv *httptest.Server) *OpenAIAdapter {
	t.Helper()
	a, err := NewOpenAIAdapter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "gpt-5"})
	require.NoError(t, err)
	return a
}

// Compile-time interface check.
var _ Adapter = (*OpenAIAdapter)(nil)

func TestNewOpenAIAdapter_RequiresKey(t *testing.T) {
	_, err := NewOpenAIAdapter(OpenAIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestOpenAIAdapter_ProcessSingleImage(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, "gpt-5", body["model"])
		writeCompletion(w, "Here you go:\n```json\n{\"starRating\": 4, \"colorLabel\": \"green\", \"title\": \"Dusk\"}\n```")
	})
	a := newTestAdapter(t, srv)

	r, err := a.ProcessSingleImage(context.Background(), SingleImageRequest{
		Image:        Image{ID: "img-1", URL: "https://example.com/1.jpg"},
		Prompt:       "rate it",
		SystemPrompt: "you are a photo editor",
	})

	require.NoError(t, err)
	assert.Equal(t, "img-1", r.ImageID, "missing image id should default to the request image")
	assert.Equal(t, 4, r.StarRating)
	assert.Equal(t, ColorGreen, r.ColorLabel)
	assert.Equal(t, "Dusk", r.Title)
}

func TestOpenAIAdapter_ProcessSingleImage_RateLimited(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, _ map[string]any) {
		writeAPIError(w, http.StatusTooManyRequests, "3")
	})
	a := newTestAdapter(t, srv)

	_, err := a.ProcessSingleImage(context.Background(), SingleImageRequest{Image: Image{ID: "x"}, Prompt: "p"})

	require.Error(t, err)
	f := Classify(err)
	assert.Equal(t, RateLimited, f.Kind)
	assert.Equal(t, 429, f.StatusCode)
	assert.Equal(t, 3*time.Second, f.RetryAfter)
}

func TestOpenAIAdapter_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   FailureKind
	}{
		{http.StatusInternalServerError, Transient},
		{http.StatusServiceUnavailable, Transient},
		{http.StatusBadRequest, Permanent},
		{http.StatusUnauthorized, Permanent},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := completionServer(t, func(w http.ResponseWriter, _ map[string]any) {
				writeAPIError(w, tt.status, "")
			})
			a := newTestAdapter(t, srv)

			_, err := a.ProcessSingleImage(context.Background(), SingleImageRequest{Image: Image{ID: "x"}, Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.want, Classify(err).Kind)
		})
	}
}

func TestOpenAIAdapter_RateLimitMessageOnOtherStatus(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusForbidden, "Quota exceeded for this project"},
		{http.StatusBadRequest, "Rate limit reached for requests"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := completionServer(t, func(w http.ResponseWriter, _ map[string]any) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error": {"message": %q, "type": "requests"}}`, tt.message)
			})
			a := newTestAdapter(t, srv)

			_, err := a.ProcessSingleImage(context.Background(), SingleImageRequest{Image: Image{ID: "x"}, Prompt: "p"})

			require.Error(t, err)
			f := Classify(err)
			assert.Equal(t, RateLimited, f.Kind)
			assert.Equal(t, tt.status, f.StatusCode)
		})
	}
}

func TestOpenAIAdapter_ProcessSingleImage_OutOfRangeRating(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, `{"imageId": "x", "starRating": 9}`)
	})
	a := newTestAdapter(t, srv)

	_, err := a.ProcessSingleImage(context.Background(), SingleImageRequest{Image: Image{ID: "x"}, Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, Transient, Classify(err).Kind)
}

func TestOpenAIAdapter_SubmitGroup(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, body map[string]any) {
		writeCompletion(w, `{"ratings": [{"imageId": "a", "starRating": 1}, {"imageId": "b", "starRating": 5}]}`)
	})
	a := newTestAdapter(t, srv)

	res, err := a.SubmitGroup(context.Background(), GroupRequest{
		ProviderID: "openai-gpt-5",
		Images:     []Image{{ID: "a", URL: "https://example.com/a.jpg"}, {ID: "b", B64: "aGVsbG8="}},
		Prompt:     "rate",
	})

	require.NoError(t, err)
	assert.True(t, res.OK)
	require.Len(t, res.Ratings, 2)
	assert.Equal(t, "b", res.Ratings[1].ImageID)
	assert.Equal(t, 5, res.Ratings[1].StarRating)
}

func TestOpenAIAdapter_SubmitGroup_RateLimitedCarriesHint(t *testing.T) {
	var calls atomic.Int32
	srv := completionServer(t, func(w http.ResponseWriter, _ map[string]any) {
		calls.Add(1)
		writeAPIError(w, http.StatusTooManyRequests, "2")
	})
	a := newTestAdapter(t, srv)

	res, err := a.SubmitGroup(context.Background(), GroupRequest{Images: []Image{{ID: "a"}}, Prompt: "rate"})

	require.Error(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 2*time.Second, res.RetryAfter)
	assert.Equal(t, int32(1), calls.Load(), "SDK retries must be disabled")
}

func TestOpenAIAdapter_SubmitGroup_NoRatings(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, _ map[string]any) {
		writeCompletion(w, "I cannot rate these images.")
	})
	a := newTestAdapter(t, srv)

	res, err := a.SubmitGroup(context.Background(), GroupRequest{Images: []Image{{ID: "a"}}, Prompt: "rate"})
	require.Error(t, err)
	assert.False(t, res.OK)
}
