package vlmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, "test-key", "test-model")
	c.MinInterval = 0
	return c
}

func TestAnalyzeImagesParsesResponse(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 3 {
			t.Errorf("content parts = %d, want 2 images + 1 text", len(req.Messages[0].Content))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model-2024",
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"score": 1}`}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
		})
	})

	resp, err := c.AnalyzeImages(context.Background(), []string{"data:image/jpeg;base64,a", "data:image/jpeg;base64,b"}, "score this")
	if err != nil {
		t.Fatalf("AnalyzeImages() error = %v", err)
	}
	if resp.Content != `{"score": 1}` || resp.Model != "test-model-2024" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAnalyzeImagesServerErrorIsUnavailable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	_, err := c.AnalyzeImages(context.Background(), nil, "score this")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("AnalyzeImages() error = %v, want ErrUnavailable", err)
	}
}

func TestAnalyzeImagesClientErrorIsNotUnavailable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	_, err := c.AnalyzeImages(context.Background(), nil, "score this")
	if err == nil || errors.Is(err, ErrUnavailable) {
		t.Fatalf("AnalyzeImages() error = %v, want non-unavailable error", err)
	}
}

func TestPaceSpacesRequests(t *testing.T) {
	c := &Client{MinInterval: 20 * time.Millisecond}
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := c.pace(context.Background()); err != nil {
			t.Fatalf("pace() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("three paced calls took %v, want >= 40ms", elapsed)
	}
}

func TestPaceHonorsCancellation(t *testing.T) {
	c := &Client{MinInterval: time.Minute}
	if err := c.pace(context.Background()); err != nil {
		t.Fatalf("first pace() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.pace(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("pace() error = %v, want context.Canceled", err)
	}
}
