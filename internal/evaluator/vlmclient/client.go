// Package vlmclient is a minimal OpenAI-compatible chat/completions
// client for vision-language scoring: one request shape, one response
// shape, nothing provider-specific beyond the image content parts.
package vlmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrUnavailable = errors.New("vlm provider unavailable")

// DefaultMinInterval spaces requests at 4 per second per process, a
// best-effort share of the provider's global quota.
const DefaultMinInterval = 250 * time.Millisecond

type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client

	// MinInterval is the minimum spacing between requests from this
	// client. Zero disables pacing.
	MinInterval time.Duration

	paceMu      sync.Mutex
	nextAllowed time.Time
}

func New(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Model:       model,
		HTTP:        &http.Client{Timeout: 60 * time.Second},
		MinInterval: DefaultMinInterval,
	}
}

// pace reserves the next send slot and blocks until it arrives.
func (c *Client) pace(ctx context.Context) error {
	if c.MinInterval <= 0 {
		return nil
	}
	c.paceMu.Lock()
	now := time.Now()
	slot := c.nextAllowed
	if slot.Before(now) {
		slot = now
	}
	c.nextAllowed = slot.Add(c.MinInterval)
	c.paceMu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// AnalyzeImages sends one or more image URLs (presigned GET URLs into
// the object store, or data: URIs) alongside a text prompt to the
// configured vision model.
func (c *Client) AnalyzeImages(ctx context.Context, imageURLs []string, prompt string) (Response, error) {
	if err := c.pace(ctx); err != nil {
		return Response{}, err
	}
	content := make([]contentPart, 0, len(imageURLs)+1)
	for _, u := range imageURLs {
		content = append(content, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u, Detail: "low"}})
	}
	content = append(content, contentPart{Type: "text", Text: prompt})

	body, err := json.Marshal(chatRequest{
		Model:     c.Model,
		Messages:  []message{{Role: "user", Content: content}},
		MaxTokens: 1024,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal vlm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Response{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("vlm request failed: status %d: %s", resp.StatusCode, string(b))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Response{}, fmt.Errorf("decode vlm response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Response{}, fmt.Errorf("vlm response had no choices")
	}
	return Response{
		Content:          decoded.Choices[0].Message.Content,
		Model:            decoded.Model,
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
	}, nil
}
