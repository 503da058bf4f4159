// Package generation talks to the external text-generation service using the
// messages API wire format.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apphttp "github.com/kosarica/chunk-service/internal/http"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/settings"
)

// APIVersion is sent in the anthropic-version header
const APIVersion = "2023-06-01"

// Message is one turn of the conversation sent to the service
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body posted to the service
type Request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

// ServiceError is a non-2xx answer from the service
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again
func (e *ServiceError) Retryable() bool {
	return ratelimit.IsRetryableStatus(e.StatusCode)
}

// Result is the outcome of one request that reached the service
type Result struct {
	StatusCode int
	Text       string
	Hints      ratelimit.Hints
}

// Poster sends JSON documents
type Poster interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, payload any, timeout time.Duration) (*apphttp.Response, error)
}

// Client sends one chunk per request. It never retries.
type Client struct {
	poster  Poster
	timeout time.Duration
}

// NewClient creates a client with a per-request timeout
func NewClient(poster Poster, timeout time.Duration) *Client {
	return &Client{poster: poster, timeout: timeout}
}

// Generate sends text as a single user message.
// When the service answered, the returned Result is non-nil even if err is a
// *ServiceError, so callers can read the rate limit hints. Any other error means
// the request did not get a response.
func (c *Client) Generate(ctx context.Context, cfg settings.APIConfig, text string) (*Result, error) {
	req := Request{
		Model:     cfg.Model,
		MaxTokens: cfg.TokenLimit,
		Messages:  []Message{{Role: "user", Content: text}},
	}
	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": APIVersion,
	}

	resp, err := c.poster.PostJSON(ctx, cfg.BaseURL, headers, req, c.timeout)
	if err != nil {
		return nil, err
	}

	hints, _ := ratelimit.ParseHints(resp.Header)
	result := &Result{StatusCode: resp.StatusCode, Hints: hints}

	if !ratelimit.IsSuccessStatus(resp.StatusCode) {
		return result, &ServiceError{StatusCode: resp.StatusCode, Message: errorMessage(resp)}
	}

	out, err := ExtractText(resp.Body)
	if err != nil {
		return result, &ServiceError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	result.Text = out
	return result, nil
}

type contentBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// ExtractText pulls the generated text out of a success body. The content field
// is either a plain string or a list of blocks whose text fields are joined in order.
func ExtractText(body []byte) (string, error) {
	var envelope struct {
		Content    json.RawMessage `json:"content"`
		Completion *string         `json:"completion"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("malformed response body: %w", err)
	}

	raw := strings.TrimSpace(string(envelope.Content))
	switch {
	case raw == "" || raw == "null":
		if envelope.Completion != nil {
			return *envelope.Completion, nil
		}
		return "", fmt.Errorf("response has no content")
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(envelope.Content, &s); err != nil {
			return "", fmt.Errorf("malformed content: %w", err)
		}
		return s, nil
	case raw[0] == '[':
		var blocks []contentBlock
		if err := json.Unmarshal(envelope.Content, &blocks); err != nil {
			return "", fmt.Errorf("malformed content blocks: %w", err)
		}
		var sb strings.Builder
		for _, b := range blocks {
			if b.Text != nil {
				sb.WriteString(*b.Text)
			}
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("unsupported content type")
}

func errorMessage(resp *apphttp.Response) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "unexpected status"
}
