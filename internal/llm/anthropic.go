// ABOUTME: Anthropic Messages API client used for chat completions.
// ABOUTME: Speaks the 2023-06-01 wire format with x-api-key authentication.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// APIError is a structured error returned by the provider. Type carries the
// provider's error classification (invalid_request_error, overloaded_error, ...).
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("anthropic: %s (%s, status %d)", e.Message, e.Type, e.StatusCode)
	}
	return fmt.Sprintf("anthropic: %s (status %d)", e.Message, e.StatusCode)
}

// Client calls the Anthropic Messages API. It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API base URL. Useful for tests and proxies.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// NewClient creates a Messages API client.
func NewClient(apiKey, model string, maxTokens int, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger.With("component", "llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
	Tools     []Tool    `json:"tools,omitempty"`
	Metadata  *metadata `json:"metadata,omitempty"`
}

type metadata struct {
	UserID string `json:"user_id,omitempty"`
}

type messagesResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// Complete sends a conversation to the model and returns the response content
// blocks. tools may be nil to request a plain-text completion. userID is an
// opaque correlation tag forwarded in request metadata; empty means no tag.
func (c *Client) Complete(ctx context.Context, messages []Message, tools []Tool, userID string) ([]ContentBlock, error) {
	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
		Tools:     tools,
	}
	if userID != "" {
		reqBody.Metadata = &metadata{UserID: userID}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling messages API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug("completion finished",
		"model", c.model,
		"stop_reason", out.StopReason,
		"blocks", len(out.Content),
		"duration", time.Since(start))

	return out.Content, nil
}

func (c *Client) decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.StatusCode = resp.StatusCode
		return env.Error
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
