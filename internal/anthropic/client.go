// Package anthropic is a minimal client for the Anthropic Messages API.
// It issues one synchronous completion per call; streaming, retries, and
// batching are intentionally absent.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the hosted Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// messagesPath is the chat completions path.
	messagesPath = "/v1/messages"

	// apiVersion is the anthropic-version header value.
	apiVersion = "2023-06-01"

	// DefaultMaxTokens caps the reply length for chat completions.
	DefaultMaxTokens = 4096

	// probeModel and probeMaxTokens define the minimal key-validation call.
	probeModel     = "claude-3-5-haiku-latest"
	probeMaxTokens = 10
)

var (
	// ErrInvalidAPIKey is returned when the API rejects the key.
	ErrInvalidAPIKey = errors.New("anthropic: invalid api key")

	// ErrRateLimited is returned when the API reports a rate limit.
	ErrRateLimited = errors.New("anthropic: rate limit exceeded")

	// ErrConnection is returned when the API cannot be reached.
	ErrConnection = errors.New("anthropic: connection failed")
)

// APIError is a non-auth, non-rate-limit API failure.
type APIError struct {
	Status  int    // HTTP status code, 0 for decode failures.
	Message string // Provider-supplied or synthesized message.
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("anthropic: api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("anthropic: api error: %s", e.Message)
}

// Message is a single chat turn sent to the API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls the Anthropic Messages API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client for the given base URL.
// An empty baseURL selects the hosted endpoint.
func NewClient(baseURL string) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	return &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// messagesRequest is the Messages API request body.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

// messagesResponse is the subset of the response body the client reads.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// errorResponse is the API error envelope.
type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the conversation and returns the assistant reply text.
func (c *Client) Complete(ctx context.Context, apiKey, model string, messages []Message) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrInvalidAPIKey
	}
	if len(messages) == 0 {
		return "", &APIError{Message: "no messages to send"}
	}

	body := messagesRequest{
		Model:     model,
		MaxTokens: DefaultMaxTokens,
		Messages:  messages,
	}
	resp, errDo := c.do(ctx, apiKey, body)
	if errDo != nil {
		return "", errDo
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", &APIError{Message: "empty response content"}
}

// TestConnection validates the key with a minimal probe request.
func (c *Client) TestConnection(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return ErrInvalidAPIKey
	}
	body := messagesRequest{
		Model:     probeModel,
		MaxTokens: probeMaxTokens,
		Messages:  []Message{{Role: "user", Content: "Hi"}},
	}
	_, errDo := c.do(ctx, apiKey, body)
	return errDo
}

// do performs one Messages API call and maps failures to the error taxonomy.
func (c *Client) do(ctx context.Context, apiKey string, body messagesRequest) (*messagesResponse, error) {
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(payload))
	if errReq != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	data, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, errRead)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidAPIKey
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 400:
		var apiErr errorResponse
		message := resp.Status
		if errDecode := json.Unmarshal(data, &apiErr); errDecode == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		return nil, &APIError{Status: resp.StatusCode, Message: message}
	}

	var out messagesResponse
	if errDecode := json.Unmarshal(data, &out); errDecode != nil {
		return nil, &APIError{Message: "malformed response body"}
	}
	return &out, nil
}
