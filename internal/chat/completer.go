package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codelyst/projmart/internal/config"
)

// Upstream errors
var (
	ErrUpstreamError   = errors.New("completion upstream returned an error")
	ErrUpstreamTimeout = errors.New("completion upstream timed out")
)

// CompletionRequest is one user turn sent to the model upstream
type CompletionRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
}

// CompletionResponse is the model's reply
type CompletionResponse struct {
	Reply string `json:"reply"`
	Model string `json:"model,omitempty"`
}

// Completer produces a model reply for a prompt. The HTTP implementation
// talks to the configured upstream; tests substitute their own.
type Completer interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// HTTPCompleter forwards completion requests to an OpenAI-compatible
// upstream over HTTP
type HTTPCompleter struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPCompleter creates a completer for the configured upstream
func NewHTTPCompleter(cfg *config.ChatConfig) *HTTPCompleter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCompleter{
		url:    cfg.CompletionURL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Complete sends the prompt upstream and decodes the reply
func (c *HTTPCompleter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrUpstreamTimeout
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrUpstreamTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamError, resp.StatusCode, snippet)
	}

	var out CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	return &out, nil
}
