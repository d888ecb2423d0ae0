// Package llm provides a thin, OpenAI-compatible LLM client used for the
// two model calls the coordinator makes per dispatch: query embedding and
// chat completion (used by both the selector and the parameter extractor).
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client talks to a single configured OpenAI-compatible backend (LMStudio by
// default). Unlike a multi-model router, it has no fallback chain or health
// tracking: a dispatch request has exactly one LLM backend to call, and a
// failure there is either retried or surfaced, never routed elsewhere.
type Client struct {
	provider    Provider
	baseURL     string
	chatPath    string
	embedPath   string
	chatModel   string
	embedModel  string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a chat completion request.
type Request struct {
	Messages []Message

	// Temperature controls randomness. nil uses the backend default, 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the backend default.
	MaxTokens int
}

// TokenUsage represents token consumption details for an LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID uniquely identifies this LLM call for audit correlation.
	RequestID string

	Content      string
	Model        string
	Usage        TokenUsage
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = c }
}

func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) { client.retryConfig = cfg }
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) { client.logger = logger }
}

func WithProvider(name string) ClientOption {
	return func(client *Client) {
		if p := GetProvider(name); p != nil {
			client.provider = p
		}
	}
}

func WithChatPath(path string) ClientOption {
	return func(client *Client) {
		if path != "" {
			client.chatPath = path
		}
	}
}

func WithEmbedPath(path string) ClientOption {
	return func(client *Client) {
		if path != "" {
			client.embedPath = path
		}
	}
}

func WithChatModel(model string) ClientOption {
	return func(client *Client) { client.chatModel = model }
}

func WithEmbedModel(model string) ClientOption {
	return func(client *Client) { client.embedModel = model }
}

// NewClient creates a client against baseURL using the default
// OpenAI-compatible ("ollama") provider. baseURL corresponds to LMSTUDIO_URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		provider:  GetProvider("ollama"),
		baseURL:   baseURL,
		chatPath:  "/v1/chat/completions",
		embedPath: "/v1/embeddings",
		retryConfig: RetryConfig{
			MaxAttempts:       3,
			BackoffBase:       2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
		},
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a chat completion request, retrying transient failures.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	if c.provider == nil {
		return nil, NewFatalError(fmt.Errorf("no LLM provider configured"))
	}

	requestID := uuid.New().String()

	resp, err := c.withRetry(ctx, func() (*Response, error) {
		return c.doChatRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	resp.RequestID = requestID
	return resp, nil
}

// Embed sends an embeddings request for one or more input strings.
func (c *Client) Embed(ctx context.Context, input []string) ([][]float64, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("at least one input string is required")
	}
	if c.provider == nil {
		return nil, NewFatalError(fmt.Errorf("no LLM provider configured"))
	}

	var vectors [][]float64
	_, err := c.withRetry(ctx, func() (*Response, error) {
		v, err := c.doEmbedRequest(ctx, input)
		if err != nil {
			return nil, err
		}
		vectors = v
		return &Response{}, nil
	})
	return vectors, err
}

// withRetry runs fn, retrying transient errors with exponential backoff and jitter.
func (c *Client) withRetry(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if IsFatal(err) {
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("LLM request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, lastErr
}

// calculateBackoff computes exponential backoff duration with jitter.
// Jitter prevents thundering herd when multiple requests retry simultaneously.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

func (c *Client) doChatRequest(ctx context.Context, req Request) (*Response, error) {
	url := c.provider.BuildChatURL(c.baseURL, c.chatPath)

	body, err := c.provider.BuildChatRequestBody(c.chatModel, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build chat request body: %w", err))
	}

	c.logger.Debug("sending chat completion request", "url", url, "model", c.chatModel, "messages", len(req.Messages))

	respBody, err := c.send(ctx, url, body)
	if err != nil {
		return nil, err
	}

	return c.provider.ParseChatResponse(respBody, c.chatModel)
}

func (c *Client) doEmbedRequest(ctx context.Context, input []string) ([][]float64, error) {
	url := c.provider.BuildEmbedURL(c.baseURL, c.embedPath)

	body, err := c.provider.BuildEmbedRequestBody(c.embedModel, input)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build embed request body: %w", err))
	}

	c.logger.Debug("sending embeddings request", "url", url, "model", c.embedModel, "inputs", len(input))

	respBody, err := c.send(ctx, url, body)
	if err != nil {
		return nil, err
	}

	return c.provider.ParseEmbedResponse(respBody)
}

// send executes a single HTTP POST and returns the raw response body.
func (c *Client) send(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	c.provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusServiceUnavailable,
		statusCode == http.StatusBadGateway,
		statusCode == http.StatusGatewayTimeout,
		statusCode >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}
