package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultModel   = "claude-3-5-sonnet-20241022"
	DefaultBaseURL = "https://api.anthropic.com"

	anthropicVersion = "2023-06-01"
	statusOverloaded = 529
)

// CompleteOptions are the sampling parameters of one model call.
type CompleteOptions struct {
	Temperature float64
	MaxTokens   int
}

// Model produces a text completion for a single-turn prompt.
type Model interface {
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, prompt string, opts CompleteOptions) (string, error)

func (f ModelFunc) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	return f(ctx, prompt, opts)
}

// AnthropicClient calls the Anthropic Messages API. Calls go through a
// circuit breaker that only counts server-side failures.
type AnthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// ClientOption configures an AnthropicClient.
type ClientOption func(*AnthropicClient)

// WithModel sets the model id.
func WithModel(model string) ClientOption {
	return func(c *AnthropicClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the API base URL (for tests).
func WithBaseURL(url string) ClientOption {
	return func(c *AnthropicClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *AnthropicClient) { c.httpClient = hc }
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *AnthropicClient) { c.logger = logger }
}

// NewAnthropicClient creates a client for the given API key.
func NewAnthropicClient(apiKey string, opts ...ClientOption) *AnthropicClient {
	c := &AnthropicClient{
		apiKey:     apiKey,
		model:      DefaultModel,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "anthropic-messages",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// ModelName returns the configured model id.
func (c *AnthropicClient) ModelName() string { return c.model }

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// callResult carries client-side failures out of the breaker without
// counting them against it.
type callResult struct {
	text string
	err  error
}

// Complete sends prompt as a single user message and returns the text of
// the first content block.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		text, err := c.send(ctx, prompt, opts)
		if err != nil && !tripsBreaker(err) {
			return callResult{err: err}, nil
		}
		return callResult{text: text}, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &ModelError{Kind: KindOverloaded, Message: "model endpoint circuit open", Err: err}
		}
		return "", err
	}
	res := out.(callResult)
	return res.text, res.err
}

func (c *AnthropicClient) send(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	c.logger.Debug("calling model", "model", c.model, "max_tokens", opts.MaxTokens, "prompt_bytes", len(prompt))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ModelError{Kind: KindAPI, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ModelError{Kind: KindAPI, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(resp.StatusCode, data)
	}

	var mr messagesResponse
	if err := json.Unmarshal(data, &mr); err != nil {
		return "", &ModelError{Kind: KindInvalidResponse, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	if len(mr.Content) == 0 || mr.Content[0].Type != "text" {
		return "", &ModelError{Kind: KindInvalidResponse, StatusCode: resp.StatusCode, Message: "unexpected response type from model"}
	}
	return mr.Content[0].Text, nil
}

func classifyStatus(status int, body []byte) *ModelError {
	msg := http.StatusText(status)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}

	switch status {
	case http.StatusTooManyRequests:
		return &ModelError{Kind: KindRateLimited, StatusCode: status, Message: "rate limit exceeded: " + msg}
	case statusOverloaded:
		return &ModelError{Kind: KindOverloaded, StatusCode: status, Message: "service overloaded: " + msg}
	default:
		return &ModelError{Kind: KindAPI, StatusCode: status, Message: msg}
	}
}

// tripsBreaker reports whether err indicates the endpoint itself is
// unhealthy: transport failures, throttling and 5xx.
func tripsBreaker(err error) bool {
	var me *ModelError
	if !errors.As(err, &me) {
		return false
	}
	if me.Kind == KindInvalidResponse {
		return false
	}
	return me.StatusCode == 0 || me.StatusCode == http.StatusTooManyRequests || me.StatusCode >= 500
}

var _ Model = (*AnthropicClient)(nil)
