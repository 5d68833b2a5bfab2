package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

const (
	defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"
	defaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 512
)

// Operation names a Gmail API call.
type Operation string

const (
	OpMessagesList Operation = "messages.list"
	OpMessagesGet  Operation = "messages.get"
)

// RequestObserver is called once per completed HTTP exchange. status is 0
// for transport failures.
type RequestObserver func(op Operation, status int)

// Client implements API over the Gmail REST interface.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
	logger     *slog.Logger
	baseURL    string
	userID     string // "me" for authenticated user
	observe    RequestObserver
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBaseURL points the client at a different API root (used in tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
		}
	}
}

// WithObserver registers a callback for request outcomes.
func WithObserver(fn RequestObserver) ClientOption {
	return func(c *Client) {
		c.observe = fn
	}
}

// NewClient creates a new Gmail API client. tokens is asked for a valid
// access token before each request.
func NewClient(tokens TokenProvider, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		tokens:     tokens,
		logger:     slog.Default(),
		baseURL:    defaultBaseURL,
		userID:     "me",
		observe:    func(Operation, int) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request performs one authenticated GET and classifies the outcome.
// Errors from the TokenProvider are returned unchanged.
func (c *Client) request(ctx context.Context, op Operation, path string) ([]byte, error) {
	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, 0)
		return nil, &FetchFailedError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.observe(op, resp.StatusCode)
	if err != nil {
		return nil, &FetchFailedError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Debug("rate limited", "op", op, "path", path)
		return nil, &RateLimitedError{Op: op, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusForbidden && isRateLimitError(respBody):
		// Gmail reports per-user quota exhaustion as 403 rateLimitExceeded.
		c.logger.Debug("quota exceeded", "op", op, "path", path)
		return nil, &RateLimitedError{Op: op, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		return nil, &FetchFailedError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}
}

// isRateLimitError checks if a 403 response is actually a rate limit error.
// Gmail returns 403 with "rateLimitExceeded" for quota exceeded instead of 429.
func isRateLimitError(body []byte) bool {
	return bytes.Contains(body, []byte("rateLimitExceeded")) ||
		bytes.Contains(body, []byte("RATE_LIMIT_EXCEEDED")) ||
		bytes.Contains(body, []byte("Quota exceeded")) ||
		bytes.Contains(body, []byte("userRateLimitExceeded"))
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(bytes.TrimSpace(b))
}

// ListMessages returns message IDs matching the query.
func (c *Client) ListMessages(ctx context.Context, query, pageToken string, maxResults int) (*MessageListResponse, error) {
	params := url.Values{}
	if maxResults > 0 {
		params.Set("maxResults", strconv.Itoa(maxResults))
	}
	if query != "" {
		params.Set("q", query)
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	path := fmt.Sprintf("/users/%s/messages?%s", c.userID, params.Encode())
	data, err := c.request(ctx, OpMessagesList, path)
	if err != nil {
		return nil, err
	}

	var resp gmailapi.ListMessagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	messages := make([]MessageID, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.Id == "" {
			continue
		}
		messages = append(messages, MessageID{ID: m.Id, ThreadID: m.ThreadId})
	}

	return &MessageListResponse{
		Messages:           messages,
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}, nil
}

// GetMessage fetches a single message in full format.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*RawMessage, error) {
	path := fmt.Sprintf("/users/%s/messages/%s?format=full", c.userID, url.PathEscape(messageID))
	data, err := c.request(ctx, OpMessagesGet, path)
	if err != nil {
		return nil, err
	}

	var resp gmailapi.Message
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return fromAPIMessage(&resp), nil
}

// Ensure Client implements API interface.
var _ API = (*Client)(nil)
