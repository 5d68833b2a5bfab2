// Package gmail lists and fetches Gmail messages for ingestion.
package gmail

import (
	"context"
	"strings"
)

// TokenProvider supplies a non-expired access token. It is consulted before
// every outbound request.
type TokenProvider interface {
	EnsureValid(ctx context.Context) (string, error)
}

// API defines the mailbox operations used by ingestion.
// This interface enables mocking for tests without hitting the real API.
type API interface {
	// ListMessages returns message IDs matching the query.
	// Use pageToken for pagination. Returns next page token if more results exist.
	ListMessages(ctx context.Context, query, pageToken string, maxResults int) (*MessageListResponse, error)

	// GetMessage fetches a single message with its full part tree.
	GetMessage(ctx context.Context, messageID string) (*RawMessage, error)
}

// MessageListResponse contains a page of message IDs.
type MessageListResponse struct {
	Messages           []MessageID
	NextPageToken      string
	ResultSizeEstimate int64
}

// MessageID represents a message reference from list operations.
type MessageID struct {
	ID       string
	ThreadID string
}

// Header is a single message header.
type Header struct {
	Name  string
	Value string
}

// Part is a node in a message's MIME tree: either a *LeafPart or a *Multipart.
type Part interface {
	MIMEType() string
	isPart()
}

// LeafPart carries content. Data is base64url encoded exactly as delivered
// by the API and may be empty (attachments are fetched separately).
type LeafPart struct {
	MimeType string
	Filename string
	Headers  []Header
	Data     string
}

// Multipart groups child parts.
type Multipart struct {
	MimeType string
	Headers  []Header
	Parts    []Part
}

func (p *LeafPart) MIMEType() string  { return p.MimeType }
func (p *Multipart) MIMEType() string { return p.MimeType }

func (*LeafPart) isPart()  {}
func (*Multipart) isPart() {}

// RawMessage is a message as returned by the API, before decoding.
type RawMessage struct {
	ID           string
	ThreadID     string
	LabelIDs     []string
	Snippet      string
	HistoryID    uint64
	InternalDate int64 // Unix milliseconds
	SizeEstimate int64
	Headers      []Header
	Payload      Part
}

// Header returns the first header value matching name, case-insensitively,
// or "" if absent.
func (m *RawMessage) Header(name string) string {
	return HeaderValue(m.Headers, name)
}

// HasLabel reports whether the message carries the label.
func (m *RawMessage) HasLabel(label string) bool {
	for _, l := range m.LabelIDs {
		if l == label {
			return true
		}
	}
	return false
}

// HeaderValue returns the first header value matching name, case-insensitively.
func HeaderValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
