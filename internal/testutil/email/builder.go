// Package email builds Gmail-shaped raw messages for tests.
package email

import (
	"encoding/base64"
	"time"

	"github.com/wesm/glider/internal/gmail"
)

// Attachment is a non-body leaf added to a multipart message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MessageBuilder constructs a *gmail.RawMessage with a fluent API. Bodies are
// base64url-encoded the way the Gmail API delivers them.
type MessageBuilder struct {
	id           string
	threadID     string
	headerKeys   []string
	headerVals   []string
	labels       []string
	snippet      string
	internalDate time.Time
	text         string
	html         string
	charset      string
	nested       bool
	attachments  []Attachment
}

// NewMessage creates a builder for message id with sensible defaults: a
// plain-text body, an INBOX+UNREAD label set and a fixed Date header.
func NewMessage(id string) *MessageBuilder {
	b := &MessageBuilder{
		id:           id,
		threadID:     "thread-" + id,
		labels:       []string{"INBOX", "UNREAD"},
		snippet:      "This is a test message",
		internalDate: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		text:         "This is a test message body.",
	}
	return b.
		Header("From", "sender@example.com").
		Header("To", "recipient@example.com").
		Header("Subject", "Test Message").
		Header("Date", "Mon, 01 Jan 2024 12:00:00 +0000")
}

// Header sets a header, replacing an earlier value with the same name.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	for i, k := range b.headerKeys {
		if k == key {
			b.headerVals[i] = value
			return b
		}
	}
	b.headerKeys = append(b.headerKeys, key)
	b.headerVals = append(b.headerVals, value)
	return b
}

// Without removes a header.
func (b *MessageBuilder) Without(key string) *MessageBuilder {
	for i, k := range b.headerKeys {
		if k == key {
			b.headerKeys = append(b.headerKeys[:i], b.headerKeys[i+1:]...)
			b.headerVals = append(b.headerVals[:i], b.headerVals[i+1:]...)
			return b
		}
	}
	return b
}

func (b *MessageBuilder) From(v string) *MessageBuilder    { return b.Header("From", v) }
func (b *MessageBuilder) To(v string) *MessageBuilder      { return b.Header("To", v) }
func (b *MessageBuilder) Cc(v string) *MessageBuilder      { return b.Header("Cc", v) }
func (b *MessageBuilder) Subject(v string) *MessageBuilder { return b.Header("Subject", v) }
func (b *MessageBuilder) Date(v string) *MessageBuilder    { return b.Header("Date", v) }

// Thread sets the thread id.
func (b *MessageBuilder) Thread(id string) *MessageBuilder { b.threadID = id; return b }

// Labels replaces the label set.
func (b *MessageBuilder) Labels(labels ...string) *MessageBuilder { b.labels = labels; return b }

// Snippet sets the provider snippet.
func (b *MessageBuilder) Snippet(v string) *MessageBuilder { b.snippet = v; return b }

// InternalDate sets the provider receive timestamp.
func (b *MessageBuilder) InternalDate(t time.Time) *MessageBuilder { b.internalDate = t; return b }

// Text sets the text/plain body. An empty string omits the part.
func (b *MessageBuilder) Text(v string) *MessageBuilder { b.text = v; return b }

// HTML sets the text/html body, which makes the message multipart/alternative.
func (b *MessageBuilder) HTML(v string) *MessageBuilder { b.html = v; return b }

// Charset adds a charset parameter to the body parts' Content-Type.
func (b *MessageBuilder) Charset(v string) *MessageBuilder { b.charset = v; return b }

// Nested wraps the body parts in an outer multipart/mixed.
func (b *MessageBuilder) Nested() *MessageBuilder { b.nested = true; return b }

// WithAttachment adds an attachment leaf, which also forces multipart/mixed.
func (b *MessageBuilder) WithAttachment(filename, contentType string, data []byte) *MessageBuilder {
	b.attachments = append(b.attachments, Attachment{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	return b
}

// Build assembles the raw message.
func (b *MessageBuilder) Build() *gmail.RawMessage {
	headers := make([]gmail.Header, len(b.headerKeys))
	for i, k := range b.headerKeys {
		headers[i] = gmail.Header{Name: k, Value: b.headerVals[i]}
	}

	return &gmail.RawMessage{
		ID:           b.id,
		ThreadID:     b.threadID,
		LabelIDs:     append([]string(nil), b.labels...),
		Snippet:      b.snippet,
		InternalDate: b.internalDate.UnixMilli(),
		Headers:      headers,
		Payload:      b.payload(),
	}
}

func (b *MessageBuilder) payload() gmail.Part {
	var bodies []gmail.Part
	if b.text != "" {
		bodies = append(bodies, b.leaf("text/plain", "", []byte(b.text)))
	}
	if b.html != "" {
		bodies = append(bodies, b.leaf("text/html", "", []byte(b.html)))
	}

	if len(bodies) == 1 && !b.nested && len(b.attachments) == 0 {
		return bodies[0]
	}

	var body gmail.Part = &gmail.Multipart{MimeType: "multipart/alternative", Parts: bodies}
	if !b.nested && len(b.attachments) == 0 {
		return body
	}

	mixed := &gmail.Multipart{MimeType: "multipart/mixed", Parts: []gmail.Part{body}}
	for _, att := range b.attachments {
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		mixed.Parts = append(mixed.Parts, b.leaf(ct, att.Filename, att.Data))
	}
	return mixed
}

func (b *MessageBuilder) leaf(mimeType, filename string, data []byte) *gmail.LeafPart {
	ct := mimeType
	if b.charset != "" && filename == "" {
		ct += "; charset=" + b.charset
	}
	return &gmail.LeafPart{
		MimeType: mimeType,
		Filename: filename,
		Headers:  []gmail.Header{{Name: "Content-Type", Value: ct}},
		Data:     base64.URLEncoding.EncodeToString(data),
	}
}
