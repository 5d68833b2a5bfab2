package mime

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/glider/internal/gmail"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func leaf(mimeType, body string) *gmail.LeafPart {
	return &gmail.LeafPart{MimeType: mimeType, Data: b64(body)}
}

func newRaw(payload gmail.Part, headers ...gmail.Header) *gmail.RawMessage {
	return &gmail.RawMessage{
		ID:           "m1",
		ThreadID:     "t1",
		LabelIDs:     []string{"INBOX"},
		Snippet:      "snippet",
		InternalDate: 1704067200000,
		Headers:      headers,
		Payload:      payload,
	}
}

func TestParseSender(t *testing.T) {
	tests := []struct {
		in        string
		wantName  string
		wantEmail string
	}{
		{"Jane Doe <jane@example.com>", "Jane Doe", "jane@example.com"},
		{"jane@example.com", "", "jane@example.com"},
		{`"Doe, Jane" <jane@example.com>`, "Doe, Jane", "jane@example.com"},
		{"<jane@example.com>", "", "jane@example.com"},
		{"  Jane   <jane@example.com>  ", "Jane", "jane@example.com"},
		{"", "", ""},
		{"Jane <jane@example.com> extra", "", "Jane <jane@example.com> extra"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, email := ParseSender(tt.in)
			if name != tt.wantName || email != tt.wantEmail {
				t.Errorf("ParseSender(%q) = (%q, %q), want (%q, %q)", tt.in, name, email, tt.wantName, tt.wantEmail)
			}
		})
	}
}

func TestParseRecipients(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a@example.com", []string{"a@example.com"}},
		{"A <a@example.com>, b@example.com", []string{"a@example.com", "b@example.com"}},
		{"a@example.com, , ,b@example.com,", []string{"a@example.com", "b@example.com"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParseRecipients(tt.in)); diff != "" {
			t.Errorf("ParseRecipients(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestDecode_Headers(t *testing.T) {
	raw := newRaw(leaf("text/plain", "hello"),
		gmail.Header{Name: "from", Value: "Jane Doe <jane@example.com>"},
		gmail.Header{Name: "TO", Value: "Bob <bob@example.com>, carol@example.com"},
		gmail.Header{Name: "cc", Value: "dave@example.com"},
		gmail.Header{Name: "Subject", Value: "=?UTF-8?B?SGVsbG8gV8O2cmxk?="},
		gmail.Header{Name: "date", Value: "Tue, 02 Jan 2024 10:30:00 +0100"},
	)

	got := Decode(raw)
	want := &Email{
		ID:              "m1",
		ThreadID:        "t1",
		Subject:         "Hello Wörld",
		SenderEmail:     "jane@example.com",
		SenderName:      "Jane Doe",
		RecipientEmails: []string{"bob@example.com", "carol@example.com"},
		CcEmails:        []string{"dave@example.com"},
		Date:            time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
		BodyText:        "hello",
		Snippet:         "snippet",
		Labels:          []string{"INBOX"},
		IsRead:          true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_MissingHeaders(t *testing.T) {
	got := Decode(newRaw(nil))
	if got.Subject != "" || got.SenderEmail != "" || got.SenderName != "" || got.RecipientEmails != nil {
		t.Errorf("expected empty header fields, got %+v", got)
	}
	if got.BodyText != "" || got.BodyHTML != "" {
		t.Errorf("expected empty body, got text=%q html=%q", got.BodyText, got.BodyHTML)
	}
}

func TestDecode_Body(t *testing.T) {
	tests := []struct {
		name     string
		payload  gmail.Part
		wantText string
		wantHTML string
	}{
		{
			name:     "top-level body",
			payload:  leaf("text/plain", "direct"),
			wantText: "direct",
		},
		{
			name: "one level",
			payload: &gmail.Multipart{MimeType: "multipart/alternative", Parts: []gmail.Part{
				leaf("text/plain", "plain"),
				leaf("text/html", "<p>rich</p>"),
			}},
			wantText: "plain",
			wantHTML: "<p>rich</p>",
		},
		{
			name: "nested alternative inside mixed",
			payload: &gmail.Multipart{MimeType: "multipart/mixed", Parts: []gmail.Part{
				&gmail.Multipart{MimeType: "multipart/alternative", Parts: []gmail.Part{
					leaf("text/plain", "nested plain"),
					leaf("text/html", "<b>nested</b>"),
				}},
				&gmail.LeafPart{MimeType: "application/pdf", Filename: "a.pdf"},
			}},
			wantText: "nested plain",
			wantHTML: "<b>nested</b>",
		},
		{
			name: "later match wins",
			payload: &gmail.Multipart{MimeType: "multipart/mixed", Parts: []gmail.Part{
				leaf("text/plain", "first"),
				leaf("text/plain", "second"),
			}},
			wantText: "second",
		},
		{
			name: "empty data skipped",
			payload: &gmail.Multipart{MimeType: "multipart/mixed", Parts: []gmail.Part{
				leaf("text/plain", "kept"),
				&gmail.LeafPart{MimeType: "text/plain"},
			}},
			wantText: "kept",
		},
		{
			name: "third level ignored",
			payload: &gmail.Multipart{MimeType: "multipart/mixed", Parts: []gmail.Part{
				&gmail.Multipart{MimeType: "multipart/related", Parts: []gmail.Part{
					&gmail.Multipart{MimeType: "multipart/alternative", Parts: []gmail.Part{
						leaf("text/plain", "too deep"),
					}},
				}},
			}},
		},
		{
			name: "mime type with params",
			payload: &gmail.Multipart{MimeType: "multipart/alternative", Parts: []gmail.Part{
				leaf("TEXT/PLAIN; charset=utf-8", "params"),
			}},
			wantText: "params",
		},
		{
			name:     "invalid base64",
			payload:  &gmail.LeafPart{MimeType: "text/plain", Data: "!!!not base64!!!"},
			wantText: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(newRaw(tt.payload))
			if got.BodyText != tt.wantText {
				t.Errorf("BodyText = %q, want %q", got.BodyText, tt.wantText)
			}
			if got.BodyHTML != tt.wantHTML {
				t.Errorf("BodyHTML = %q, want %q", got.BodyHTML, tt.wantHTML)
			}
		})
	}
}

func TestDecode_HTMLFallback(t *testing.T) {
	html := `<html><body><p>Please <a href="https://example.com/track?id=1">review the doc</a> today.</p>` +
		`<img src="cid:logo" alt="Company Logo"></body></html>`
	raw := newRaw(&gmail.Multipart{MimeType: "multipart/alternative", Parts: []gmail.Part{
		leaf("text/html", html),
	}})

	got := Decode(raw)
	if got.BodyHTML != html {
		t.Errorf("BodyHTML = %q, want original html", got.BodyHTML)
	}
	if !strings.Contains(got.BodyText, "review the doc") {
		t.Errorf("BodyText = %q, want link text", got.BodyText)
	}
	for _, banned := range []string{"https://example.com", "Company Logo", "cid:logo", "<p>"} {
		if strings.Contains(got.BodyText, banned) {
			t.Errorf("BodyText %q should not contain %q", got.BodyText, banned)
		}
	}
}

func TestDecode_TopLevelHTML(t *testing.T) {
	got := Decode(newRaw(leaf("text/html", "<p>Only html</p>")))
	if got.BodyHTML != "<p>Only html</p>" {
		t.Errorf("BodyHTML = %q", got.BodyHTML)
	}
	if got.BodyText != "Only html" {
		t.Errorf("BodyText = %q, want %q", got.BodyText, "Only html")
	}
}

func TestDecode_Charset(t *testing.T) {
	part := &gmail.LeafPart{
		MimeType: "text/plain",
		Headers:  []gmail.Header{{Name: "Content-Type", Value: `text/plain; charset="ISO-8859-1"`}},
		Data:     base64.RawURLEncoding.EncodeToString([]byte("Caf\xe9 cr\xe8me")),
	}
	got := Decode(newRaw(part))
	if got.BodyText != "Café crème" {
		t.Errorf("BodyText = %q, want %q", got.BodyText, "Café crème")
	}
}

func TestDecode_DateFallback(t *testing.T) {
	tests := []struct {
		name         string
		header       string
		internalDate int64
		want         time.Time
	}{
		{"valid header", "Mon, 01 Jan 2024 08:00:00 -0500", 0, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)},
		{"garbage header", "not a date", 1704067200000, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"missing header", "", 1704067200000, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"nothing usable", "", 0, time.Unix(0, 0).UTC()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := newRaw(nil)
			raw.InternalDate = tt.internalDate
			if tt.header != "" {
				raw.Headers = []gmail.Header{{Name: "Date", Value: tt.header}}
			}
			got := Decode(raw).Date
			if !got.Equal(tt.want) {
				t.Errorf("Date = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecode_IsRead(t *testing.T) {
	raw := newRaw(nil)
	raw.LabelIDs = []string{"INBOX", "UNREAD"}
	if Decode(raw).IsRead {
		t.Error("IsRead = true for UNREAD message")
	}
	raw.LabelIDs = nil
	if !Decode(raw).IsRead {
		t.Error("IsRead = false for message without UNREAD")
	}
}

func TestDecode_Idempotent(t *testing.T) {
	raw := newRaw(&gmail.Multipart{MimeType: "multipart/alternative", Parts: []gmail.Part{
		leaf("text/html", "<p>x <a href='y'>z</a></p>"),
	}}, gmail.Header{Name: "From", Value: "A <a@example.com>"})

	first := Decode(raw)
	second := Decode(raw)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Decode not deterministic (-first +second):\n%s", diff)
	}
}

func TestDecode_Nil(t *testing.T) {
	if got := Decode(nil); got == nil || got.ID != "" {
		t.Errorf("Decode(nil) = %+v, want empty email", got)
	}
}
