package mime

import (
	"encoding/base64"
	"io"
	stdmime "mime"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/transform"

	"github.com/wesm/glider/internal/gmail"
	"github.com/wesm/glider/internal/textutil"
)

const labelUnread = "UNREAD"

var (
	senderRe    = regexp.MustCompile(`^(.*?)\s*<(.+?)>$`)
	recipientRe = regexp.MustCompile(`<(.+?)>`)
)

// Decode converts a raw message into an Email. It performs no I/O and never
// fails: undecodable content yields empty fields.
func Decode(raw *gmail.RawMessage) *Email {
	if raw == nil {
		return &Email{}
	}

	senderName, senderEmail := ParseSender(headerText(raw, "From"))
	text, html := extractBody(raw.Payload)
	if text == "" && html != "" {
		text = HTMLToText(html)
	}

	return &Email{
		ID:              raw.ID,
		ThreadID:        raw.ThreadID,
		Subject:         headerText(raw, "Subject"),
		SenderEmail:     senderEmail,
		SenderName:      senderName,
		RecipientEmails: ParseRecipients(raw.Header("To")),
		CcEmails:        ParseRecipients(raw.Header("Cc")),
		Date:            messageDate(raw),
		BodyText:        text,
		BodyHTML:        html,
		Snippet:         raw.Snippet,
		Labels:          append([]string(nil), raw.LabelIDs...),
		IsRead:          !raw.HasLabel(labelUnread),
	}
}

// ParseSender splits a From header into display name and address. Values
// without angle brackets are treated as a bare address.
func ParseSender(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if m := senderRe.FindStringSubmatch(from); m != nil {
		name = strings.Trim(strings.TrimSpace(m[1]), `"`)
		email = strings.TrimSpace(m[2])
		if email == "" {
			email = from
		}
		return name, email
	}
	return "", from
}

// ParseRecipients splits a comma-separated address header into addresses,
// taking the bracketed part of each entry when present.
func ParseRecipients(header string) []string {
	var out []string
	for _, entry := range strings.Split(header, ",") {
		entry = strings.TrimSpace(entry)
		if m := recipientRe.FindStringSubmatch(entry); m != nil {
			entry = strings.TrimSpace(m[1])
		}
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// headerText returns a header with RFC 2047 encoded words decoded.
func headerText(raw *gmail.RawMessage, name string) string {
	v := raw.Header(name)
	if !strings.Contains(v, "=?") {
		return v
	}
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

var wordDecoder = &stdmime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc := textutil.LookupEncoding(charset)
		if enc == nil {
			return input, nil
		}
		return transform.NewReader(input, enc.NewDecoder()), nil
	},
}

// extractBody finds the text and HTML bodies. Data on a top-level leaf wins.
// Otherwise direct children are scanned, then the children of nested
// multiparts; a later match replaces an earlier one.
func extractBody(payload gmail.Part) (text, html string) {
	switch p := payload.(type) {
	case *gmail.LeafPart:
		if p.Data == "" {
			return "", ""
		}
		if isMIMEType(p, "text/html") {
			return "", decodeLeaf(p)
		}
		return decodeLeaf(p), ""

	case *gmail.Multipart:
		for _, child := range p.Parts {
			switch c := child.(type) {
			case *gmail.LeafPart:
				collectLeaf(c, &text, &html)
			case *gmail.Multipart:
				for _, nested := range c.Parts {
					if leaf, ok := nested.(*gmail.LeafPart); ok {
						collectLeaf(leaf, &text, &html)
					}
				}
			}
		}
	}
	return text, html
}

func collectLeaf(p *gmail.LeafPart, text, html *string) {
	if p.Data == "" {
		return
	}
	switch {
	case isMIMEType(p, "text/plain"):
		*text = decodeLeaf(p)
	case isMIMEType(p, "text/html"):
		*html = decodeLeaf(p)
	}
}

func isMIMEType(p *gmail.LeafPart, want string) bool {
	mt := p.MimeType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.EqualFold(strings.TrimSpace(mt), want)
}

// decodeLeaf decodes a part body into UTF-8 using its declared charset.
func decodeLeaf(p *gmail.LeafPart) string {
	data := decodeBase64URL(p.Data)
	if len(data) == 0 {
		return ""
	}
	return textutil.DecodeBytes(data, partCharset(p))
}

func partCharset(p *gmail.LeafPart) string {
	ct := gmail.HeaderValue(p.Headers, "Content-Type")
	if ct == "" {
		return ""
	}
	_, params, err := stdmime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// decodeBase64URL decodes base64url data with or without padding, also
// accepting standard-alphabet input. Invalid input decodes to nil.
func decodeBase64URL(s string) []byte {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if s == "" {
		return nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b
	}
	return nil
}

// messageDate parses the Date header, falling back to the internal
// timestamp and finally the Unix epoch.
func messageDate(raw *gmail.RawMessage) time.Time {
	if t, ok := parseDate(raw.Header("Date")); ok {
		return t
	}
	if raw.InternalDate > 0 {
		return time.UnixMilli(raw.InternalDate).UTC()
	}
	return time.Unix(0, 0).UTC()
}
