package gmail

import (
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
)

// fromAPIMessage converts the REST representation into a RawMessage.
func fromAPIMessage(m *gmailapi.Message) *RawMessage {
	raw := &RawMessage{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		LabelIDs:     m.LabelIds,
		Snippet:      m.Snippet,
		HistoryID:    m.HistoryId,
		InternalDate: m.InternalDate,
		SizeEstimate: m.SizeEstimate,
	}
	if m.Payload != nil {
		raw.Headers = convertHeaders(m.Payload.Headers)
		raw.Payload = convertPart(m.Payload)
	}
	return raw
}

func convertPart(p *gmailapi.MessagePart) Part {
	if len(p.Parts) > 0 || strings.HasPrefix(strings.ToLower(p.MimeType), "multipart/") {
		mp := &Multipart{
			MimeType: p.MimeType,
			Headers:  convertHeaders(p.Headers),
		}
		for _, child := range p.Parts {
			if child == nil {
				continue
			}
			mp.Parts = append(mp.Parts, convertPart(child))
		}
		return mp
	}

	leaf := &LeafPart{
		MimeType: p.MimeType,
		Filename: p.Filename,
		Headers:  convertHeaders(p.Headers),
	}
	if p.Body != nil {
		leaf.Data = p.Body.Data
	}
	return leaf
}

func convertHeaders(hs []*gmailapi.MessagePartHeader) []Header {
	if len(hs) == 0 {
		return nil
	}
	out := make([]Header, 0, len(hs))
	for _, h := range hs {
		if h == nil {
			continue
		}
		out = append(out, Header{Name: h.Name, Value: h.Value})
	}
	return out
}
