package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// mockDate is the timestamp stamped on messages built by AddMessage.
var mockDate = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

const mockPagePrefix = "page_"

// MockAPI is an in-memory API for tests. Listing walks MessagePages when
// set, otherwise it returns every stored message as a single page ordered
// by id. Exported fields may be set directly before use.
type MockAPI struct {
	mu sync.Mutex

	Messages     map[string]*RawMessage
	MessagePages [][]string

	ListMessagesError error
	GetMessageError   map[string]error

	ListMessagesCalls int
	LastQuery         string
	LastPageToken     string
	LastMaxResults    int
	GetMessageCalls   []string
}

var _ API = (*MockAPI)(nil)

func NewMockAPI() *MockAPI {
	return &MockAPI{
		Messages:        map[string]*RawMessage{},
		GetMessageError: map[string]error{},
	}
}

func (m *MockAPI) ListMessages(_ context.Context, query, pageToken string, maxResults int) (*MessageListResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListMessagesCalls++
	m.LastQuery, m.LastPageToken, m.LastMaxResults = query, pageToken, maxResults
	if m.ListMessagesError != nil {
		return nil, m.ListMessagesError
	}

	page, err := parseMockPageToken(pageToken)
	if err != nil {
		return nil, err
	}

	if m.MessagePages == nil {
		ids := make([]string, 0, len(m.Messages))
		for id := range m.Messages {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		return &MessageListResponse{
			Messages:           m.refs(ids),
			ResultSizeEstimate: int64(len(ids)),
		}, nil
	}

	resp := &MessageListResponse{}
	for _, p := range m.MessagePages {
		resp.ResultSizeEstimate += int64(len(p))
	}
	if page >= len(m.MessagePages) {
		return resp, nil
	}
	resp.Messages = m.refs(m.MessagePages[page])
	if page < len(m.MessagePages)-1 {
		resp.NextPageToken = mockPagePrefix + strconv.Itoa(page+1)
	}
	return resp, nil
}

func parseMockPageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(token, mockPagePrefix))
	if err != nil || !strings.HasPrefix(token, mockPagePrefix) || n < 0 {
		return 0, &FetchFailedError{Op: OpMessagesList, StatusCode: 400, Body: fmt.Sprintf("invalid page token %q", token)}
	}
	return n, nil
}

// refs maps ids to list entries. Caller holds m.mu.
func (m *MockAPI) refs(ids []string) []MessageID {
	out := make([]MessageID, 0, len(ids))
	for _, id := range ids {
		ref := MessageID{ID: id, ThreadID: "thread_" + id}
		if msg := m.Messages[id]; msg != nil && msg.ThreadID != "" {
			ref.ThreadID = msg.ThreadID
		}
		out = append(out, ref)
	}
	return out
}

func (m *MockAPI) GetMessage(_ context.Context, messageID string) (*RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetMessageCalls = append(m.GetMessageCalls, messageID)
	if err := m.GetMessageError[messageID]; err != nil {
		return nil, err
	}
	if msg, ok := m.Messages[messageID]; ok {
		return msg, nil
	}
	return nil, &FetchFailedError{Op: OpMessagesGet, StatusCode: 404, Body: "message not found"}
}

// SetupMessages stores msgs keyed by id, ignoring nil entries.
func (m *MockAPI) SetupMessages(msgs ...*RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Messages == nil {
		m.Messages = map[string]*RawMessage{}
	}
	for _, msg := range msgs {
		if msg != nil {
			m.Messages[msg.ID] = msg
		}
	}
}

// AddMessage stores a plain-text message dated 2024-01-01 12:00 UTC.
func (m *MockAPI) AddMessage(id, from, subject, body string, labelIDs []string) {
	msg := &RawMessage{
		ID:           id,
		ThreadID:     "thread_" + id,
		LabelIDs:     labelIDs,
		Snippet:      body,
		InternalDate: mockDate.UnixMilli(),
		Payload: &LeafPart{
			MimeType: "text/plain",
			Data:     base64.RawURLEncoding.EncodeToString([]byte(body)),
		},
	}
	for _, h := range [][2]string{
		{"From", from},
		{"To", "me@example.com"},
		{"Subject", subject},
		{"Date", mockDate.Format(time.RFC1123Z)},
	} {
		msg.Headers = append(msg.Headers, Header{Name: h[0], Value: h[1]})
	}
	m.SetupMessages(msg)
}

// GetCalls returns a snapshot of the ids passed to GetMessage.
func (m *MockAPI) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.GetMessageCalls)
}
