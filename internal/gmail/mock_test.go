package gmail

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMockAPI_SetupMessagesSkipsNil(t *testing.T) {
	var mock MockAPI // zero value: Messages not yet allocated
	a, b := &RawMessage{ID: "a"}, &RawMessage{ID: "b"}

	mock.SetupMessages(nil, a, nil, b)

	if len(mock.Messages) != 2 || mock.Messages["a"] != a || mock.Messages["b"] != b {
		t.Errorf("Messages = %v, want a and b only", mock.Messages)
	}
}

func TestMockAPI_ListMessages(t *testing.T) {
	paged := func() *MockAPI {
		m := NewMockAPI()
		for _, id := range []string{"a", "b", "c"} {
			m.AddMessage(id, "x@example.com", id, "body "+id, nil)
		}
		m.MessagePages = [][]string{{"a", "b"}, {"c"}}
		return m
	}

	tests := []struct {
		name      string
		mock      func() *MockAPI
		token     string
		wantIDs   []string
		wantNext  string
		wantError bool
	}{
		{name: "first page", mock: paged, wantIDs: []string{"a", "b"}, wantNext: "page_1"},
		{name: "last page", mock: paged, token: "page_1", wantIDs: []string{"c"}},
		{name: "past the end", mock: paged, token: "page_7"},
		{name: "bad token", mock: paged, token: "bogus", wantError: true},
		{
			name: "no pages lists everything by id",
			mock: func() *MockAPI {
				m := NewMockAPI()
				m.AddMessage("z", "x@example.com", "Z", "z", nil)
				m.AddMessage("m", "x@example.com", "M", "m", nil)
				return m
			},
			wantIDs: []string{"m", "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := tt.mock()
			resp, err := mock.ListMessages(context.Background(), "q", tt.token, 2)
			if tt.wantError {
				if !IsFetchFailed(err) {
					t.Fatalf("err = %v, want FetchFailedError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListMessages: %v", err)
			}

			var ids []string
			for _, m := range resp.Messages {
				ids = append(ids, m.ID)
				if m.ThreadID != "thread_"+m.ID {
					t.Errorf("ThreadID = %q for %q", m.ThreadID, m.ID)
				}
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids (-want +got):\n%s", diff)
			}
			if resp.NextPageToken != tt.wantNext {
				t.Errorf("NextPageToken = %q, want %q", resp.NextPageToken, tt.wantNext)
			}
			if mock.ListMessagesCalls != 1 || mock.LastPageToken != tt.token || mock.LastMaxResults != 2 {
				t.Errorf("call tracking = (%d, %q, %d)", mock.ListMessagesCalls, mock.LastPageToken, mock.LastMaxResults)
			}
		})
	}
}

func TestMockAPI_GetMessage(t *testing.T) {
	mock := NewMockAPI()
	mock.AddMessage("ok", "x@example.com", "S", "hello", []string{"INBOX"})
	mock.GetMessageError["broken"] = &RateLimitedError{Op: OpMessagesGet}

	ctx := context.Background()
	msg, err := mock.GetMessage(ctx, "ok")
	if err != nil {
		t.Fatalf("GetMessage(ok): %v", err)
	}
	if msg.Header("subject") != "S" || msg.Header("Date") != "Mon, 01 Jan 2024 12:00:00 +0000" {
		t.Errorf("headers = %+v", msg.Headers)
	}
	if !msg.HasLabel("INBOX") {
		t.Error("label INBOX missing")
	}

	if _, err := mock.GetMessage(ctx, "broken"); !IsRateLimited(err) {
		t.Errorf("GetMessage(broken) err = %v, want RateLimitedError", err)
	}
	if _, err := mock.GetMessage(ctx, "missing"); !IsFetchFailed(err) {
		t.Errorf("GetMessage(missing) err = %v, want FetchFailedError", err)
	}

	if diff := cmp.Diff([]string{"ok", "broken", "missing"}, mock.GetCalls()); diff != "" {
		t.Errorf("GetCalls (-want +got):\n%s", diff)
	}
}
