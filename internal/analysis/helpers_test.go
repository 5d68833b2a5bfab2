package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/wesm/glider/internal/mime"
)

var emailIDPattern = regexp.MustCompile(`<email id="([^"]+)"`)

// stubModel is a test double for Model. By default it answers every prompt
// with one well-formed analysis per email id it finds.
type stubModel struct {
	mu      sync.Mutex
	calls   int
	opts    []CompleteOptions
	prompts []string
	respond func(ids []string) (string, error)
}

func (s *stubModel) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	s.mu.Lock()
	s.calls++
	s.opts = append(s.opts, opts)
	s.prompts = append(s.prompts, prompt)
	respond := s.respond
	s.mu.Unlock()

	ids := promptIDs(prompt)
	if respond != nil {
		return respond(ids)
	}
	return analysesJSON(ids), nil
}

func (s *stubModel) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func promptIDs(prompt string) []string {
	var ids []string
	for _, m := range emailIDPattern.FindAllStringSubmatch(prompt, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func analysesJSON(ids []string) string {
	elems := make([]map[string]any, len(ids))
	for i, id := range ids {
		elems[i] = map[string]any{
			"emailId":           id,
			"actionItems":       []any{},
			"hasActionItems":    false,
			"recommendedAction": "reply",
			"reason":            "Needs an answer.",
			"confidence":        "high",
			"suggestedDetails":  map[string]any{},
			"sentiment":         "neutral",
			"summary":           "Summary of " + id,
		}
	}
	data, _ := json.Marshal(elems)
	return "```json\n" + string(data) + "\n```"
}

func makeEmails(n int) []*mime.Email {
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	out := make([]*mime.Email, n)
	for i := range out {
		id := fmt.Sprintf("e%02d", i)
		out[i] = &mime.Email{
			ID:          id,
			Subject:     "Subject " + id,
			SenderEmail: "sender@example.com",
			Date:        base.Add(-time.Duration(i) * time.Hour),
			BodyText:    "Body of " + id,
		}
	}
	return out
}
