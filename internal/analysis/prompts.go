package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/wesm/glider/internal/mime"
	"github.com/wesm/glider/internal/textutil"
)

const (
	// DefaultBodyWords caps each email body before it enters a prompt.
	DefaultBodyWords = 500
	// DefaultPromptBodyChars is the per-email body cut inside the batch prompt.
	DefaultPromptBodyChars = 1500
)

// promptBudget bounds how much of each body reaches the model.
type promptBudget struct {
	words int
	chars int
}

var defaultBudget = promptBudget{words: DefaultBodyWords, chars: DefaultPromptBodyChars}

// promptEmail is the view of an email the model sees.
type promptEmail struct {
	ID      string
	From    string
	Subject string
	Date    string
	Body    string
}

func newPromptEmail(e *mime.Email, words int) promptEmail {
	from := e.SenderEmail
	if from == "" {
		from = "Unknown"
	}
	subject := e.Subject
	if subject == "" {
		subject = "(No subject)"
	}
	body := e.BodyText
	if body == "" {
		body = e.Snippet
	}
	return promptEmail{
		ID:      e.ID,
		From:    from,
		Subject: subject,
		Date:    e.Date.UTC().Format(time.RFC3339),
		Body:    textutil.TruncateWords(body, words),
	}
}

const batchPromptHeader = `You are an expert executive assistant analyzing multiple emails at once.

Your task: For each email below, extract action items AND provide a recommendation for the best next step.

Guidelines for action items:
- Only extract explicit action items (requests, tasks, deadlines)
- Estimate priority (high/medium/low) based on urgency
- Categorize: response_needed, meeting_request, task, decision_required, follow_up

Guidelines for recommendations:
- Choose one: reply, schedule_meeting, delegate, archive, follow_up, prioritize
- Provide brief reason (1-2 sentences)
- Assess sentiment: positive, neutral, urgent, negative
- Write one-line summary (max 100 chars)

Emails:
<emails>
`

const batchPromptSchema = `
</emails>

Respond ONLY with valid JSON - an array with one analysis per email:
[
  {
    "emailId": "string",
    "actionItems": [
      {
        "description": "string",
        "priority": "high" | "medium" | "low",
        "estimatedTime": "string",
        "category": "response_needed" | "meeting_request" | "task" | "decision_required" | "follow_up",
        "deadline": "YYYY-MM-DD" | null
      }
    ],
    "hasActionItems": boolean,
    "recommendedAction": "reply" | "schedule_meeting" | "delegate" | "archive" | "follow_up" | "prioritize",
    "reason": "string",
    "confidence": "high" | "medium" | "low",
    "suggestedDetails": {},
    "sentiment": "positive" | "neutral" | "urgent" | "negative",
    "summary": "string"
  }
]`

// buildBatchPrompt renders one request covering every email in a chunk.
// Each email block carries its id so results can be matched back.
func buildBatchPrompt(emails []promptEmail, chars int) string {
	blocks := make([]string, len(emails))
	for i, e := range emails {
		blocks[i] = fmt.Sprintf("\n<email id=%q index=\"%d\">\nFrom: %s\nSubject: %s\nDate: %s\nBody: %s\n</email>",
			e.ID, i, e.From, e.Subject, e.Date, textutil.HeadRunes(e.Body, chars))
	}

	var sb strings.Builder
	sb.WriteString(batchPromptHeader)
	sb.WriteString(strings.Join(blocks, "\n"))
	sb.WriteString(batchPromptSchema)
	return sb.String()
}
