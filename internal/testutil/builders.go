package testutil

import (
	"fmt"
	"time"

	"github.com/wesm/glider/internal/mime"
)

// EmailBuilder constructs canonical emails with sensible defaults.
type EmailBuilder struct {
	e mime.Email
}

// NewEmail creates a builder for an email with the given id.
func NewEmail(id string) *EmailBuilder {
	return &EmailBuilder{e: mime.Email{
		ID:              id,
		ThreadID:        "thread-" + id,
		Subject:         "Subject " + id,
		SenderEmail:     "sender@example.com",
		SenderName:      "Sender",
		RecipientEmails: []string{"owner@example.com"},
		Date:            time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		BodyText:        "Body of " + id,
		Snippet:         "Snippet of " + id,
		Labels:          []string{"INBOX"},
		IsRead:          true,
	}}
}

func (b *EmailBuilder) Subject(s string) *EmailBuilder { b.e.Subject = s; return b }
func (b *EmailBuilder) Body(s string) *EmailBuilder    { b.e.BodyText = s; return b }
func (b *EmailBuilder) HTML(s string) *EmailBuilder    { b.e.BodyHTML = s; return b }
func (b *EmailBuilder) Snippet(s string) *EmailBuilder { b.e.Snippet = s; return b }
func (b *EmailBuilder) Date(t time.Time) *EmailBuilder { b.e.Date = t; return b }
func (b *EmailBuilder) Unread() *EmailBuilder          { b.e.IsRead = false; return b }

// From sets the sender address and display name.
func (b *EmailBuilder) From(email, name string) *EmailBuilder {
	b.e.SenderEmail = email
	b.e.SenderName = name
	return b
}

// Labels replaces the label set.
func (b *EmailBuilder) Labels(labels ...string) *EmailBuilder {
	b.e.Labels = labels
	return b
}

// Build returns a copy of the email.
func (b *EmailBuilder) Build() *mime.Email {
	e := b.e
	return &e
}

// Emails builds n emails with ids "e00".."e(n-1)", each an hour older than
// the previous one so date ordering matches id ordering.
func Emails(n int) []*mime.Email {
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	out := make([]*mime.Email, n)
	for i := range out {
		out[i] = NewEmail(fmt.Sprintf("e%02d", i)).Date(base.Add(-time.Duration(i) * time.Hour)).Build()
	}
	return out
}
