// Package mime decodes Gmail message payloads into canonical email records.
package mime

import "time"

// Email is the canonical, provider-independent form of a message.
type Email struct {
	ID              string    `json:"id"`
	ThreadID        string    `json:"threadId"`
	Subject         string    `json:"subject"`
	SenderEmail     string    `json:"senderEmail"`
	SenderName      string    `json:"senderName"`
	RecipientEmails []string  `json:"recipientEmails"`
	CcEmails        []string  `json:"ccEmails,omitempty"`
	Date            time.Time `json:"date"`
	BodyText        string    `json:"bodyText"`
	BodyHTML        string    `json:"bodyHtml"`
	Snippet         string    `json:"snippet"`
	Labels          []string  `json:"labels"`
	IsRead          bool      `json:"isRead"`
}

// Address renders the sender as "Name <email>", or just the email when no
// display name is known.
func (e *Email) Address() string {
	if e.SenderName == "" {
		return e.SenderEmail
	}
	return e.SenderName + " <" + e.SenderEmail + ">"
}
