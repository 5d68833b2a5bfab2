package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/wesm/glider/internal/mime"
)

const emailColumns = `e.id, e.thread_id, e.subject, e.sender_email, e.sender_name,
	e.recipient_emails, e.cc_emails, e.email_date, e.body_text, e.body_html,
	e.snippet, e.labels, e.is_read`

// SaveEmails upserts emails for owner in one transaction. Re-fetching an
// email refreshes its content and fetched_at.
func (s *Store) SaveEmails(ctx context.Context, owner string, emails []*mime.Email) error {
	if len(emails) == 0 {
		return nil
	}
	fetchedAt := s.now().UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO emails (
				owner, id, thread_id, subject, sender_email, sender_name,
				recipient_emails, cc_emails, email_date, body_text, body_html,
				snippet, labels, is_read, fetched_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(owner, id) DO UPDATE SET
				thread_id = excluded.thread_id,
				subject = excluded.subject,
				sender_email = excluded.sender_email,
				sender_name = excluded.sender_name,
				recipient_emails = excluded.recipient_emails,
				cc_emails = excluded.cc_emails,
				email_date = excluded.email_date,
				body_text = excluded.body_text,
				body_html = excluded.body_html,
				snippet = excluded.snippet,
				labels = excluded.labels,
				is_read = excluded.is_read,
				fetched_at = excluded.fetched_at
		`)
		if err != nil {
			return eris.Wrap(err, "prepare email upsert")
		}
		defer stmt.Close()

		for _, e := range emails {
			if e == nil || e.ID == "" {
				continue
			}
			_, err := stmt.ExecContext(ctx,
				owner, e.ID, e.ThreadID, e.Subject, e.SenderEmail, e.SenderName,
				jsonList(e.RecipientEmails), jsonList(e.CcEmails), e.Date.UTC(),
				e.BodyText, e.BodyHTML, e.Snippet, jsonList(e.Labels), e.IsRead,
				fetchedAt,
			)
			if err != nil {
				return eris.Wrapf(err, "save email %s", e.ID)
			}
		}
		return nil
	})
}

// LoadCachedEmails returns the owner's most recent emails, newest first.
func (s *Store) LoadCachedEmails(ctx context.Context, owner string, limit int) ([]*mime.Email, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails e
		WHERE e.owner = ?
		ORDER BY e.email_date DESC, e.id
		LIMIT ?
	`, owner, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "load cached emails for %s", owner)
	}
	return scanEmails(rows)
}

// CountEmails returns how many emails are stored for owner.
func (s *Store) CountEmails(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails WHERE owner = ?`, owner).Scan(&n)
	return n, eris.Wrapf(err, "count emails for %s", owner)
}

// LoadUnanalyzed returns the owner's newest emails that have no stored
// analysis.
func (s *Store) LoadUnanalyzed(ctx context.Context, owner string, limit int) ([]*mime.Email, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails e
		LEFT JOIN analyses a ON a.owner = e.owner AND a.email_id = e.id
		WHERE e.owner = ? AND a.email_id IS NULL
		ORDER BY e.email_date DESC, e.id
		LIMIT ?
	`, owner, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "load unanalyzed emails for %s", owner)
	}
	return scanEmails(rows)
}

// CountUnanalyzed returns how many of the owner's emails lack an analysis.
func (s *Store) CountUnanalyzed(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM emails e
		LEFT JOIN analyses a ON a.owner = e.owner AND a.email_id = e.id
		WHERE e.owner = ? AND a.email_id IS NULL
	`, owner).Scan(&n)
	return n, eris.Wrapf(err, "count unanalyzed emails for %s", owner)
}

func scanEmails(rows *sql.Rows) ([]*mime.Email, error) {
	defer rows.Close()

	var emails []*mime.Email
	for rows.Next() {
		var e mime.Email
		var recipients, cc, labels string
		if err := rows.Scan(
			&e.ID, &e.ThreadID, &e.Subject, &e.SenderEmail, &e.SenderName,
			&recipients, &cc, &e.Date, &e.BodyText, &e.BodyHTML,
			&e.Snippet, &labels, &e.IsRead,
		); err != nil {
			return nil, eris.Wrap(err, "scan email")
		}
		e.RecipientEmails = parseList(recipients)
		e.CcEmails = parseList(cc)
		e.Labels = parseList(labels)
		emails = append(emails, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate emails")
	}
	return emails, nil
}

func jsonList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func parseList(s string) []string {
	var values []string
	if err := json.Unmarshal([]byte(s), &values); err != nil || len(values) == 0 {
		return nil
	}
	return values
}
