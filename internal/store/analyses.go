package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wesm/glider/internal/analysis"
	"github.com/wesm/glider/internal/mime"
)

// StoredAnalysis is a persisted analysis for one email.
type StoredAnalysis struct {
	EmailID      string            `json:"emailId"`
	Owner        string            `json:"owner"`
	Analysis     analysis.Analysis `json:"analysis"`
	AnalyzedAt   time.Time         `json:"analyzedAt"`
	ModelVersion string            `json:"modelVersion"`
}

// DashboardEmail is an email with its analysis attached, if any.
type DashboardEmail struct {
	*mime.Email
	Analysis *StoredAnalysis `json:"analysis,omitempty"`
}

// Dashboard is the owner's recent emails joined with recent analyses.
type Dashboard struct {
	Emails   []DashboardEmail `json:"emails"`
	Total    int              `json:"total"`
	Analyzed int              `json:"analyzed"`
}

// SaveAnalysisResults upserts results keyed on (owner, email id). Failed
// results are skipped so the email stays eligible for the next run.
func (s *Store) SaveAnalysisResults(ctx context.Context, owner string, results []analysis.Result, modelVersion string) error {
	if len(results) == 0 {
		return nil
	}
	analyzedAt := s.now().UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO analyses (
				owner, email_id, summary, sentiment, action_items,
				has_action_items, recommended_action, recommendation_reason,
				recommendation_confidence, recommendation_details,
				analyzed_at, model_version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(owner, email_id) DO UPDATE SET
				summary = excluded.summary,
				sentiment = excluded.sentiment,
				action_items = excluded.action_items,
				has_action_items = excluded.has_action_items,
				recommended_action = excluded.recommended_action,
				recommendation_reason = excluded.recommendation_reason,
				recommendation_confidence = excluded.recommendation_confidence,
				recommendation_details = excluded.recommendation_details,
				analyzed_at = excluded.analyzed_at,
				model_version = excluded.model_version
		`)
		if err != nil {
			return eris.Wrap(err, "prepare analysis upsert")
		}
		defer stmt.Close()

		for _, r := range results {
			if r.Failed() {
				continue
			}
			a := r.Analysis
			items := a.ActionItems
			if items == nil {
				items = []analysis.ActionItem{}
			}
			itemsJSON, err := json.Marshal(items)
			if err != nil {
				return eris.Wrapf(err, "encode action items for %s", r.EmailID)
			}
			detailsJSON, err := json.Marshal(a.SuggestedDetails)
			if err != nil {
				return eris.Wrapf(err, "encode details for %s", r.EmailID)
			}
			_, err = stmt.ExecContext(ctx,
				owner, r.EmailID, a.Summary, string(a.Sentiment), string(itemsJSON),
				a.HasActionItems, string(a.RecommendedAction), a.Reason,
				string(a.Confidence), string(detailsJSON),
				analyzedAt, modelVersion,
			)
			if err != nil {
				return eris.Wrapf(err, "save analysis for %s", r.EmailID)
			}
		}
		return nil
	})
}

// LoadAnalyses returns the owner's most recent analyses, newest first.
func (s *Store) LoadAnalyses(ctx context.Context, owner string, limit int) ([]*StoredAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email_id, owner, summary, sentiment, action_items,
		       has_action_items, recommended_action, recommendation_reason,
		       recommendation_confidence, recommendation_details,
		       analyzed_at, model_version
		FROM analyses
		WHERE owner = ?
		ORDER BY analyzed_at DESC, email_id
		LIMIT ?
	`, owner, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "load analyses for %s", owner)
	}
	defer rows.Close()

	var out []*StoredAnalysis
	for rows.Next() {
		var sa StoredAnalysis
		var sentiment, action, confidence, items, details string
		if err := rows.Scan(
			&sa.EmailID, &sa.Owner, &sa.Analysis.Summary, &sentiment, &items,
			&sa.Analysis.HasActionItems, &action, &sa.Analysis.Reason,
			&confidence, &details, &sa.AnalyzedAt, &sa.ModelVersion,
		); err != nil {
			return nil, eris.Wrap(err, "scan analysis")
		}
		sa.Analysis.Sentiment = analysis.Sentiment(sentiment)
		sa.Analysis.RecommendedAction = analysis.Action(action)
		sa.Analysis.Confidence = analysis.Confidence(confidence)
		if err := json.Unmarshal([]byte(items), &sa.Analysis.ActionItems); err != nil {
			return nil, eris.Wrapf(err, "decode action items for %s", sa.EmailID)
		}
		if sa.Analysis.ActionItems == nil {
			sa.Analysis.ActionItems = []analysis.ActionItem{}
		}
		if err := json.Unmarshal([]byte(details), &sa.Analysis.SuggestedDetails); err != nil {
			return nil, eris.Wrapf(err, "decode details for %s", sa.EmailID)
		}
		out = append(out, &sa)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate analyses")
	}
	return out, nil
}

// Dashboard joins the owner's latest limit emails with the latest limit
// analyses by email id. Total and Analyzed are the sizes of the two lists.
func (s *Store) Dashboard(ctx context.Context, owner string, limit int) (*Dashboard, error) {
	emails, err := s.LoadCachedEmails(ctx, owner, limit)
	if err != nil {
		return nil, err
	}
	analyses, err := s.LoadAnalyses(ctx, owner, limit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*StoredAnalysis, len(analyses))
	for _, a := range analyses {
		byID[a.EmailID] = a
	}

	d := &Dashboard{
		Emails:   make([]DashboardEmail, 0, len(emails)),
		Total:    len(emails),
		Analyzed: len(analyses),
	}
	for _, e := range emails {
		d.Emails = append(d.Emails, DashboardEmail{Email: e, Analysis: byID[e.ID]})
	}
	return d, nil
}
