// Package analysis extracts action items and recommendations from emails
// with a generative model, in cost-bounded batches.
package analysis

import "errors"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Category string

const (
	CategoryResponseNeeded   Category = "response_needed"
	CategoryMeetingRequest   Category = "meeting_request"
	CategoryTask             Category = "task"
	CategoryDecisionRequired Category = "decision_required"
	CategoryFollowUp         Category = "follow_up"
)

type Action string

const (
	ActionReply           Action = "reply"
	ActionScheduleMeeting Action = "schedule_meeting"
	ActionDelegate        Action = "delegate"
	ActionArchive         Action = "archive"
	ActionFollowUp        Action = "follow_up"
	ActionPrioritize      Action = "prioritize"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentUrgent   Sentiment = "urgent"
	SentimentNegative Sentiment = "negative"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ActionItem is one explicit task found in an email. Deadline is a
// YYYY-MM-DD date or nil.
type ActionItem struct {
	Description   string   `json:"description"`
	Priority      Priority `json:"priority"`
	EstimatedTime string   `json:"estimatedTime"`
	Category      Category `json:"category"`
	Deadline      *string  `json:"deadline"`
}

// Details carries action-specific hints, e.g. attendees for a meeting.
type Details struct {
	KeyPoints          []string `json:"keyPoints,omitempty"`
	SuggestedAttendees []string `json:"suggestedAttendees,omitempty"`
	Purpose            string   `json:"purpose,omitempty"`
	SuggestedDate      string   `json:"suggestedDate,omitempty"`
}

// Analysis is the structured model output for one email.
type Analysis struct {
	ActionItems       []ActionItem `json:"actionItems"`
	HasActionItems    bool         `json:"hasActionItems"`
	RecommendedAction Action       `json:"recommendedAction"`
	Reason            string       `json:"reason"`
	Confidence        Confidence   `json:"confidence"`
	SuggestedDetails  Details      `json:"suggestedDetails"`
	Sentiment         Sentiment    `json:"sentiment"`
	Summary           string       `json:"summary"`
}

// Result pairs an email id with its analysis. Error is set when the
// analysis is the synthetic failure shape.
type Result struct {
	EmailID  string   `json:"emailId"`
	Analysis Analysis `json:"analysis"`
	Error    string   `json:"error,omitempty"`
}

// Failed reports whether the result is a synthetic failure.
func (r Result) Failed() bool { return r.Error != "" }

// ErrAnalysisInProgress is returned when a run for the same owner is active.
var ErrAnalysisInProgress = errors.New("analysis already in progress")

// errNoAnalysis marks an email the model left out of its response.
var errNoAnalysis = errors.New("no analysis returned for email")

func failedResult(emailID string, err error) Result {
	return Result{
		EmailID: emailID,
		Analysis: Analysis{
			ActionItems:       []ActionItem{},
			HasActionItems:    false,
			RecommendedAction: ActionArchive,
			Reason:            "Failed to analyze",
			Confidence:        ConfidenceLow,
			Sentiment:         SentimentNeutral,
			Summary:           "Analysis failed",
		},
		Error: err.Error(),
	}
}
