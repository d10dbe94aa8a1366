// Package history is the conversation context store: an append-only record
// of classified intents, their execution outcomes, and user feedback. The
// classifier reads recent history to bias toward a user's usual categories;
// analytics aggregate it into per-category success rates.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an intent record id does not exist.
var ErrNotFound = errors.New("history: intent record not found")

// IntentRecord is one classified user turn and, once execution finishes,
// its outcome. Records are append-only; Success stays nil until
// UpdateOutcome resolves the turn.
type IntentRecord struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id,omitempty"`
	UserInput  string         `json:"user_input"`
	Category   string         `json:"category,omitempty"`
	Action     string         `json:"action,omitempty"`
	Confidence float64        `json:"confidence"`
	ToolName   string         `json:"tool_name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	ErrorMsg   string         `json:"error_message,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// FeedbackType classifies user feedback on a resolved intent.
type FeedbackType string

const (
	FeedbackHelpful    FeedbackType = "helpful"
	FeedbackIncorrect  FeedbackType = "incorrect"
	FeedbackCorrection FeedbackType = "correction"
)

// Feedback references the original intent by id. It never mutates the
// intent record it refers to.
type Feedback struct {
	ID         string       `json:"id"`
	IntentID   string       `json:"intent_id"`
	Type       FeedbackType `json:"type"`
	Correction string       `json:"correction,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// CategoryStat is a per-category success aggregate for one user.
type CategoryStat struct {
	Category    string  `json:"category"`
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
}

// Store persists intent records and feedback.
type Store interface {
	// RecordIntent appends a new record, assigning ID and CreatedAt when
	// unset, and returns the stored record.
	RecordIntent(ctx context.Context, rec *IntentRecord) (*IntentRecord, error)

	// UpdateOutcome resolves a record with its execution outcome.
	UpdateOutcome(ctx context.Context, intentID string, success bool, errMsg string) (*IntentRecord, error)

	// RecentByUser returns up to n records for the user, most recent first.
	RecentByUser(ctx context.Context, userID string, n int) ([]*IntentRecord, error)

	// SubmitFeedback appends feedback referencing an existing intent.
	SubmitFeedback(ctx context.Context, fb *Feedback) error

	// CategoryStats aggregates resolved records into per-category success
	// rates for the user.
	CategoryStats(ctx context.Context, userID string) ([]CategoryStat, error)

	Close() error
}
