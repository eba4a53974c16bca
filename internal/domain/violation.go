package domain

import "time"

type ViolationStatus string

const (
	StatusOpen          ViolationStatus = "open"
	StatusReviewed      ViolationStatus = "reviewed"
	StatusResolved      ViolationStatus = "resolved"
	StatusFalsePositive ViolationStatus = "false_positive"
)

func (s ViolationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusReviewed, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s ViolationStatus) Terminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// CanTransition implements the review state machine:
// open -> reviewed | false_positive, reviewed -> resolved.
func (s ViolationStatus) CanTransition(to ViolationStatus) bool {
	switch s {
	case StatusOpen:
		return to == StatusReviewed || to == StatusFalsePositive
	case StatusReviewed:
		return to == StatusResolved
	default:
		return false
	}
}

// Violation is a finding produced by a scan. RuleName and Severity are
// snapshotted at detection time so later rule edits do not rewrite history.
// For windowed rules TransactionID is a synthetic group id rather than a
// single dataset row.
type Violation struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transaction_id"`
	RuleID          string          `json:"rule_id"`
	RuleName        string          `json:"rule_name"`
	Severity        Severity        `json:"severity"`
	Explanation     string          `json:"explanation"`
	Evidence        map[string]any  `json:"evidence"`
	Status          ViolationStatus `json:"status"`
	ReviewerComment string          `json:"reviewer_comment,omitempty"`
	DetectedAt      time.Time       `json:"detected_at"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
}
