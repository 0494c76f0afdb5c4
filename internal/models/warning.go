package models

import "time"

// WarningStatus is the lifecycle state of a warning letter.
type WarningStatus string

const (
	WarningStatusActive    WarningStatus = "active"
	WarningStatusCancelled WarningStatus = "cancelled"
)

// MaxWarningLevel is the terminal rung of the warning ladder.
const MaxWarningLevel = 3

// WarningLetter is a disciplinary letter issued for a non-compliant week.
type WarningLetter struct {
	ID          string        `db:"id" json:"id"`
	LearnerID   string        `db:"learner_id" json:"learner_id"`
	Level       int           `db:"level" json:"level"`
	WeekNumber  int           `db:"week_number" json:"week_number"`
	Status      WarningStatus `db:"status" json:"status"`
	Reason      string        `db:"reason" json:"reason"`
	IssuedBy    string        `db:"issued_by" json:"issued_by"`
	IssuedAt    time.Time     `db:"issued_at" json:"issued_at"`
	Blacklist   bool          `db:"blacklist" json:"blacklist"`
	CancelledAt *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy *string       `db:"cancelled_by" json:"cancelled_by,omitempty"`
}

// Active reports whether the warning still counts toward the ladder.
func (w WarningLetter) Active() bool {
	return w.Status == WarningStatusActive
}

// FinalAction is the terminal disciplinary outcome.
type FinalAction string

const (
	FinalActionBlacklisted        FinalAction = "blacklisted"
	FinalActionPermanentDismissal FinalAction = "permanent_dismissal"
	FinalActionTemporaryDismissal FinalAction = "temporary_dismissal"
)

// EscalationHistory is written once when the ladder is exhausted and never mutated.
type EscalationHistory struct {
	ID            string      `db:"id" json:"id"`
	LearnerID     string      `db:"learner_id" json:"learner_id"`
	TotalWarnings int         `db:"total_warnings" json:"total_warnings"`
	FinalAction   FinalAction `db:"final_action" json:"final_action"`
	ExceptionType *string     `db:"exception_type" json:"exception_type,omitempty"`
	Notes         string      `db:"notes" json:"notes"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// Learner is the subset of learner data the ladder needs.
type Learner struct {
	ID          string `db:"id" json:"id"`
	FullName    string `db:"full_name" json:"full_name"`
	CohortID    string `db:"cohort_id" json:"cohort_id"`
	Blacklisted bool   `db:"blacklisted" json:"blacklisted"`
}
