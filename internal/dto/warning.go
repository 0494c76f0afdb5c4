package dto

import "github.com/noah-isme/tahfidz-api/internal/models"

// IssueWarningRequest defines payload for issuing the next warning of a learner's ladder.
type IssueWarningRequest struct {
	LearnerID     string  `json:"learner_id" validate:"required"`
	Week          int     `json:"week" validate:"required,min=1,max=10"`
	Reason        string  `json:"reason" validate:"required,max=500"`
	FinalAction   string  `json:"final_action,omitempty" validate:"omitempty,oneof=blacklisted permanent_dismissal temporary_dismissal"`
	ExceptionType *string `json:"exception_type,omitempty" validate:"omitempty,max=100"`
	Notes         string  `json:"notes,omitempty" validate:"max=1000"`
}

// WarningResponse reports the outcome of an issuance.
type WarningResponse struct {
	Warning    models.WarningLetter      `json:"warning"`
	Replayed   bool                      `json:"replayed"`
	Degraded   bool                      `json:"degraded"`
	Escalation *models.EscalationHistory `json:"escalation,omitempty"`
}

// CancelWarningResponse reports the outcome of a cancellation.
type CancelWarningResponse struct {
	Warning  models.WarningLetter `json:"warning"`
	Changed  bool                 `json:"changed"`
	Degraded bool                 `json:"degraded"`
}

// EscalationView is a learner's full ladder state.
type EscalationView struct {
	LearnerID      string                    `json:"learner_id"`
	Blacklisted    bool                      `json:"blacklisted"`
	ActiveWarnings []models.WarningLetter    `json:"active_warnings"`
	History        *models.EscalationHistory `json:"history,omitempty"`
}

// RequestMeta carries caller details recorded in the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// ExportFile is a rendered document ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}
