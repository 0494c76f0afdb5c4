package dto

import (
	"time"

	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/internal/progress"
)

// WeekWarning is the active warning attached to a week, when one exists.
type WeekWarning struct {
	ID        string    `json:"id"`
	Level     int       `json:"level"`
	IssuedAt  time.Time `json:"issued_at"`
	Reason    string    `json:"reason"`
	Blacklist bool      `json:"blacklist"`
}

// WeeklyStatus is one week of the progress grid.
type WeeklyStatus struct {
	progress.WeekStatus
	Warning *WeekWarning `json:"warning,omitempty"`
}

// WarningSummary condenses a learner's ladder position. Level and Week describe the highest
// active warning; both are zero when no warning is active.
type WarningSummary struct {
	Level       int        `json:"level"`
	Week        int        `json:"week"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Blacklisted bool       `json:"blacklisted"`
	ActiveCount int        `json:"active_count"`
}

// LearnerProgress is the read model served for one learner.
type LearnerProgress struct {
	LearnerID           string                 `json:"learner_id"`
	LearnerName         string                 `json:"learner_name"`
	Unit                *models.CurriculumUnit `json:"unit"`
	WeeklyStatus        []WeeklyStatus         `json:"weekly_status"`
	Summary             progress.Summary       `json:"summary"`
	SubmissionCount     int                    `json:"submission_count"`
	WeeksWithSubmission []int                  `json:"weeks_with_submission"`
	LatestSubmission    *time.Time             `json:"latest_submission,omitempty"`
	WarningSummary      WarningSummary         `json:"warning_summary"`
	GeneratedAt         time.Time              `json:"generated_at"`
}

// Week returns week n of the grid.
func (p *LearnerProgress) Week(n int) (WeeklyStatus, bool) {
	for _, w := range p.WeeklyStatus {
		if w.Week == n {
			return w, true
		}
	}
	return WeeklyStatus{}, false
}

// CohortLearnerProgress is one row of a cohort overview.
type CohortLearnerProgress struct {
	LearnerID      string           `json:"learner_id"`
	LearnerName    string           `json:"learner_name"`
	HasUnit        bool             `json:"has_unit"`
	UnitCode       string           `json:"unit_code,omitempty"`
	Summary        progress.Summary `json:"summary"`
	CompletedWeeks int              `json:"completed_weeks"`
	WarningLevel   int              `json:"warning_level"`
	Blacklisted    bool             `json:"blacklisted"`
}

// CohortProgress summarises every learner of a cohort.
type CohortProgress struct {
	CohortID          string                  `json:"cohort_id"`
	Learners          []CohortLearnerProgress `json:"learners"`
	AveragePercentage int                     `json:"average_percentage"`
	BlacklistedCount  int                     `json:"blacklisted_count"`
}

// UnitBlocks is the generated block schedule of a curriculum unit.
type UnitBlocks struct {
	Unit   models.CurriculumUnit `json:"unit"`
	Blocks []models.Block        `json:"blocks"`
}
