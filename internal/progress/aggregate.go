package progress

import (
	"math"
	"sort"
	"time"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

// BlockStatus is a template block enriched with observed completion.
type BlockStatus struct {
	models.Block
	LastDate *time.Time `json:"last_date,omitempty"`
}

// WeekStatus is the derived completion snapshot of one week.
type WeekStatus struct {
	Week           int           `json:"week"`
	TotalUnits     int           `json:"total_units"`
	CompletedCount int           `json:"completed_count"`
	IsCompleted    bool          `json:"is_completed"`
	Blocks         []BlockStatus `json:"blocks"`
}

// Summary totals a unit's grid.
type Summary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	Percentage int `json:"percentage"`
}

// Result is the aggregated grid of one learner on one unit.
type Result struct {
	Weeks   []WeekStatus `json:"weeks"`
	Summary Summary      `json:"summary"`
}

// Week returns the status of week n (1-based).
func (r Result) Week(n int) (WeekStatus, bool) {
	for _, w := range r.Weeks {
		if w.Week == n {
			return w, true
		}
	}
	return WeekStatus{}, false
}

type blockEntry struct {
	completed bool
	count     int
	lastDate  *time.Time
}

// Aggregate merges submissions into the template. Codes outside the template are ignored and
// the outcome does not depend on submission order.
func Aggregate(template []models.Block, submissions []models.SubmissionRecord) Result {
	index := make(map[string]*blockEntry, len(template))
	for _, block := range template {
		index[block.Code] = &blockEntry{}
	}

	for _, submission := range submissions {
		for _, code := range NormalizeBlockRef(submission.BlockRef) {
			entry, ok := index[code]
			if !ok {
				continue
			}
			entry.completed = true
			entry.count++
			if entry.lastDate == nil || submission.SubmittedOn.After(*entry.lastDate) {
				date := submission.SubmittedOn
				entry.lastDate = &date
			}
		}
	}

	weeks := make([]WeekStatus, models.WeeksPerUnit)
	for i := range weeks {
		weeks[i] = WeekStatus{Week: i + 1, Blocks: make([]BlockStatus, 0, models.BlocksPerWeek)}
	}

	completed := 0
	for _, block := range template {
		if block.Week < 1 || block.Week > models.WeeksPerUnit {
			continue
		}
		entry := index[block.Code]
		status := BlockStatus{Block: block}
		status.Completed = entry.completed
		status.Count = entry.count
		status.LastDate = entry.lastDate

		week := &weeks[block.Week-1]
		week.Blocks = append(week.Blocks, status)
		week.TotalUnits++
		if entry.completed {
			week.CompletedCount++
			completed++
		}
	}
	for i := range weeks {
		weeks[i].IsCompleted = weeks[i].TotalUnits > 0 && weeks[i].CompletedCount == weeks[i].TotalUnits
	}

	total := len(template)
	summary := Summary{Total: total, Completed: completed, Pending: total - completed}
	if total > 0 {
		summary.Percentage = int(math.Round(float64(completed) / float64(total) * 100))
	}
	return Result{Weeks: weeks, Summary: summary}
}

// EmptyResult is the grid reported when no curriculum unit resolves for a learner.
func EmptyResult() Result {
	weeks := make([]WeekStatus, models.WeeksPerUnit)
	for i := range weeks {
		weeks[i] = WeekStatus{Week: i + 1, Blocks: []BlockStatus{}}
	}
	return Result{Weeks: weeks}
}

// SubmissionStats describes raw submission activity independent of the template.
type SubmissionStats struct {
	Count               int        `json:"submission_count"`
	WeeksWithSubmission []int      `json:"weeks_with_submission"`
	LatestSubmission    *time.Time `json:"latest_submission,omitempty"`
}

// Stats counts submissions and the distinct weeks they touch.
func Stats(submissions []models.SubmissionRecord) SubmissionStats {
	stats := SubmissionStats{Count: len(submissions), WeeksWithSubmission: []int{}}
	seen := make(map[int]struct{}, models.WeeksPerUnit)
	for _, submission := range submissions {
		if week, ok := DeriveWeek(submission.BlockRef); ok {
			if _, dup := seen[week]; !dup {
				seen[week] = struct{}{}
				stats.WeeksWithSubmission = append(stats.WeeksWithSubmission, week)
			}
		}
		if stats.LatestSubmission == nil || submission.SubmittedOn.After(*stats.LatestSubmission) {
			date := submission.SubmittedOn
			stats.LatestSubmission = &date
		}
	}
	sort.Ints(stats.WeeksWithSubmission)
	return stats
}
