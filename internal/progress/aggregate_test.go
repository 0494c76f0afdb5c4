package progress

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

var firstHalfUnit = models.CurriculumUnit{Code: "J1", StartPage: 1, EndPage: 20, Half: models.HalfFirst}

func submission(code string, day int) models.SubmissionRecord {
	return models.SubmissionRecord{
		LearnerID:   "learner-1",
		BlockRef:    models.SingleBlockRef(code),
		SubmittedOn: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
	}
}

func TestAggregateNoSubmissions(t *testing.T) {
	result := Aggregate(GenerateBlocks(firstHalfUnit), nil)
	require.Len(t, result.Weeks, models.WeeksPerUnit)
	for _, week := range result.Weeks {
		assert.False(t, week.IsCompleted)
		assert.Equal(t, models.BlocksPerWeek, week.TotalUnits)
		for _, block := range week.Blocks {
			assert.False(t, block.Completed)
		}
	}
	assert.Equal(t, Summary{Total: 40, Completed: 0, Pending: 40, Percentage: 0}, result.Summary)
}

func TestAggregateAllBlocksCovered(t *testing.T) {
	template := GenerateBlocks(firstHalfUnit)
	submissions := make([]models.SubmissionRecord, 0, len(template))
	for i, block := range template {
		submissions = append(submissions, submission(block.Code, i%28+1))
	}
	result := Aggregate(template, submissions)
	assert.Equal(t, 100, result.Summary.Percentage)
	assert.Equal(t, 40, result.Summary.Completed)
	assert.Zero(t, result.Summary.Pending)
	for _, week := range result.Weeks {
		assert.True(t, week.IsCompleted, "week %d", week.Week)
	}
}

func TestAggregateSingleWeekScenario(t *testing.T) {
	submissions := []models.SubmissionRecord{
		submission("H3A", 1),
		submission("3B", 2),
		{BlockRef: models.ListBlockRef("H3C", "3D"), SubmittedOn: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
	}
	result := Aggregate(GenerateBlocks(firstHalfUnit), submissions)

	for _, week := range result.Weeks {
		if week.Week == 3 {
			assert.True(t, week.IsCompleted)
			assert.Equal(t, 4, week.CompletedCount)
			continue
		}
		assert.False(t, week.IsCompleted, "week %d", week.Week)
	}
	assert.Equal(t, 4, result.Summary.Completed)
	assert.Equal(t, 10, result.Summary.Percentage)
}

func TestAggregateCountsAndLastDate(t *testing.T) {
	submissions := []models.SubmissionRecord{
		submission("H2A", 10),
		submission("2A", 4),
		submission("H2A", 7),
		submission("H99Z", 9),
		{BlockRef: models.BlockRef{Kind: models.BlockRefAbsent}},
	}
	result := Aggregate(GenerateBlocks(firstHalfUnit), submissions)
	week, ok := result.Week(2)
	require.True(t, ok)
	block := week.Blocks[0]
	assert.Equal(t, "H2A", block.Code)
	assert.True(t, block.Completed)
	assert.Equal(t, 3, block.Count)
	require.NotNil(t, block.LastDate)
	assert.Equal(t, 10, block.LastDate.Day())
	assert.Equal(t, 1, result.Summary.Completed)
}

func TestAggregateIgnoresOtherHalf(t *testing.T) {
	result := Aggregate(GenerateBlocks(firstHalfUnit), []models.SubmissionRecord{submission("H13A", 1)})
	assert.Zero(t, result.Summary.Completed)
}

func TestAggregateOrderIndependent(t *testing.T) {
	template := GenerateBlocks(firstHalfUnit)
	var submissions []models.SubmissionRecord
	for i, block := range template {
		if i%3 == 0 {
			submissions = append(submissions, submission(block.Code, i%27+1))
		}
	}
	submissions = append(submissions, submission("H1A", 28), submission("[broken", 2))
	baseline := Aggregate(template, submissions)

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 10; run++ {
		shuffled := append([]models.SubmissionRecord(nil), submissions...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := Aggregate(template, shuffled)
		assert.Equal(t, baseline, got)
	}
}

func TestAggregateMonotonicOverSuperset(t *testing.T) {
	template := GenerateBlocks(firstHalfUnit)
	base := []models.SubmissionRecord{submission("H1A", 1), submission("H4C", 2)}
	superset := append(append([]models.SubmissionRecord(nil), base...), submission("H5D", 3))

	before := Aggregate(template, base)
	after := Aggregate(template, superset)
	for w := range before.Weeks {
		for b := range before.Weeks[w].Blocks {
			if before.Weeks[w].Blocks[b].Completed {
				assert.True(t, after.Weeks[w].Blocks[b].Completed)
			}
		}
	}
	assert.GreaterOrEqual(t, after.Summary.Completed, before.Summary.Completed)
}

func TestEmptyResult(t *testing.T) {
	result := EmptyResult()
	require.Len(t, result.Weeks, models.WeeksPerUnit)
	assert.Equal(t, 1, result.Weeks[0].Week)
	assert.Zero(t, result.Weeks[0].TotalUnits)
	assert.False(t, result.Weeks[9].IsCompleted)
	assert.Equal(t, Summary{}, result.Summary)
}

func TestStats(t *testing.T) {
	submissions := []models.SubmissionRecord{
		submission("H5A", 3),
		submission("15B", 9),
		submission("H2A", 1),
		submission("oops", 4),
	}
	stats := Stats(submissions)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, []int{2, 5}, stats.WeeksWithSubmission)
	require.NotNil(t, stats.LatestSubmission)
	assert.Equal(t, 9, stats.LatestSubmission.Day())
}
