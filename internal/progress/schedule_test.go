package progress

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

func TestGenerateBlocksShape(t *testing.T) {
	units := []models.CurriculumUnit{
		{Code: "J30", StartPage: 1, EndPage: 20, Half: models.HalfFirst},
		{Code: "J30B", StartPage: 582, EndPage: 604, Half: models.HalfSecond},
		{Code: "SHORT", StartPage: 100, EndPage: 104, Half: models.HalfFirst},
	}
	for _, unit := range units {
		t.Run(unit.Code, func(t *testing.T) {
			blocks := GenerateBlocks(unit)
			require.Len(t, blocks, models.BlocksPerUnit)

			perWeek := map[int]int{}
			codes := map[string]struct{}{}
			for _, b := range blocks {
				perWeek[b.Week]++
				codes[b.Code] = struct{}{}
				assert.GreaterOrEqual(t, b.Page, unit.StartPage)
				assert.LessOrEqual(t, b.Page, unit.EndPage)
				assert.False(t, b.Completed)
				assert.Zero(t, b.Count)

				week, ok := weekFromCode(b.Code)
				require.True(t, ok)
				assert.Equal(t, b.Week, week)
			}
			assert.Len(t, codes, models.BlocksPerUnit)
			for week := 1; week <= models.WeeksPerUnit; week++ {
				assert.Equal(t, models.BlocksPerWeek, perWeek[week])
			}
		})
	}
}

func TestGenerateBlocksFirstWeek(t *testing.T) {
	blocks := GenerateBlocks(models.CurriculumUnit{StartPage: 1, EndPage: 20, Half: models.HalfFirst})
	want := []models.Block{
		{Code: "H1A", Week: 1, Part: "A", Page: 1},
		{Code: "H1B", Week: 1, Part: "B", Page: 2},
		{Code: "H1C", Week: 1, Part: "C", Page: 3},
		{Code: "H1D", Week: 1, Part: "D", Page: 4},
	}
	if diff := cmp.Diff(want, blocks[:4]); diff != "" {
		t.Fatalf("first week mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateBlocksSecondHalfOffset(t *testing.T) {
	blocks := GenerateBlocks(models.CurriculumUnit{StartPage: 10, EndPage: 30, Half: models.HalfSecond})
	assert.Equal(t, "H11A", blocks[0].Code)
	assert.Equal(t, "H20D", blocks[len(blocks)-1].Code)
	assert.Equal(t, 10, blocks[len(blocks)-1].Week)
	assert.Equal(t, 22, blocks[len(blocks)-1].Page)
}

func TestGenerateBlocksClampsPages(t *testing.T) {
	blocks := GenerateBlocks(models.CurriculumUnit{StartPage: 1, EndPage: 5, Half: models.HalfFirst})
	last := blocks[len(blocks)-1]
	assert.Equal(t, 5, last.Page)
}
