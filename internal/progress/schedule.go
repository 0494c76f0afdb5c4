package progress

import (
	"fmt"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

// GenerateBlocks builds the 40-block template of a unit ordered by week then part.
// Pages are clamped to the unit's last page so short units never overrun.
func GenerateBlocks(unit models.CurriculumUnit) []models.Block {
	offset := unit.Half.BlockOffset()
	blocks := make([]models.Block, 0, models.BlocksPerUnit)
	for week := 1; week <= models.WeeksPerUnit; week++ {
		blockNumber := week + offset
		weekStartPage := unit.StartPage + (week - 1)
		for i, part := range models.BlockParts {
			blocks = append(blocks, models.Block{
				Code: fmt.Sprintf("H%d%s", blockNumber, part),
				Week: week,
				Part: part,
				Page: min(weekStartPage+i, unit.EndPage),
			})
		}
	}
	return blocks
}
