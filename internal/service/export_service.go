package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tahfidz-api/internal/dto"
	"github.com/noah-isme/tahfidz-api/internal/models"
	appErrors "github.com/noah-isme/tahfidz-api/pkg/errors"
	"github.com/noah-isme/tahfidz-api/pkg/export"
)

type progressReader interface {
	Get(ctx context.Context, learnerID string, claims *models.JWTClaims) (*dto.LearnerProgress, bool, error)
}

var progressExportColumns = []export.Column{
	{Key: "week", Title: "Week", Width: 14},
	{Key: "block", Title: "Block", Width: 18},
	{Key: "page", Title: "Page", Width: 14},
	{Key: "completed", Title: "Completed"},
	{Key: "count", Title: "Submissions"},
	{Key: "last_date", Title: "Last Submission"},
	{Key: "week_completed", Title: "Week Completed"},
	{Key: "warning_level", Title: "Warning Level"},
}

// ExportService renders learner progress grids as downloadable documents.
type ExportService struct {
	progress progressReader
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs the export service.
func NewExportService(progress progressReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{progress: progress, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ExportProgress renders one learner's grid in the requested format.
func (s *ExportService) ExportProgress(ctx context.Context, learnerID, format string, claims *models.JWTClaims) (*dto.ExportFile, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	renderer, err := export.RendererFor(parsed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}

	view, _, err := s.progress.Get(ctx, learnerID, claims)
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(progressDataset(view))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Debug("progress exported", zap.String("learner_id", learnerID), zap.String("format", string(parsed)), zap.Int("bytes", len(payload)))

	return &dto.ExportFile{
		Filename:    fmt.Sprintf("progress-%s-%s.%s", learnerID, s.now().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

func progressDataset(view *dto.LearnerProgress) export.Dataset {
	title := fmt.Sprintf("Memorisation progress: %s", view.LearnerName)
	if view.Unit != nil {
		title = fmt.Sprintf("%s (%s, %d%%)", title, view.Unit.Name, view.Summary.Percentage)
	}
	rows := make([]map[string]string, 0, len(view.WeeklyStatus)*models.BlocksPerWeek)
	for _, week := range view.WeeklyStatus {
		warningLevel := ""
		if week.Warning != nil {
			warningLevel = strconv.Itoa(week.Warning.Level)
		}
		for _, block := range week.Blocks {
			lastDate := ""
			if block.LastDate != nil {
				lastDate = block.LastDate.Format("2006-01-02")
			}
			rows = append(rows, map[string]string{
				"week":           strconv.Itoa(week.Week),
				"block":          block.Code,
				"page":           strconv.Itoa(block.Page),
				"completed":      yesNo(block.Completed),
				"count":          strconv.Itoa(block.Count),
				"last_date":      lastDate,
				"week_completed": yesNo(week.IsCompleted),
				"warning_level":  warningLevel,
			})
		}
	}
	return export.Dataset{Title: title, Columns: progressExportColumns, Rows: rows}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
