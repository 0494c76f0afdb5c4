package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/tahfidz-api/internal/dto"
	"github.com/noah-isme/tahfidz-api/internal/models"
	appErrors "github.com/noah-isme/tahfidz-api/pkg/errors"
	"github.com/noah-isme/tahfidz-api/pkg/export"
)

type warningFinder interface {
	FindByID(ctx context.Context, id string) (*models.WarningLetter, error)
}

type letterRenderer interface {
	Render(letter export.Letter) ([]byte, error)
}

// LetterService prints warning letters.
type LetterService struct {
	warnings   warningFinder
	learners   learnerReader
	units      unitCatalog
	renderer   letterRenderer
	issuerName string
}

// NewLetterService constructs the letter service.
func NewLetterService(warnings warningFinder, learners learnerReader, units unitCatalog, renderer letterRenderer, issuerName string) *LetterService {
	if renderer == nil {
		renderer = export.NewLetterRenderer()
	}
	return &LetterService{warnings: warnings, learners: learners, units: units, renderer: renderer, issuerName: issuerName}
}

// Render produces the PDF of a warning letter. Learners may download their own letters.
func (s *LetterService) Render(ctx context.Context, warningID string, claims *models.JWTClaims) (*dto.ExportFile, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	warning, err := s.warnings.FindByID(ctx, warningID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "warning not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load warning")
	}
	if err := authorizeLearnerRead(claims, warning.LearnerID); err != nil {
		return nil, err
	}

	learner, err := s.learners.FindByID(ctx, warning.LearnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "learner not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learner")
	}

	unitName := "-"
	if assignment, err := s.learners.ConfirmedUnit(ctx, learner.ID); err == nil && assignment != nil {
		unitName = assignment.UnitCode
		if unit, err := s.units.FindByCode(ctx, assignment.UnitCode); err == nil {
			unitName = unit.Name
		}
	}

	payload, err := s.renderer.Render(export.Letter{
		Reference:   warning.ID,
		IssuerName:  s.issuerName,
		LearnerName: learner.FullName,
		LearnerID:   learner.ID,
		UnitName:    unitName,
		Level:       warning.Level,
		WeekNumber:  warning.WeekNumber,
		Reason:      warning.Reason,
		IssuedAt:    warning.IssuedAt,
		Cancelled:   !warning.Active(),
		Terminal:    warning.Blacklist,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render warning letter")
	}
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("warning-letter-%d-%s.pdf", warning.Level, warning.ID),
		ContentType: "application/pdf",
		Payload:     payload,
	}, nil
}
