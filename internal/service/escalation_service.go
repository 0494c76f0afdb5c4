package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tahfidz-api/internal/dto"
	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/internal/progress"
	"github.com/noah-isme/tahfidz-api/internal/repository"
	appErrors "github.com/noah-isme/tahfidz-api/pkg/errors"
	"github.com/noah-isme/tahfidz-api/pkg/jobs"
)

const (
	warningResource    = "warning_letter"
	escalationResource = "escalation_history"
	auditRetryJobType  = "audit_retry"
)

type warningStore interface {
	Issue(ctx context.Context, params repository.IssueWarningParams) (*repository.IssueWarningResult, error)
	Cancel(ctx context.Context, id, cancelledBy string) (*models.WarningLetter, bool, error)
	FindByID(ctx context.Context, id string) (*models.WarningLetter, error)
	ListByLearner(ctx context.Context, learnerID string) ([]models.WarningLetter, error)
	FindHistory(ctx context.Context, learnerID string) (*models.EscalationHistory, error)
}

type learnerFinder interface {
	FindByID(ctx context.Context, id string) (*models.Learner, error)
}

type weekProgress interface {
	WeekCompleted(ctx context.Context, learnerID string, week int) (bool, error)
	Invalidate(ctx context.Context, learnerID string)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// EscalationService drives the three-strike warning ladder.
type EscalationService struct {
	store     warningStore
	learners  learnerFinder
	progress  weekProgress
	audit     auditLogger
	retries   jobEnqueuer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEscalationService builds an EscalationService with sane defaults. retries may be nil, in
// which case failed audit writes are only logged.
func NewEscalationService(
	store warningStore,
	learners learnerFinder,
	progress weekProgress,
	audit auditLogger,
	retries jobEnqueuer,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *EscalationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		store:     store,
		learners:  learners,
		progress:  progress,
		audit:     audit,
		retries:   retries,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Issue writes the next warning for a learner's non-compliant week. Repeating a request for a
// week that already carries an active warning returns that warning with Replayed set.
func (s *EscalationService) Issue(ctx context.Context, req dto.IssueWarningRequest, actor *models.JWTClaims, meta dto.RequestMeta) (*dto.WarningResponse, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid warning payload")
	}

	completed, err := s.progress.WeekCompleted(ctx, req.LearnerID, req.Week)
	if err != nil {
		return nil, err
	}
	if completed {
		// A retry may land after the week filled up; the original warning still answers it.
		existing, err := s.activeWarningForWeek(ctx, req.LearnerID, req.Week)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, appErrors.Clone(appErrors.ErrWeekCompleted, fmt.Sprintf("week %d is already completed", req.Week))
		}
		return &dto.WarningResponse{Warning: *existing, Replayed: true}, nil
	}

	result, err := s.store.Issue(ctx, repository.IssueWarningParams{
		LearnerID:     req.LearnerID,
		Week:          req.Week,
		Reason:        req.Reason,
		IssuedBy:      actor.UserID,
		FinalAction:   models.FinalAction(req.FinalAction),
		ExceptionType: req.ExceptionType,
		Notes:         req.Notes,
	})
	if err != nil {
		return nil, s.mapWriteError(err, "failed to issue warning")
	}

	resp := &dto.WarningResponse{Warning: result.Warning, Replayed: result.Replayed, Escalation: result.History}
	if result.Replayed {
		return resp, nil
	}

	s.metrics.WarningIssued(result.Warning.Level)
	s.progress.Invalidate(ctx, req.LearnerID)
	s.logger.Info("warning issued",
		zap.String("learner_id", req.LearnerID),
		zap.String("warning_id", result.Warning.ID),
		zap.Int("level", result.Warning.Level),
		zap.Int("week", result.Warning.WeekNumber),
		zap.Bool("terminal", result.History != nil),
	)

	resp.Degraded = !s.emitAudit(ctx, actor, meta, models.AuditActionWarningIssue, warningResource, result.Warning.ID, nil, result.Warning)
	if result.History != nil {
		if !s.emitAudit(ctx, actor, meta, models.AuditActionEscalation, escalationResource, result.History.ID, nil, result.History) {
			resp.Degraded = true
		}
	}
	return resp, nil
}

func (s *EscalationService) activeWarningForWeek(ctx context.Context, learnerID string, week int) (*models.WarningLetter, error) {
	warnings, err := s.store.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load warnings")
	}
	for i := range warnings {
		if warnings[i].Active() && warnings[i].WeekNumber == week {
			return &warnings[i], nil
		}
	}
	return nil, nil
}

// Cancel marks a warning cancelled. Cancelling twice is not an error; Changed reports whether
// this call flipped the status.
func (s *EscalationService) Cancel(ctx context.Context, warningID string, actor *models.JWTClaims, meta dto.RequestMeta) (*dto.CancelWarningResponse, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if warningID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "warning id is required")
	}

	warning, changed, err := s.store.Cancel(ctx, warningID, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "warning not found")
		}
		return nil, s.mapWriteError(err, "failed to cancel warning")
	}

	resp := &dto.CancelWarningResponse{Warning: *warning, Changed: changed}
	if !changed {
		return resp, nil
	}

	s.metrics.WarningCancelled()
	s.progress.Invalidate(ctx, warning.LearnerID)
	s.logger.Info("warning cancelled", zap.String("warning_id", warning.ID), zap.String("learner_id", warning.LearnerID), zap.Int("level", warning.Level))

	before := *warning
	before.Status = models.WarningStatusActive
	before.CancelledAt = nil
	before.CancelledBy = nil
	resp.Degraded = !s.emitAudit(ctx, actor, meta, models.AuditActionWarningCancel, warningResource, warning.ID, before, warning)
	return resp, nil
}

// List returns every warning of a learner, newest first.
func (s *EscalationService) List(ctx context.Context, learnerID string, claims *models.JWTClaims) ([]models.WarningLetter, error) {
	if err := authorizeLearnerRead(claims, learnerID); err != nil {
		return nil, err
	}
	if err := s.ensureLearner(ctx, learnerID); err != nil {
		return nil, err
	}
	warnings, err := s.store.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list warnings")
	}
	if warnings == nil {
		warnings = []models.WarningLetter{}
	}
	return warnings, nil
}

// Escalation returns the ladder state of a learner including the terminal record if any.
func (s *EscalationService) Escalation(ctx context.Context, learnerID string, claims *models.JWTClaims) (*dto.EscalationView, error) {
	if err := requireStaff(claims); err != nil {
		return nil, err
	}
	learner, err := s.learners.FindByID(ctx, learnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "learner not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learner")
	}
	warnings, err := s.store.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list warnings")
	}
	history, err := s.store.FindHistory(ctx, learnerID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load escalation history")
	}

	view := &dto.EscalationView{
		LearnerID:      learnerID,
		Blacklisted:    learner.Blacklisted || history != nil,
		ActiveWarnings: []models.WarningLetter{},
		History:        history,
	}
	for _, w := range warnings {
		if w.Active() {
			view.ActiveWarnings = append(view.ActiveWarnings, w)
		}
	}
	return view, nil
}

func (s *EscalationService) ensureLearner(ctx context.Context, learnerID string) error {
	if _, err := s.learners.FindByID(ctx, learnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "learner not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learner")
	}
	return nil
}

func (s *EscalationService) mapWriteError(err error, message string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "learner not found")
	case errors.Is(err, progress.ErrLadderExhausted):
		return appErrors.Wrap(err, appErrors.ErrTerminalState.Code, appErrors.ErrTerminalState.Status, appErrors.ErrTerminalState.Message)
	case errors.Is(err, repository.ErrWarningConflict):
		s.metrics.EscalationConflict()
		conflict := appErrors.Wrap(err, appErrors.ErrConcurrentWrite.Code, appErrors.ErrConcurrentWrite.Status, appErrors.ErrConcurrentWrite.Message)
		conflict.Retryable = true
		return conflict
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// emitAudit writes an audit record and reports whether it landed. A failed write is handed to
// the retry queue; the primary change is never rolled back.
func (s *EscalationService) emitAudit(ctx context.Context, actor *models.JWTClaims, meta dto.RequestMeta, action, resource, resourceID string, oldValue, newValue interface{}) bool {
	if s.audit == nil {
		return true
	}
	var oldJSON, newJSON []byte
	if oldValue != nil {
		oldJSON, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		newJSON, _ = json.Marshal(newValue)
	}
	var userID *string
	if actor != nil {
		id := actor.UserID
		userID = &id
	}
	resID := resourceID
	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}
	err := s.audit.CreateAuditLog(ctx, entry)
	if err == nil {
		return true
	}

	s.metrics.AuditFailure()
	s.logger.Warn("failed to write audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	if s.retries != nil {
		if qErr := s.retries.Enqueue(jobs.Job{ID: entry.ID, Type: auditRetryJobType, Payload: entry}); qErr != nil {
			s.logger.Error("failed to schedule audit retry", zap.String("audit_id", entry.ID), zap.Error(qErr))
		}
	}
	return false
}

// NewAuditRetryHandler replays audit entries queued after a failed write.
func NewAuditRetryHandler(audit auditLogger) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit retry payload %T", job.Payload)
		}
		return audit.CreateAuditLog(ctx, entry)
	}
}

func requireStaff(claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if !claims.IsStaff() {
		return appErrors.ErrForbidden
	}
	return nil
}
