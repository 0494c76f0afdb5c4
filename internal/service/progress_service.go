package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tahfidz-api/internal/dto"
	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/internal/progress"
	appErrors "github.com/noah-isme/tahfidz-api/pkg/errors"
)

const progressCachePrefix = "progress:learner:"

type unitCatalog interface {
	FindByCode(ctx context.Context, code string) (*models.CurriculumUnit, error)
	List(ctx context.Context) ([]models.CurriculumUnit, error)
}

type learnerReader interface {
	FindByID(ctx context.Context, id string) (*models.Learner, error)
	ListByCohort(ctx context.Context, cohortID string) ([]models.Learner, error)
	ConfirmedUnit(ctx context.Context, learnerID string) (*models.LearnerUnitAssignment, error)
}

type submissionReader interface {
	ListByLearnerUnit(ctx context.Context, learnerID, unitCode string) ([]models.SubmissionRecord, error)
}

type warningReader interface {
	ListByLearner(ctx context.Context, learnerID string) ([]models.WarningLetter, error)
	FindHistory(ctx context.Context, learnerID string) (*models.EscalationHistory, error)
}

type progressCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// ProgressServiceConfig tunes caching and fan-out.
type ProgressServiceConfig struct {
	CacheTTL          time.Duration
	CohortConcurrency int
}

// ProgressService derives learner progress grids from submissions on every read.
type ProgressService struct {
	learners    learnerReader
	units       unitCatalog
	submissions submissionReader
	warnings    warningReader
	cache       progressCache
	metrics     *MetricsService
	cfg         ProgressServiceConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewProgressService builds a ProgressService with sane defaults. cache may be nil.
func NewProgressService(
	learners learnerReader,
	units unitCatalog,
	submissions submissionReader,
	warnings warningReader,
	cache progressCache,
	metrics *MetricsService,
	cfg ProgressServiceConfig,
	logger *zap.Logger,
) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CohortConcurrency <= 0 {
		cfg.CohortConcurrency = 4
	}
	return &ProgressService{
		learners:    learners,
		units:       units,
		submissions: submissions,
		warnings:    warnings,
		cache:       cache,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ProgressCacheKey is the cache key of a learner's progress view.
func ProgressCacheKey(learnerID string) string {
	return progressCachePrefix + learnerID
}

// ProgressCachePattern matches every cached view of a learner.
func ProgressCachePattern(learnerID string) string {
	return progressCachePrefix + learnerID + "*"
}

// Get returns the progress view of a learner. Staff may read anyone, learners only themselves.
// The boolean reports whether the view came from cache. Only ladder writes invalidate a cached
// view, so new submissions show up once the entry expires.
func (s *ProgressService) Get(ctx context.Context, learnerID string, claims *models.JWTClaims) (*dto.LearnerProgress, bool, error) {
	if err := authorizeLearnerRead(claims, learnerID); err != nil {
		return nil, false, err
	}

	key := ProgressCacheKey(learnerID)
	if s.cache != nil {
		var cached dto.LearnerProgress
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	view, err := s.Compute(ctx, learnerID)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, view, s.cfg.CacheTTL)
	}
	return view, false, nil
}

// Compute rebuilds the progress view from storage, bypassing the cache.
func (s *ProgressService) Compute(ctx context.Context, learnerID string) (*dto.LearnerProgress, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveProgressCompute(time.Since(start)) }()

	learner, err := s.learners.FindByID(ctx, learnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "learner not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learner")
	}

	unit, err := s.resolveUnit(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	result := progress.EmptyResult()
	stats := progress.SubmissionStats{WeeksWithSubmission: []int{}}
	if unit != nil {
		submissions, err := s.submissions.ListByLearnerUnit(ctx, learnerID, unit.Code)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
		}
		result = progress.Aggregate(progress.GenerateBlocks(*unit), submissions)
		stats = progress.Stats(submissions)
	}

	warnings, err := s.warnings.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load warnings")
	}
	history, err := s.warnings.FindHistory(ctx, learnerID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load escalation history")
	}

	view := &dto.LearnerProgress{
		LearnerID:           learner.ID,
		LearnerName:         learner.FullName,
		Unit:                unit,
		WeeklyStatus:        attachWarnings(result.Weeks, warnings),
		Summary:             result.Summary,
		SubmissionCount:     stats.Count,
		WeeksWithSubmission: stats.WeeksWithSubmission,
		LatestSubmission:    stats.LatestSubmission,
		WarningSummary:      summarizeWarnings(warnings, learner.Blacklisted || history != nil),
		GeneratedAt:         s.now(),
	}
	return view, nil
}

// resolveUnit returns nil when the learner has no confirmed unit or the unit code is unknown.
func (s *ProgressService) resolveUnit(ctx context.Context, learnerID string) (*models.CurriculumUnit, error) {
	assignment, err := s.learners.ConfirmedUnit(ctx, learnerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve confirmed unit")
	}
	if assignment == nil {
		return nil, nil
	}
	unit, err := s.units.FindByCode(ctx, assignment.UnitCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("confirmed unit missing from catalog", zap.String("learner_id", learnerID), zap.String("unit_code", assignment.UnitCode))
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum unit")
	}
	return unit, nil
}

// WeekCompleted recomputes the grid and reports whether the given week is fully covered.
func (s *ProgressService) WeekCompleted(ctx context.Context, learnerID string, week int) (bool, error) {
	view, err := s.Compute(ctx, learnerID)
	if err != nil {
		return false, err
	}
	status, ok := view.Week(week)
	if !ok {
		return false, nil
	}
	return status.IsCompleted, nil
}

// Invalidate drops any cached view of the learner.
func (s *ProgressService) Invalidate(ctx context.Context, learnerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ProgressCachePattern(learnerID)); err != nil {
		s.logger.Warn("progress cache invalidation failed", zap.String("learner_id", learnerID), zap.Error(err))
	}
}

// UnitBlocks returns the block schedule generated for a curriculum unit.
func (s *ProgressService) UnitBlocks(ctx context.Context, code string) (*dto.UnitBlocks, error) {
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unit code is required")
	}
	unit, err := s.units.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum unit")
	}
	return &dto.UnitBlocks{Unit: *unit, Blocks: progress.GenerateBlocks(*unit)}, nil
}

// Units lists the curriculum catalog.
func (s *ProgressService) Units(ctx context.Context) ([]models.CurriculumUnit, error) {
	units, err := s.units.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list curriculum units")
	}
	return units, nil
}

// CohortOverview computes every learner of a cohort with bounded concurrency.
func (s *ProgressService) CohortOverview(ctx context.Context, cohortID string, claims *models.JWTClaims) (*dto.CohortProgress, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	learners, err := s.learners.ListByCohort(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cohort learners")
	}

	rows := make([]dto.CohortLearnerProgress, len(learners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CohortConcurrency)
	for i, learner := range learners {
		i, learnerID := i, learner.ID
		g.Go(func() error {
			view, err := s.Compute(gctx, learnerID)
			if err != nil {
				return fmt.Errorf("learner %s: %w", learnerID, err)
			}
			rows[i] = cohortRow(view)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute cohort progress")
	}

	overview := &dto.CohortProgress{CohortID: cohortID, Learners: rows}
	if len(rows) > 0 {
		total := 0
		for _, row := range rows {
			total += row.Summary.Percentage
			if row.Blacklisted {
				overview.BlacklistedCount++
			}
		}
		overview.AveragePercentage = total / len(rows)
	}
	return overview, nil
}

func cohortRow(view *dto.LearnerProgress) dto.CohortLearnerProgress {
	row := dto.CohortLearnerProgress{
		LearnerID:    view.LearnerID,
		LearnerName:  view.LearnerName,
		Summary:      view.Summary,
		WarningLevel: view.WarningSummary.Level,
		Blacklisted:  view.WarningSummary.Blacklisted,
	}
	if view.Unit != nil {
		row.HasUnit = true
		row.UnitCode = view.Unit.Code
	}
	for _, week := range view.WeeklyStatus {
		if week.IsCompleted {
			row.CompletedWeeks++
		}
	}
	return row
}

func attachWarnings(weeks []progress.WeekStatus, warnings []models.WarningLetter) []dto.WeeklyStatus {
	byWeek := make(map[int]models.WarningLetter, len(warnings))
	for _, w := range warnings {
		if w.Active() {
			byWeek[w.WeekNumber] = w
		}
	}
	out := make([]dto.WeeklyStatus, len(weeks))
	for i, week := range weeks {
		out[i] = dto.WeeklyStatus{WeekStatus: week}
		if w, ok := byWeek[week.Week]; ok {
			out[i].Warning = &dto.WeekWarning{ID: w.ID, Level: w.Level, IssuedAt: w.IssuedAt, Reason: w.Reason, Blacklist: w.Blacklist}
		}
	}
	return out
}

func summarizeWarnings(warnings []models.WarningLetter, blacklisted bool) dto.WarningSummary {
	summary := dto.WarningSummary{Blacklisted: blacklisted}
	var top *models.WarningLetter
	for i := range warnings {
		w := &warnings[i]
		if !w.Active() {
			continue
		}
		summary.ActiveCount++
		if top == nil || w.Level > top.Level {
			top = w
		}
	}
	if top != nil {
		issuedAt := top.IssuedAt
		summary.Level = top.Level
		summary.Week = top.WeekNumber
		summary.IssuedAt = &issuedAt
		summary.Reason = top.Reason
	}
	return summary
}

func authorizeLearnerRead(claims *models.JWTClaims, learnerID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.IsStaff() || claims.UserID == learnerID {
		return nil
	}
	return appErrors.ErrForbidden
}
