package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tahfidz-api/internal/dto"
	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/internal/progress"
	"github.com/noah-isme/tahfidz-api/internal/repository"
	appErrors "github.com/noah-isme/tahfidz-api/pkg/errors"
	"github.com/noah-isme/tahfidz-api/pkg/jobs"
)

type memoryWarningStore struct {
	mu       sync.Mutex
	seq      int
	warnings []models.WarningLetter
	history  map[string]*models.EscalationHistory
	issueErr error
}

func newMemoryWarningStore() *memoryWarningStore {
	return &memoryWarningStore{history: map[string]*models.EscalationHistory{}}
}

func (s *memoryWarningStore) Issue(ctx context.Context, params repository.IssueWarningParams) (*repository.IssueWarningResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	var active []models.WarningLetter
	for _, w := range s.warnings {
		if w.LearnerID == params.LearnerID && w.Active() {
			active = append(active, w)
		}
	}
	decision, err := progress.NextWarning(progress.LadderState{Active: active, Terminated: s.history[params.LearnerID] != nil}, params.Week)
	if err != nil {
		return nil, err
	}
	if decision.Replay != nil {
		return &repository.IssueWarningResult{Warning: *decision.Replay, Replayed: true}, nil
	}
	s.seq++
	warning := models.WarningLetter{
		ID:         fmt.Sprintf("warn-%d", s.seq),
		LearnerID:  params.LearnerID,
		Level:      decision.Level,
		WeekNumber: params.Week,
		Status:     models.WarningStatusActive,
		Reason:     params.Reason,
		IssuedBy:   params.IssuedBy,
		IssuedAt:   time.Date(2024, 3, s.seq, 0, 0, 0, 0, time.UTC),
		Blacklist:  decision.Terminal,
	}
	s.warnings = append(s.warnings, warning)
	result := &repository.IssueWarningResult{Warning: warning}
	if decision.Terminal {
		total := 0
		for _, w := range s.warnings {
			if w.LearnerID == params.LearnerID {
				total++
			}
		}
		history := &models.EscalationHistory{ID: "hist-" + params.LearnerID, LearnerID: params.LearnerID, TotalWarnings: total, FinalAction: models.FinalActionBlacklisted}
		s.history[params.LearnerID] = history
		result.History = history
	}
	return result, nil
}

func (s *memoryWarningStore) Cancel(ctx context.Context, id, cancelledBy string) (*models.WarningLetter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.warnings {
		if s.warnings[i].ID != id {
			continue
		}
		if !s.warnings[i].Active() {
			w := s.warnings[i]
			return &w, false, nil
		}
		s.warnings[i].Status = models.WarningStatusCancelled
		s.warnings[i].CancelledBy = &cancelledBy
		w := s.warnings[i]
		return &w, true, nil
	}
	return nil, false, sql.ErrNoRows
}

func (s *memoryWarningStore) FindByID(ctx context.Context, id string) (*models.WarningLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.warnings {
		if w.ID == id {
			return &w, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memoryWarningStore) ListByLearner(ctx context.Context, learnerID string) ([]models.WarningLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WarningLetter
	for _, w := range s.warnings {
		if w.LearnerID == learnerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *memoryWarningStore) FindHistory(ctx context.Context, learnerID string) (*models.EscalationHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.history[learnerID]; ok {
		return h, nil
	}
	return nil, sql.ErrNoRows
}

type weekProgressStub struct {
	mu          sync.Mutex
	completed   map[int]bool
	err         error
	invalidated []string
}

func (s *weekProgressStub) WeekCompleted(ctx context.Context, learnerID string, week int) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.completed[week], nil
}

func (s *weekProgressStub) Invalidate(ctx context.Context, learnerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, learnerID)
}

type learnerFinderStub struct {
	learners map[string]models.Learner
}

func (s learnerFinderStub) FindByID(ctx context.Context, id string) (*models.Learner, error) {
	if l, ok := s.learners[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

type auditLoggerStub struct {
	mu      sync.Mutex
	err     error
	entries []*models.AuditLog
}

func (s *auditLoggerStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, log)
	return nil
}

type enqueuerStub struct {
	jobs []jobs.Job
}

func (s *enqueuerStub) Enqueue(job jobs.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

type escalationFixture struct {
	svc      *EscalationService
	store    *memoryWarningStore
	progress *weekProgressStub
	audit    *auditLoggerStub
	retries  *enqueuerStub
}

func newEscalationFixture() *escalationFixture {
	f := &escalationFixture{
		store:    newMemoryWarningStore(),
		progress: &weekProgressStub{completed: map[int]bool{}},
		audit:    &auditLoggerStub{},
		retries:  &enqueuerStub{},
	}
	learners := learnerFinderStub{learners: map[string]models.Learner{"learner-1": {ID: "learner-1", FullName: "Ahmad"}}}
	f.svc = NewEscalationService(f.store, learners, f.progress, f.audit, f.retries, nil, nil, nil)
	return f
}

var staffClaims = &models.JWTClaims{UserID: "staff-1", Role: models.RoleTeacher}

func issueReq(week int) dto.IssueWarningRequest {
	return dto.IssueWarningRequest{LearnerID: "learner-1", Week: week, Reason: "target missed"}
}

func TestEscalationServiceLadderClimbsAndStops(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()

	for i, week := range []int{2, 4, 6} {
		resp, err := f.svc.Issue(ctx, issueReq(week), staffClaims, dto.RequestMeta{})
		require.NoError(t, err)
		assert.Equal(t, i+1, resp.Warning.Level)
		assert.False(t, resp.Replayed)
	}

	third, err := f.svc.Issue(ctx, issueReq(6), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, third.Replayed)

	_, err = f.svc.Issue(ctx, issueReq(8), staffClaims, dto.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrTerminalState)

	history, err := f.store.FindHistory(ctx, "learner-1")
	require.NoError(t, err)
	assert.Equal(t, 3, history.TotalWarnings)
	// 3 issue audits plus the terminal escalation audit.
	assert.Len(t, f.audit.entries, 4)
}

func TestEscalationServiceTerminalResponseCarriesHistory(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()
	for _, week := range []int{1, 2} {
		_, err := f.svc.Issue(ctx, issueReq(week), staffClaims, dto.RequestMeta{})
		require.NoError(t, err)
	}
	resp, err := f.svc.Issue(ctx, issueReq(3), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, resp.Warning.Blacklist)
	require.NotNil(t, resp.Escalation)
	assert.Equal(t, models.FinalActionBlacklisted, resp.Escalation.FinalAction)
}

func TestEscalationServiceCancelThenReissueReusesLevel(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, issueReq(1), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	second, err := f.svc.Issue(ctx, issueReq(2), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, 2, second.Warning.Level)

	cancelled, err := f.svc.Cancel(ctx, second.Warning.ID, staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, cancelled.Changed)

	again, err := f.svc.Cancel(ctx, second.Warning.ID, staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, models.WarningStatusCancelled, again.Warning.Status)

	next, err := f.svc.Issue(ctx, issueReq(3), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Warning.Level)
	assert.Contains(t, f.progress.invalidated, "learner-1")
}

func TestEscalationServiceRejectsCompletedWeek(t *testing.T) {
	f := newEscalationFixture()
	f.progress.completed[3] = true

	_, err := f.svc.Issue(context.Background(), issueReq(3), staffClaims, dto.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrWeekCompleted)
	assert.Empty(t, f.store.warnings)
}

func TestEscalationServiceValidation(t *testing.T) {
	f := newEscalationFixture()
	cases := []dto.IssueWarningRequest{
		{LearnerID: "learner-1", Week: 0, Reason: "x"},
		{LearnerID: "learner-1", Week: 11, Reason: "x"},
		{LearnerID: "", Week: 2, Reason: "x"},
		{LearnerID: "learner-1", Week: 2, Reason: ""},
		{LearnerID: "learner-1", Week: 2, Reason: "x", FinalAction: "expelled"},
	}
	for _, req := range cases {
		_, err := f.svc.Issue(context.Background(), req, staffClaims, dto.RequestMeta{})
		assert.ErrorIs(t, err, appErrors.ErrValidation, "%+v", req)
	}
}

func TestEscalationServiceRequiresStaff(t *testing.T) {
	f := newEscalationFixture()
	_, err := f.svc.Issue(context.Background(), issueReq(1), nil, dto.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	learner := &models.JWTClaims{UserID: "learner-1", Role: models.RoleStudent}
	_, err = f.svc.Issue(context.Background(), issueReq(1), learner, dto.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestEscalationServiceConcurrentConflictIsRetryable(t *testing.T) {
	f := newEscalationFixture()
	metrics := NewMetricsService()
	f.svc.metrics = metrics
	f.store.issueErr = fmt.Errorf("insert warning: %w", repository.ErrWarningConflict)

	_, err := f.svc.Issue(context.Background(), issueReq(1), staffClaims, dto.RequestMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConcurrentWrite.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	assert.True(t, appErr.Retryable)
}

func TestEscalationServiceAuditFailureIsDegradedSuccess(t *testing.T) {
	f := newEscalationFixture()
	f.audit.err = errors.New("audit table locked")

	resp, err := f.svc.Issue(context.Background(), issueReq(1), staffClaims, dto.RequestMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, 1, resp.Warning.Level)
	require.Len(t, f.retries.jobs, 1)
	entry, ok := f.retries.jobs[0].Payload.(*models.AuditLog)
	require.True(t, ok)
	assert.Equal(t, models.AuditActionWarningIssue, entry.Action)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
}

func TestEscalationServiceReplayDoesNotAudit(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()
	_, err := f.svc.Issue(ctx, issueReq(5), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, issueReq(5), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Len(t, f.audit.entries, 1)
}

func TestEscalationServiceConcurrentIssuesNeverDuplicateLevels(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	for week := 1; week <= 8; week++ {
		wg.Add(1)
		go func(week int) {
			defer wg.Done()
			_, _ = f.svc.Issue(ctx, issueReq(week), staffClaims, dto.RequestMeta{})
		}(week)
	}
	wg.Wait()

	warnings, err := f.store.ListByLearner(ctx, "learner-1")
	require.NoError(t, err)
	require.Len(t, warnings, 3)
	levels := map[int]bool{}
	for _, w := range warnings {
		assert.False(t, levels[w.Level], "duplicate level %d", w.Level)
		levels[w.Level] = true
	}
}

func TestEscalationServiceCancelUnknown(t *testing.T) {
	f := newEscalationFixture()
	_, err := f.svc.Cancel(context.Background(), "missing", staffClaims, dto.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEscalationServiceListSelfAccess(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()
	_, err := f.svc.Issue(ctx, issueReq(1), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)

	self := &models.JWTClaims{UserID: "learner-1", Role: models.RoleStudent}
	warnings, err := f.svc.List(ctx, "learner-1", self)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	other := &models.JWTClaims{UserID: "learner-2", Role: models.RoleStudent}
	_, err = f.svc.List(ctx, "learner-1", other)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestEscalationServiceEscalationView(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()
	for _, week := range []int{1, 2, 3} {
		_, err := f.svc.Issue(ctx, issueReq(week), staffClaims, dto.RequestMeta{})
		require.NoError(t, err)
	}
	view, err := f.svc.Escalation(ctx, "learner-1", staffClaims)
	require.NoError(t, err)
	assert.True(t, view.Blacklisted)
	assert.Len(t, view.ActiveWarnings, 3)
	require.NotNil(t, view.History)
}

func TestAuditRetryHandler(t *testing.T) {
	audit := &auditLoggerStub{}
	handler := NewAuditRetryHandler(audit)

	require.NoError(t, handler(context.Background(), jobs.Job{Payload: &models.AuditLog{ID: "a-1"}}))
	assert.Len(t, audit.entries, 1)
	assert.Error(t, handler(context.Background(), jobs.Job{Payload: "oops"}))
}

func TestEscalationServiceCancelLowerRungRefillsIt(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()

	first, err := f.svc.Issue(ctx, issueReq(2), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	second, err := f.svc.Issue(ctx, issueReq(3), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, 2, second.Warning.Level)

	_, err = f.svc.Cancel(ctx, first.Warning.ID, staffClaims, dto.RequestMeta{})
	require.NoError(t, err)

	refill, err := f.svc.Issue(ctx, issueReq(4), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, refill.Warning.Level)
	assert.Nil(t, refill.Escalation)

	terminal, err := f.svc.Issue(ctx, issueReq(5), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 3, terminal.Warning.Level)
	require.NotNil(t, terminal.Escalation)
	assert.Equal(t, 4, terminal.Escalation.TotalWarnings)
}

func TestEscalationServiceRetryAfterWeekCompletedReplays(t *testing.T) {
	f := newEscalationFixture()
	ctx := context.Background()

	first, err := f.svc.Issue(ctx, issueReq(4), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)

	f.progress.completed[4] = true
	retry, err := f.svc.Issue(ctx, issueReq(4), staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, retry.Replayed)
	assert.Equal(t, first.Warning.ID, retry.Warning.ID)
	assert.Len(t, f.audit.entries, 1)

	_, err = f.svc.Cancel(ctx, first.Warning.ID, staffClaims, dto.RequestMeta{})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, issueReq(4), staffClaims, dto.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrWeekCompleted)
}
