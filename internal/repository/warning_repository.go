package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/internal/progress"
)

// ErrWarningConflict signals that a concurrent writer won the race for a ladder rung.
var ErrWarningConflict = errors.New("concurrent warning write")

const warningColumns = `id, learner_id, level, week_number, status, reason, issued_by, issued_at, blacklist, cancelled_at, cancelled_by`

// WarningRepository persists warning letters and escalation outcomes.
type WarningRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewWarningRepository constructs the repository.
func NewWarningRepository(db *sqlx.DB) *WarningRepository {
	return &WarningRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// IssueWarningParams carries an issuance request.
type IssueWarningParams struct {
	LearnerID     string
	Week          int
	Reason        string
	IssuedBy      string
	FinalAction   models.FinalAction
	ExceptionType *string
	Notes         string
}

// IssueWarningResult reports what the transaction did.
type IssueWarningResult struct {
	Warning  models.WarningLetter
	Replayed bool
	History  *models.EscalationHistory
}

// Issue runs the read-modify-write of a learner's ladder inside one transaction. The learner
// row is locked first so concurrent issuances for the same learner serialize; the partial
// unique index on (learner_id, level) for active rows rejects anything that slips past.
func (r *WarningRepository) Issue(ctx context.Context, params IssueWarningParams) (result *IssueWarningResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin warning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var learner models.Learner
	if err = tx.GetContext(ctx, &learner, `SELECT id, full_name, cohort_id, blacklisted FROM learners WHERE id = $1 FOR UPDATE`, params.LearnerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, classifyWriteError("lock learner", err)
	}

	var active []models.WarningLetter
	if err = tx.SelectContext(ctx, &active, `SELECT `+warningColumns+` FROM warning_letters WHERE learner_id = $1 AND status = $2 ORDER BY level ASC`, params.LearnerID, models.WarningStatusActive); err != nil {
		return nil, fmt.Errorf("load active warnings: %w", err)
	}

	var hasHistory bool
	if err = tx.GetContext(ctx, &hasHistory, `SELECT EXISTS (SELECT 1 FROM escalation_histories WHERE learner_id = $1)`, params.LearnerID); err != nil {
		return nil, fmt.Errorf("check escalation history: %w", err)
	}

	decision, err := progress.NextWarning(progress.LadderState{Active: active, Terminated: hasHistory || learner.Blacklisted}, params.Week)
	if err != nil {
		return nil, err
	}
	if decision.Replay != nil {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit warning replay: %w", err)
		}
		return &IssueWarningResult{Warning: *decision.Replay, Replayed: true}, nil
	}

	now := r.now()
	warning := models.WarningLetter{
		ID:         uuid.NewString(),
		LearnerID:  params.LearnerID,
		Level:      decision.Level,
		WeekNumber: params.Week,
		Status:     models.WarningStatusActive,
		Reason:     params.Reason,
		IssuedBy:   params.IssuedBy,
		IssuedAt:   now,
		Blacklist:  decision.Terminal,
	}
	const insertWarning = `INSERT INTO warning_letters (id, learner_id, level, week_number, status, reason, issued_by, issued_at, blacklist)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err = tx.ExecContext(ctx, insertWarning, warning.ID, warning.LearnerID, warning.Level, warning.WeekNumber, warning.Status, warning.Reason, warning.IssuedBy, warning.IssuedAt, warning.Blacklist); err != nil {
		return nil, classifyWriteError("insert warning", err)
	}

	result = &IssueWarningResult{Warning: warning}
	if decision.Terminal {
		history, histErr := r.terminate(ctx, tx, params, now)
		if histErr != nil {
			err = histErr
			return nil, err
		}
		result.History = history
	}

	if err = tx.Commit(); err != nil {
		return nil, classifyWriteError("commit warning", err)
	}
	return result, nil
}

func (r *WarningRepository) terminate(ctx context.Context, tx *sqlx.Tx, params IssueWarningParams, now time.Time) (*models.EscalationHistory, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE learners SET blacklisted = TRUE WHERE id = $1`, params.LearnerID); err != nil {
		return nil, fmt.Errorf("flag learner: %w", err)
	}

	var total int
	if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM warning_letters WHERE learner_id = $1`, params.LearnerID); err != nil {
		return nil, fmt.Errorf("count warnings: %w", err)
	}

	action := params.FinalAction
	if action == "" {
		action = models.FinalActionBlacklisted
	}
	history := &models.EscalationHistory{
		ID:            uuid.NewString(),
		LearnerID:     params.LearnerID,
		TotalWarnings: total,
		FinalAction:   action,
		ExceptionType: params.ExceptionType,
		Notes:         params.Notes,
		CreatedAt:     now,
	}
	const insertHistory = `INSERT INTO escalation_histories (id, learner_id, total_warnings, final_action, exception_type, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insertHistory, history.ID, history.LearnerID, history.TotalWarnings, history.FinalAction, history.ExceptionType, history.Notes, history.CreatedAt); err != nil {
		return nil, classifyWriteError("insert escalation history", err)
	}
	return history, nil
}

// Cancel flips an active warning to cancelled. Cancelling an already cancelled warning is a
// no-op reported through changed=false.
func (r *WarningRepository) Cancel(ctx context.Context, id, cancelledBy string) (warning *models.WarningLetter, changed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.WarningLetter
	if err = tx.GetContext(ctx, &current, `SELECT `+warningColumns+` FROM warning_letters WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, err
		}
		return nil, false, classifyWriteError("lock warning", err)
	}

	if current.Status == models.WarningStatusCancelled {
		if err = tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit cancel replay: %w", err)
		}
		return &current, false, nil
	}

	now := r.now()
	if _, err = tx.ExecContext(ctx, `UPDATE warning_letters SET status = $1, cancelled_at = $2, cancelled_by = $3 WHERE id = $4`, models.WarningStatusCancelled, now, cancelledBy, id); err != nil {
		return nil, false, classifyWriteError("cancel warning", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, classifyWriteError("commit cancel", err)
	}

	current.Status = models.WarningStatusCancelled
	current.CancelledAt = &now
	current.CancelledBy = &cancelledBy
	return &current, true, nil
}

// FindByID returns a warning or sql.ErrNoRows.
func (r *WarningRepository) FindByID(ctx context.Context, id string) (*models.WarningLetter, error) {
	var warning models.WarningLetter
	if err := r.db.GetContext(ctx, &warning, `SELECT `+warningColumns+` FROM warning_letters WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find warning: %w", err)
	}
	return &warning, nil
}

// ListByLearner returns all warnings of a learner, newest first.
func (r *WarningRepository) ListByLearner(ctx context.Context, learnerID string) ([]models.WarningLetter, error) {
	var warnings []models.WarningLetter
	if err := r.db.SelectContext(ctx, &warnings, `SELECT `+warningColumns+` FROM warning_letters WHERE learner_id = $1 ORDER BY issued_at DESC, level DESC`, learnerID); err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	return warnings, nil
}

// ListActiveByLearners returns active warnings for many learners at once.
func (r *WarningRepository) ListActiveByLearners(ctx context.Context, learnerIDs []string) ([]models.WarningLetter, error) {
	if len(learnerIDs) == 0 {
		return nil, nil
	}
	var warnings []models.WarningLetter
	query := `SELECT ` + warningColumns + ` FROM warning_letters WHERE learner_id = ANY($1) AND status = $2 ORDER BY learner_id, level ASC`
	if err := r.db.SelectContext(ctx, &warnings, query, pq.Array(learnerIDs), models.WarningStatusActive); err != nil {
		return nil, fmt.Errorf("list active warnings: %w", err)
	}
	return warnings, nil
}

// FindHistory returns the terminal escalation record of a learner or sql.ErrNoRows.
func (r *WarningRepository) FindHistory(ctx context.Context, learnerID string) (*models.EscalationHistory, error) {
	const query = `SELECT id, learner_id, total_warnings, final_action, exception_type, notes, created_at FROM escalation_histories WHERE learner_id = $1`
	var history models.EscalationHistory
	if err := r.db.GetContext(ctx, &history, query, learnerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find escalation history: %w", err)
	}
	return &history, nil
}

// classifyWriteError maps Postgres contention failures onto ErrWarningConflict.
func classifyWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001", "40P01", "55P03":
			return fmt.Errorf("%s: %w: %s", op, ErrWarningConflict, pqErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
