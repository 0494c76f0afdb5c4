package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

// LearnerRepository reads learner data owned by the roster service.
type LearnerRepository struct {
	db *sqlx.DB
}

// NewLearnerRepository constructs the repository.
func NewLearnerRepository(db *sqlx.DB) *LearnerRepository {
	return &LearnerRepository{db: db}
}

// FindByID returns a learner or sql.ErrNoRows.
func (r *LearnerRepository) FindByID(ctx context.Context, id string) (*models.Learner, error) {
	const query = `SELECT id, full_name, cohort_id, blacklisted FROM learners WHERE id = $1`
	var learner models.Learner
	if err := r.db.GetContext(ctx, &learner, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find learner: %w", err)
	}
	return &learner, nil
}

// ListByCohort returns learners of a cohort ordered by name.
func (r *LearnerRepository) ListByCohort(ctx context.Context, cohortID string) ([]models.Learner, error) {
	const query = `SELECT id, full_name, cohort_id, blacklisted FROM learners WHERE cohort_id = $1 ORDER BY full_name ASC`
	var learners []models.Learner
	if err := r.db.SelectContext(ctx, &learners, query, cohortID); err != nil {
		return nil, fmt.Errorf("list cohort learners: %w", err)
	}
	return learners, nil
}

// ConfirmedUnit returns the learner's latest confirmed unit assignment, or nil when none exists.
func (r *LearnerRepository) ConfirmedUnit(ctx context.Context, learnerID string) (*models.LearnerUnitAssignment, error) {
	const query = `SELECT learner_id, unit_code, status FROM learner_units
WHERE learner_id = $1 AND status = $2
ORDER BY confirmed_at DESC NULLS LAST
LIMIT 1`
	var assignment models.LearnerUnitAssignment
	if err := r.db.GetContext(ctx, &assignment, query, learnerID, models.LearnerUnitStatusConfirmed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load confirmed unit: %w", err)
	}
	return &assignment, nil
}
