package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

// SubmissionRepository reads raw memorisation deposits.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// ListByLearnerUnit returns every submission of a learner against one unit. Rows are decoded
// into the BlockRef variant by its Scan implementation.
func (r *SubmissionRepository) ListByLearnerUnit(ctx context.Context, learnerID, unitCode string) ([]models.SubmissionRecord, error) {
	const query = `SELECT id, learner_id, unit_code, block_code, submitted_on, created_at
FROM memorization_submissions
WHERE learner_id = $1 AND unit_code = $2
ORDER BY submitted_on ASC, created_at ASC`
	var records []models.SubmissionRecord
	if err := r.db.SelectContext(ctx, &records, query, learnerID, unitCode); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return records, nil
}
