package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

// CurriculumCatalog resolves curriculum units by code. Both the Postgres table and the YAML
// catalog implement it.
type CurriculumCatalog interface {
	FindByCode(ctx context.Context, code string) (*models.CurriculumUnit, error)
	List(ctx context.Context) ([]models.CurriculumUnit, error)
}

var (
	_ CurriculumCatalog = (*CurriculumRepository)(nil)
	_ CurriculumCatalog = (*FileCurriculumCatalog)(nil)
)

// CurriculumRepository reads the curriculum unit catalog from Postgres.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository constructs the repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// FindByCode returns the unit or sql.ErrNoRows.
func (r *CurriculumRepository) FindByCode(ctx context.Context, code string) (*models.CurriculumUnit, error) {
	const query = `SELECT code, name, start_page, end_page, half FROM curriculum_units WHERE code = $1`
	var unit models.CurriculumUnit
	if err := r.db.GetContext(ctx, &unit, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find curriculum unit: %w", err)
	}
	return &unit, nil
}

// List returns every unit ordered by starting page.
func (r *CurriculumRepository) List(ctx context.Context) ([]models.CurriculumUnit, error) {
	const query = `SELECT code, name, start_page, end_page, half FROM curriculum_units ORDER BY start_page ASC, code ASC`
	var units []models.CurriculumUnit
	if err := r.db.SelectContext(ctx, &units, query); err != nil {
		return nil, fmt.Errorf("list curriculum units: %w", err)
	}
	return units, nil
}
