package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

type catalogFile struct {
	Units []models.CurriculumUnit `yaml:"units"`
}

// FileCurriculumCatalog serves the unit catalog from a YAML document loaded at startup.
type FileCurriculumCatalog struct {
	mu    sync.RWMutex
	units map[string]models.CurriculumUnit
}

// LoadCurriculumCatalog reads and validates the YAML catalog at path.
func LoadCurriculumCatalog(path string) (*FileCurriculumCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read curriculum catalog: %w", err)
	}
	return ParseCurriculumCatalog(data)
}

// ParseCurriculumCatalog builds a catalog from raw YAML.
func ParseCurriculumCatalog(data []byte) (*FileCurriculumCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse curriculum catalog: %w", err)
	}
	catalog := &FileCurriculumCatalog{units: make(map[string]models.CurriculumUnit, len(file.Units))}
	for _, unit := range file.Units {
		if unit.Code == "" {
			return nil, fmt.Errorf("curriculum unit without code")
		}
		if unit.EndPage < unit.StartPage {
			return nil, fmt.Errorf("curriculum unit %s: end_page %d before start_page %d", unit.Code, unit.EndPage, unit.StartPage)
		}
		if _, dup := catalog.units[unit.Code]; dup {
			return nil, fmt.Errorf("curriculum unit %s declared twice", unit.Code)
		}
		catalog.units[unit.Code] = unit
	}
	return catalog, nil
}

// FindByCode returns the unit or sql.ErrNoRows, matching the database-backed catalog.
func (c *FileCurriculumCatalog) FindByCode(ctx context.Context, code string) (*models.CurriculumUnit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	unit, ok := c.units[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &unit, nil
}

// List returns all units ordered by starting page.
func (c *FileCurriculumCatalog) List(ctx context.Context) ([]models.CurriculumUnit, error) {
	c.mu.RLock()
	units := make([]models.CurriculumUnit, 0, len(c.units))
	for _, unit := range c.units {
		units = append(units, unit)
	}
	c.mu.RUnlock()
	sort.Slice(units, func(i, j int) bool {
		if units[i].StartPage == units[j].StartPage {
			return units[i].Code < units[j].Code
		}
		return units[i].StartPage < units[j].StartPage
	})
	return units, nil
}
