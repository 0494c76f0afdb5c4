package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.False(t, cfg.Progress.CacheEnabled)
	assert.Equal(t, 2*time.Minute, cfg.Progress.CacheTTL)
	assert.Equal(t, 4, cfg.Progress.CohortConcurrency)
	assert.Equal(t, 3, cfg.Audit.RetryMax)
	assert.Empty(t, cfg.Curriculum.CatalogPath)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENABLE_PROGRESS_CACHE", "true")
	t.Setenv("PROGRESS_CACHE_TTL", "45s")
	t.Setenv("COHORT_CONCURRENCY", "8")
	t.Setenv("JWT_AUDIENCE", "tahfidz-web, tahfidz-ops ,")
	t.Setenv("CURRICULUM_CATALOG_PATH", "configs/curriculum.yaml")
	t.Setenv("AUDIT_RETRY_DELAY", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Progress.CacheEnabled)
	assert.Equal(t, 45*time.Second, cfg.Progress.CacheTTL)
	assert.Equal(t, 8, cfg.Progress.CohortConcurrency)
	assert.Equal(t, []string{"tahfidz-web", "tahfidz-ops"}, cfg.JWT.Audience)
	assert.Equal(t, "configs/curriculum.yaml", cfg.Curriculum.CatalogPath)
	assert.Equal(t, 2*time.Second, cfg.Audit.RetryDelay)
}
