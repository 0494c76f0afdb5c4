package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/tahfidz-api/pkg/errors"
)

type cacheRepoStub struct {
	getErr   error
	patterns []string
	sets     map[string]time.Duration
}

func (s *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	return s.getErr
}

func (s *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.sets == nil {
		s.sets = map[string]time.Duration{}
	}
	s.sets[key] = ttl
	return nil
}

func (s *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := &cacheRepoStub{}
	svc := NewCacheService(repo, nil, 0, nil, false)

	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	require.NoError(t, svc.Invalidate(context.Background(), "k*"))
	assert.Empty(t, repo.sets)
	assert.Empty(t, repo.patterns)
}

func TestCacheServiceMissCountsMetric(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(&cacheRepoStub{getErr: appErrors.ErrCacheMiss}, metrics, 0, nil, true)

	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
}

func TestCacheServiceBackendErrorSurfaces(t *testing.T) {
	svc := NewCacheService(&cacheRepoStub{getErr: errors.New("down")}, nil, 0, nil, true)
	_, err := svc.Get(context.Background(), "k", &struct{}{})
	assert.Error(t, err)
}

func TestCacheServiceDefaultTTL(t *testing.T) {
	repo := &cacheRepoStub{}
	svc := NewCacheService(repo, nil, 0, nil, true)
	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Equal(t, 2*time.Minute, repo.sets["k"])
}
