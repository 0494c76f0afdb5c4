// Package app assembles repositories and services from configuration so the HTTP server and
// the operator CLI share one wiring.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tahfidz-api/internal/repository"
	"github.com/noah-isme/tahfidz-api/internal/service"
	"github.com/noah-isme/tahfidz-api/pkg/cache"
	"github.com/noah-isme/tahfidz-api/pkg/config"
	"github.com/noah-isme/tahfidz-api/pkg/database"
	"github.com/noah-isme/tahfidz-api/pkg/export"
	"github.com/noah-isme/tahfidz-api/pkg/jobs"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *service.MetricsService

	Progress   *service.ProgressService
	Escalation *service.EscalationService
	Exports    *service.ExportService
	Letters    *service.LetterService
	Tokens     *service.TokenService

	auditQueue *jobs.Queue
}

// New connects to Postgres (and Redis when the progress cache is enabled) and builds services.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Metrics: service.NewMetricsService()}

	var cacheRepo service.CacheRepository
	if cfg.Progress.CacheEnabled && cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, progress cache disabled", zap.Error(err))
		} else {
			a.Redis = client
			cacheRepo = repository.NewCacheRepository(client, logger)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.Metrics, cfg.Progress.CacheTTL, logger, cacheRepo != nil)

	units, err := curriculumSource(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	learners := repository.NewLearnerRepository(db)
	warnings := repository.NewWarningRepository(db)
	audit := repository.NewAuditRepository(db)

	a.auditQueue = jobs.NewQueue("audit-retry", service.NewAuditRetryHandler(audit), jobs.QueueConfig{
		Workers:    cfg.Audit.RetryWorkers,
		MaxRetries: cfg.Audit.RetryMax,
		RetryDelay: cfg.Audit.RetryDelay,
		Logger:     logger,
		OnExhausted: func(job jobs.Job, err error) {
			logger.Error("audit entry dropped", zap.String("audit_id", job.ID), zap.Any("entry", job.Payload), zap.Error(err))
		},
	})

	a.Progress = service.NewProgressService(
		learners,
		units,
		repository.NewSubmissionRepository(db),
		warnings,
		cacheSvc,
		a.Metrics,
		service.ProgressServiceConfig{CacheTTL: cfg.Progress.CacheTTL, CohortConcurrency: cfg.Progress.CohortConcurrency},
		logger.Named("progress"),
	)
	a.Escalation = service.NewEscalationService(warnings, learners, a.Progress, audit, a.auditQueue, a.Metrics, validator.New(), logger.Named("escalation"))
	a.Exports = service.NewExportService(a.Progress, logger.Named("export"))
	a.Letters = service.NewLetterService(warnings, learners, units, export.NewLetterRenderer(), cfg.Letters.IssuerName)
	a.Tokens = service.NewTokenService(cfg.JWT)

	return a, nil
}

func curriculumSource(cfg *config.Config, db *sqlx.DB) (repository.CurriculumCatalog, error) {
	if cfg.Curriculum.CatalogPath == "" {
		return repository.NewCurriculumRepository(db), nil
	}
	catalog, err := repository.LoadCurriculumCatalog(cfg.Curriculum.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load curriculum catalog: %w", err)
	}
	return catalog, nil
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	a.auditQueue.Start(ctx)
}

// Close stops workers and releases connections.
func (a *App) Close() {
	a.auditQueue.Stop()
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
