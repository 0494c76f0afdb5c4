package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/tahfidz-api/api/swagger"
	"github.com/noah-isme/tahfidz-api/internal/app"
	"github.com/noah-isme/tahfidz-api/internal/handler"
	"github.com/noah-isme/tahfidz-api/internal/middleware"
	"github.com/noah-isme/tahfidz-api/pkg/config"
	"github.com/noah-isme/tahfidz-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tahfidz-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tahfidz-api/pkg/middleware/requestid"
)

// @title Tahfidz Progress API
// @version 1.0.0
// @description Memorisation progress tracking and the three-strike warning ladder
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build application", "error", err)
	}
	defer application.Close()
	application.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(application.Metrics, "/metrics"))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg, application)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}

func registerRoutes(r *gin.Engine, cfg *config.Config, a *app.App) {
	metricsHandler := handler.NewMetricsHandler(a.Metrics, a.DB)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	progressHandler := handler.NewProgressHandler(a.Progress, a.Exports)
	warningHandler := handler.NewWarningHandler(a.Escalation, a.Letters)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(a.Tokens))

	learners := api.Group("/learners/:id")
	learners.GET("/progress", middleware.StaffOrSelf(), progressHandler.Get)
	learners.GET("/progress/export", middleware.StaffOrSelf(), progressHandler.Export)
	learners.GET("/warnings", middleware.StaffOrSelf(), warningHandler.List)
	learners.GET("/escalation", middleware.StaffOnly(), warningHandler.Escalation)

	warnings := api.Group("/warnings")
	warnings.POST("", middleware.StaffOnly(), warningHandler.Issue)
	warnings.POST("/:id/cancel", middleware.StaffOnly(), warningHandler.Cancel)
	warnings.GET("/:id/letter", warningHandler.Letter)

	api.GET("/cohorts/:id/progress", middleware.StaffOnly(), progressHandler.Cohort)
	api.GET("/curriculum/units", progressHandler.Units)
	api.GET("/curriculum/units/:code/blocks", progressHandler.UnitBlocks)
}
