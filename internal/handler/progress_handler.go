package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tahfidz-api/internal/dto"
	"github.com/noah-isme/tahfidz-api/internal/middleware"
	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/pkg/response"
)

type progressService interface {
	Get(ctx context.Context, learnerID string, claims *models.JWTClaims) (*dto.LearnerProgress, bool, error)
	CohortOverview(ctx context.Context, cohortID string, claims *models.JWTClaims) (*dto.CohortProgress, error)
	UnitBlocks(ctx context.Context, code string) (*dto.UnitBlocks, error)
	Units(ctx context.Context) ([]models.CurriculumUnit, error)
}

type progressExporter interface {
	ExportProgress(ctx context.Context, learnerID, format string, claims *models.JWTClaims) (*dto.ExportFile, error)
}

// ProgressHandler exposes learner progress read endpoints.
type ProgressHandler struct {
	service  progressService
	exporter progressExporter
}

// NewProgressHandler builds a new handler.
func NewProgressHandler(service progressService, exporter progressExporter) *ProgressHandler {
	return &ProgressHandler{service: service, exporter: exporter}
}

// Get godoc
// @Summary Get a learner's memorisation progress
// @Tags Progress
// @Produce json
// @Param id path string true "Learner ID"
// @Success 200 {object} response.Envelope
// @Router /learners/{id}/progress [get]
func (h *ProgressHandler) Get(c *gin.Context) {
	view, hit, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download a learner's progress grid
// @Tags Progress
// @Produce octet-stream
// @Param id path string true "Learner ID"
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 200 {file} file
// @Router /learners/{id}/progress/export [get]
func (h *ProgressHandler) Export(c *gin.Context) {
	file, err := h.exporter.ExportProgress(c.Request.Context(), c.Param("id"), c.Query("format"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}

// Cohort godoc
// @Summary Progress overview for every learner of a cohort
// @Tags Progress
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id}/progress [get]
func (h *ProgressHandler) Cohort(c *gin.Context) {
	overview, err := h.service.CohortOverview(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// Units godoc
// @Summary List curriculum units
// @Tags Curriculum
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /curriculum/units [get]
func (h *ProgressHandler) Units(c *gin.Context) {
	units, err := h.service.Units(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, nil)
}

// UnitBlocks godoc
// @Summary Generated block schedule of a curriculum unit
// @Tags Curriculum
// @Produce json
// @Param code path string true "Unit code"
// @Success 200 {object} response.Envelope
// @Router /curriculum/units/{code}/blocks [get]
func (h *ProgressHandler) UnitBlocks(c *gin.Context) {
	blocks, err := h.service.UnitBlocks(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}
