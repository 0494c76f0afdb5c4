package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tahfidz-api/internal/dto"
	"github.com/noah-isme/tahfidz-api/internal/models"
	appErrors "github.com/noah-isme/tahfidz-api/pkg/errors"
	"github.com/noah-isme/tahfidz-api/pkg/response"
)

type escalationService interface {
	Issue(ctx context.Context, req dto.IssueWarningRequest, actor *models.JWTClaims, meta dto.RequestMeta) (*dto.WarningResponse, error)
	Cancel(ctx context.Context, warningID string, actor *models.JWTClaims, meta dto.RequestMeta) (*dto.CancelWarningResponse, error)
	List(ctx context.Context, learnerID string, claims *models.JWTClaims) ([]models.WarningLetter, error)
	Escalation(ctx context.Context, learnerID string, claims *models.JWTClaims) (*dto.EscalationView, error)
}

type letterService interface {
	Render(ctx context.Context, warningID string, claims *models.JWTClaims) (*dto.ExportFile, error)
}

// WarningHandler exposes the warning ladder endpoints.
type WarningHandler struct {
	service escalationService
	letters letterService
}

// NewWarningHandler builds a new handler.
func NewWarningHandler(service escalationService, letters letterService) *WarningHandler {
	return &WarningHandler{service: service, letters: letters}
}

// Issue godoc
// @Summary Issue the next warning for a non-compliant week
// @Tags Warnings
// @Accept json
// @Produce json
// @Param payload body dto.IssueWarningRequest true "Warning payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Existing warning for the same week"
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /warnings [post]
func (h *WarningHandler) Issue(c *gin.Context) {
	var req dto.IssueWarningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	result, err := h.service.Issue(c.Request.Context(), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"replayed": result.Replayed, "degraded": result.Degraded}
	if result.Replayed {
		response.JSON(c, http.StatusOK, result, nil, meta)
		return
	}
	response.Created(c, result, meta)
}

// Cancel godoc
// @Summary Cancel a warning
// @Tags Warnings
// @Produce json
// @Param id path string true "Warning ID"
// @Success 200 {object} response.Envelope
// @Router /warnings/{id}/cancel [post]
func (h *WarningHandler) Cancel(c *gin.Context) {
	result, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"changed": result.Changed, "degraded": result.Degraded})
}

// List godoc
// @Summary List a learner's warnings
// @Tags Warnings
// @Produce json
// @Param id path string true "Learner ID"
// @Success 200 {object} response.Envelope
// @Router /learners/{id}/warnings [get]
func (h *WarningHandler) List(c *gin.Context) {
	warnings, err := h.service.List(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, warnings, nil)
}

// Escalation godoc
// @Summary Ladder state and terminal record of a learner
// @Tags Warnings
// @Produce json
// @Param id path string true "Learner ID"
// @Success 200 {object} response.Envelope
// @Router /learners/{id}/escalation [get]
func (h *WarningHandler) Escalation(c *gin.Context) {
	view, err := h.service.Escalation(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Letter godoc
// @Summary Download a warning letter as PDF
// @Tags Warnings
// @Produce application/pdf
// @Param id path string true "Warning ID"
// @Success 200 {file} file
// @Router /warnings/{id}/letter [get]
func (h *WarningHandler) Letter(c *gin.Context) {
	file, err := h.letters.Render(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}
