package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/internal/service"
	appErrors "github.com/noah-isme/tahfidz-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Wrap(errors.New("bad token"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return v.claims, nil
}

func newGuardedRouter(claims *models.JWTClaims, guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(validatorStub{claims: claims}))
	r.GET("/learners/:id/progress", guard, func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func call(r *gin.Engine, path, auth string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWTRejectsMissingAndBadTokens(t *testing.T) {
	r := newGuardedRouter(&models.JWTClaims{UserID: "staff-1", Role: models.RoleTeacher}, StaffOnly())
	assert.Equal(t, http.StatusUnauthorized, call(r, "/learners/x/progress", ""))
	assert.Equal(t, http.StatusUnauthorized, call(r, "/learners/x/progress", "Token good"))
	assert.Equal(t, http.StatusUnauthorized, call(r, "/learners/x/progress", "Bearer bad"))
	assert.Equal(t, http.StatusOK, call(r, "/learners/x/progress", "Bearer good"))
}

func TestStaffOrSelf(t *testing.T) {
	learner := &models.JWTClaims{UserID: "learner-1", Role: models.RoleStudent}
	r := newGuardedRouter(learner, StaffOrSelf())
	assert.Equal(t, http.StatusOK, call(r, "/learners/learner-1/progress", "Bearer good"))
	assert.Equal(t, http.StatusForbidden, call(r, "/learners/learner-2/progress", "Bearer good"))
}

func TestStaffOnlyRejectsLearners(t *testing.T) {
	r := newGuardedRouter(&models.JWTClaims{UserID: "learner-1", Role: models.RoleStudent}, StaffOnly())
	assert.Equal(t, http.StatusForbidden, call(r, "/learners/learner-1/progress", "Bearer good"))
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, call(r, "/ping", ""))
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, family := range families {
		if family.GetName() == "http_requests_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestResponseMetaCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}
