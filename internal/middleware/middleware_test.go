package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
)

type stubValidator struct {
	claims map[string]*models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s.claims[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newValidator() stubValidator {
	return stubValidator{claims: map[string]*models.JWTClaims{
		"admin-token":  {UserID: 1, Role: models.RoleAdmin},
		"doctor-token": {UserID: 9, Role: models.RoleDoctor},
	}}
}

func whoAmI(c *gin.Context) {
	claims := Claims(c)
	if claims == nil {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, string(claims.Role))
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWT(newValidator()), whoAmI)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "forged").Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token admin-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	ok := serve(r, http.MethodGet, "/me", "doctor-token")
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "doctor", ok.Body.String())
}

func TestOptionalJWTLetsAnonymousThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/appointments", OptionalJWT(newValidator()), whoAmI)

	assert.Equal(t, "anonymous", serve(r, http.MethodPost, "/appointments", "").Body.String())
	assert.Equal(t, "anonymous", serve(r, http.MethodPost, "/appointments", "forged").Body.String())
	assert.Equal(t, "admin", serve(r, http.MethodPost, "/appointments", "admin-token").Body.String())
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/notifications", JWT(newValidator()), RequireRoles(models.RoleAdmin), whoAmI)
	r.GET("/open", RequireRoles(models.RoleAdmin), whoAmI)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/notifications", "admin-token").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/notifications", "doctor-token").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/open", "").Code)
}

type recordingObserver struct {
	method string
	path   string
	status int
}

func (o *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.method, o.path, o.status = method, path, status
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/appointments/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(r, http.MethodGet, "/appointments/42", "")
	assert.Equal(t, "/appointments/:id", observer.path)
	assert.Equal(t, http.StatusNoContent, observer.status)

	serve(r, http.MethodGet, "/nowhere", "")
	assert.Equal(t, "unmatched", observer.path)
	assert.Equal(t, http.StatusNotFound, observer.status)
}

func TestRequestTimeoutSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestTimeout(time.Second))
	var deadline bool
	r.GET("/ping", func(c *gin.Context) {
		_, deadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})
	serve(r, http.MethodGet, "/ping", "")
	assert.True(t, deadline)

	expired := gin.New()
	expired.Use(RequestTimeout(time.Nanosecond))
	var ctxErr error
	expired.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
		ctxErr = c.Request.Context().Err()
		c.Status(http.StatusOK)
	})
	serve(expired, http.MethodGet, "/slow", "")
	assert.ErrorIs(t, ctxErr, context.DeadlineExceeded)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/notifications", func(c *gin.Context) {
		SetMeta(c, "viewer_role", "doctor")
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	serve(r, http.MethodGet, "/notifications", "")

	assert.Equal(t, "doctor", meta["viewer_role"])
	assert.Contains(t, meta, "processing_time_ms")
	assert.NotContains(t, meta, "started_at")
}
