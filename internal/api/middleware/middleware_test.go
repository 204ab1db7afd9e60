package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/reviewgate/reviewgate/pkg/errors"
)

func authRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", APIAuth(token), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func doGet(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAPIAuthValidToken(t *testing.T) {
	r := authRouter("s3cret")
	w := doGet(r, "Bearer s3cret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIAuthMissingHeader(t *testing.T) {
	r := authRouter("s3cret")
	w := doGet(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(errors.ErrCodeUnauthorized))
}

func TestAPIAuthWrongToken(t *testing.T) {
	r := authRouter("s3cret")
	w := doGet(r, "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIAuthMalformedHeader(t *testing.T) {
	r := authRouter("s3cret")
	w := doGet(r, "Basic s3cret")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIAuthDisabledWhenEmpty(t *testing.T) {
	r := authRouter("")
	w := doGet(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(false))
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.ErrNotFound("review run"))
		c.Abort()
	})

	req, _ := http.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
	assert.Contains(t, w.Body.String(), `"message"`)
}

func TestErrorHandlerHidesInternalMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(false))
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New(errors.ErrCodeDBQuery, "select failed on table review_runs"))
		c.Abort()
	})

	req, _ := http.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "review_runs")
	assert.Contains(t, w.Body.String(), "Internal server error")
}
