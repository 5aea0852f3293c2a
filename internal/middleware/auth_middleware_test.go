package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/socdo/notifyd/internal/auth"
)

func newAuthRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: secret})
	require.NoError(t, err)

	router := gin.New()
	router.Use(Recovery(), Auth(jwt))
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return router
}

func TestAuthAcceptsValidToken(t *testing.T) {
	router := newAuthRouter(t, "test-secret")

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)
	token, err := jwt.GenerateAccessToken("user-1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", rec.Body.String())
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	router := newAuthRouter(t, "test-secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "other-secret"})
	require.NoError(t, err)
	token, err := jwt.GenerateAccessToken("user-1")
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
