package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", JWTAuth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	r.GET("/admin", JWTAuth(secret), RequireRole("reviewer"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := router()
	exp := time.Now().Add(time.Hour).Unix()

	w := get(r, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = get(r, "/me", sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"uid": "u1", "exp": exp}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	w = get(r, "/me", sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u2", "exp": exp}))
	assert.Equal(t, "u2", w.Body.String(), "falls back to subject")

	w = get(r, "/me", sign(t, jwt.SigningMethodHS512, jwt.MapClaims{"uid": "u1", "exp": exp}))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "only HS256 accepted")

	w = get(r, "/me", sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"uid": "u1", "exp": time.Now().Add(-time.Minute).Unix()}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/me?token="+sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"uid": "u3", "exp": exp}), "")
	assert.Equal(t, "u3", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := router()
	exp := time.Now().Add(time.Hour).Unix()
	tok := func(roles ...string) string {
		return sign(t, jwt.SigningMethodHS256, jwt.MapClaims{"uid": "u1", "roles": roles, "exp": exp})
	}

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", tok("evaluator")).Code)
	assert.Equal(t, http.StatusOK, get(r, "/admin", tok("reviewer")).Code)
	assert.Equal(t, http.StatusOK, get(r, "/admin", tok(RoleAdmin)).Code)
}
