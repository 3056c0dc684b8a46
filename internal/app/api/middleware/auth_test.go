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

const testSecret = "test-secret"

func signToken(t *testing.T, userID string, secret string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authTestRouter() (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var gotUserID string
	r.GET("/protected", AuthMiddleware(testSecret), func(c *gin.Context) {
		gotUserID = c.GetString("user_id")
		c.Status(http.StatusOK)
	})
	return r, &gotUserID
}

func TestAuthMiddleware(t *testing.T) {
	valid := signToken(t, "user-1", testSecret, time.Now().Add(time.Hour))
	expired := signToken(t, "user-1", testSecret, time.Now().Add(-time.Hour))
	wrongSecret := signToken(t, "user-1", "other-secret", time.Now().Add(time.Hour))
	noUser := signToken(t, "", testSecret, time.Now().Add(time.Hour))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantUserID string
	}{
		{name: "valid token", authHeader: "Bearer " + valid, wantStatus: http.StatusOK, wantUserID: "user-1"},
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "no bearer prefix", authHeader: valid, wantStatus: http.StatusUnauthorized},
		{name: "garbage token", authHeader: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
		{name: "expired token", authHeader: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", authHeader: "Bearer " + wrongSecret, wantStatus: http.StatusUnauthorized},
		{name: "empty user id claim", authHeader: "Bearer " + noUser, wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, gotUserID := authTestRouter()

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantUserID != "" {
				assert.Equal(t, tc.wantUserID, *gotUserID)
			}
		})
	}
}

func TestAdminTokenMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(token string) *gin.Engine {
		r := gin.New()
		r.POST("/admin", AdminTokenMiddleware(token), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return r
	}

	t.Run("matching token", func(t *testing.T) {
		r := newRouter("s3cret")
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("X-Admin-Token", "s3cret")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		r := newRouter("s3cret")
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("X-Admin-Token", "wrong")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unset admin token disables the endpoint", func(t *testing.T) {
		r := newRouter("")
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("X-Admin-Token", "")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
