package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *service.AuthService {
	return service.NewAuthService("test-secret", time.Hour)
}

func token(t *testing.T, auth *service.AuthService, userID int, role service.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

func serve(mw gin.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, *service.Claims) {
	var seen *service.Claims
	r := gin.New()
	r.GET("/x", mw, func(c *gin.Context) {
		seen = GetClaims(c)
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestRequireStudentJWT(t *testing.T) {
	auth := newAuth()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"instructor token", "Bearer " + token(t, auth, 7, service.RoleInstructor), http.StatusForbidden},
		{"student token", "Bearer " + token(t, auth, 42, service.RoleStudent), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w, claims := serve(RequireStudentJWT(auth), req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, claims)
				assert.Equal(t, 42, claims.UserID)
			}
		})
	}
}

func TestRequireInstructorJWT_AcceptsQueryToken(t *testing.T) {
	auth := newAuth()
	req := httptest.NewRequest(http.MethodGet, "/x?token="+token(t, auth, 3, service.RoleInstructor), nil)

	w, claims := serve(RequireInstructorJWT(auth), req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, claims)
	assert.Equal(t, service.RoleInstructor, claims.Role)
}

func TestRequireStudentJWT_IgnoresQueryToken(t *testing.T) {
	auth := newAuth()
	req := httptest.NewRequest(http.MethodGet, "/x?token="+token(t, auth, 3, service.RoleStudent), nil)

	w, _ := serve(RequireStudentJWT(auth), req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireStudentWSAuth(t *testing.T) {
	auth := newAuth()

	w, _ := serve(RequireStudentWSAuth(auth), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = serve(RequireStudentWSAuth(auth), httptest.NewRequest(http.MethodGet, "/x?token="+token(t, auth, 3, service.RoleInstructor), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, claims := serve(RequireStudentWSAuth(auth), httptest.NewRequest(http.MethodGet, "/x?token="+token(t, auth, 5, service.RoleStudent), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, claims)
	assert.Equal(t, 5, claims.UserID)
}

func TestNoStore(t *testing.T) {
	w, _ := serve(NoStore(), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, "no-store, max-age=0", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
	assert.Equal(t, "0", w.Header().Get("Expires"))
	assert.Equal(t, "Authorization", w.Header().Get("Vary"))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	rl := NewRateLimiter(rdb, 1, time.Minute, func(ip string) string { return "rl:" + ip }, zerolog.Nop())

	assert.True(t, rl.Allow(context.Background(), "10.0.0.1"))
	assert.True(t, rl.Allow(context.Background(), "10.0.0.1"))
}

func TestRateLimiter_NilOrUnlimited(t *testing.T) {
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow(context.Background(), "10.0.0.1"))

	unlimited := NewRateLimiter(nil, 0, time.Minute, nil, zerolog.Nop())
	assert.True(t, unlimited.Allow(context.Background(), "10.0.0.1"))
}
