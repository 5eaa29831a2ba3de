package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/infrastructure/logger"
	"github.com/your-org/marketplace-backend/internal/pkg/auth"
	"github.com/your-org/marketplace-backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testutil.Config()
	jwt := auth.NewJWTManager(cfg)

	r := gin.New()
	r.GET("/me", AuthMiddleware(cfg), func(c *gin.Context) {
		id, ok := GetUserIDFromContext(c)
		require.True(t, ok)
		email, _ := GetUserEmailFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "email": email})
	})

	access, err := jwt.GenerateAccessToken(7, "buyer@example.com", "buyer")
	require.NoError(t, err)
	refresh, err := jwt.GenerateRefreshToken(7, "buyer@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad scheme", "Token " + access, http.StatusUnauthorized},
		{"refresh token rejected", "Bearer " + refresh, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + access, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"email":"buyer@example.com"`)
			}
		})
	}
}

func TestOptionalAuthMiddlewareLetsGuestsThrough(t *testing.T) {
	cfg := testutil.Config()

	r := gin.New()
	r.GET("/cart", OptionalAuthMiddleware(cfg), func(c *gin.Context) {
		_, ok := GetUserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer expired-or-invalid")
	w := serve(r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":false}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	cfg := testutil.Config()
	jwt := auth.NewJWTManager(cfg)

	r := gin.New()
	r.GET("/seller", AuthMiddleware(cfg), RequireRole("seller"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/admin", AuthMiddleware(cfg), AdminMiddleware(), func(c *gin.Context) {
		assert.True(t, IsAdminFromContext(c))
		c.Status(http.StatusNoContent)
	})

	token := func(userType string) string {
		tok, err := jwt.GenerateAccessToken(1, userType+"@example.com", userType)
		require.NoError(t, err)
		return "Bearer " + tok
	}

	tests := []struct {
		path     string
		userType string
		status   int
	}{
		{"/seller", "buyer", http.StatusForbidden},
		{"/seller", "seller", http.StatusNoContent},
		{"/seller", "admin", http.StatusNoContent},
		{"/admin", "seller", http.StatusForbidden},
		{"/admin", "admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.userType+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", token(tt.userType))
			assert.Equal(t, tt.status, serve(r, req).Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, logger.GetRequestID(c.Request.Context()))
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	w = serve(r, req)
	assert.Equal(t, "upstream-id", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 100))
	w = serve(r, req)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36, "oversized ids are replaced")
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(testutil.Logger()))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}

func TestRequestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(RequestSizeLimit(16))
	r.POST("/", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	assert.Equal(t, http.StatusNoContent, serve(r, small).Code)

	large := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, large).Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://shop.example.com", "*.example.org"}

	assert.True(t, isOriginAllowed("https://shop.example.com", allowed))
	assert.True(t, isOriginAllowed("https://admin.example.org", allowed))
	assert.False(t, isOriginAllowed("https://evil.com", allowed))
	assert.False(t, isOriginAllowed("https://example.org.evil.com", allowed))
	assert.True(t, isOriginAllowed("https://anything.dev", []string{"*"}))
}

func TestRateLimitWithoutRedisIsDisabled(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(testutil.Config(), nil, testutil.Logger()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}
