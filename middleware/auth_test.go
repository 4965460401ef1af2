package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/benforcapita/play-app-sub000/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:        "test-secret",
		TokenExpireHours: 1,
	}
}

func newAuthTestRouter(cfg *config.AuthConfig) *gin.Engine {
	router := gin.New()
	router.GET("/protected", AuthMiddleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"username": GetUsername(c),
			"owner":    GetOwner(c),
		})
	})
	return router
}

func TestGenerateToken(t *testing.T) {
	cfg := testAuthConfig()

	token, expiresAt, err := GenerateToken("alice", cfg)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Error("Expected non-empty token")
	}
	if remaining := time.Until(expiresAt); remaining < 50*time.Minute || remaining > 70*time.Minute {
		t.Errorf("Unexpected expiry window: %v", remaining)
	}
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	cfg := testAuthConfig()
	router := newAuthTestRouter(cfg)

	token, _, err := GenerateToken("alice", cfg)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	cfg := testAuthConfig()
	router := newAuthTestRouter(cfg)

	otherSecret := &config.AuthConfig{JWTSecret: "other-secret", TokenExpireHours: 1}
	foreignToken, _, err := GenerateToken("alice", otherSecret)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong signing key", "Bearer " + foreignToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "test-secret", TokenExpireHours: -1}
	token, _, err := GenerateToken("alice", cfg)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	router := newAuthTestRouter(testAuthConfig())
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for expired token, got %d", rec.Code)
	}
}

func TestGetOwnerDefaultsEmpty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if GetOwner(c) != "" || GetUsername(c) != "" {
		t.Error("Expected empty identity outside the middleware")
	}
}
