package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codelyst/projmart/internal/config"
	"github.com/codelyst/projmart/internal/middleware"
	"github.com/codelyst/projmart/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env: "test",
		},
		JWT: config.JWTConfig{
			Secret:             "test-secret-key-for-jwt-testing",
			Issuer:             "projmart",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
		},
		Credits: config.CreditsConfig{
			DefaultCredits:    10,
			DefaultDailyLimit: 10,
			MaxTxRetries:      3,
		},
		RateLimit: config.RateLimitConfig{
			ChatPerWindow: 20,
			WindowSeconds: 60,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

func testServer(t *testing.T) (*APIServer, *middleware.JWTAuthenticator) {
	t.Helper()
	cfg := testConfig()
	srv := NewAPIServer(cfg, nil, nil, nil)
	return srv, middleware.NewJWTAuthenticator(&cfg.JWT)
}

func authedRequest(t *testing.T, auth *middleware.JWTAuthenticator, userType models.UserType, method, path, body string) *http.Request {
	t.Helper()
	token, err := auth.GenerateAccessToken(uuid.New(), userType, "test@example.com")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthCheck(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, _ := testServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/chat/messages"},
		{"GET", "/api/v1/credits/me"},
		{"GET", "/api/v1/credits/me/history"},
		{"GET", "/api/v1/projects/quota"},
		{"POST", "/api/v1/projects/slots"},
		{"POST", "/api/v1/quota-requests/"},
		{"GET", "/api/v1/quota-requests/"},
		{"GET", "/api/v1/admin/quota-requests"},
		{"POST", "/api/v1/admin/credits/reset-all"},
	}

	for _, r := range routes {
		req := httptest.NewRequest(r.method, r.path, nil)
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected status 401 without token, got %d", r.method, r.path, w.Code)
		}
	}
}

func TestAdminRoutesForbiddenForMembers(t *testing.T) {
	srv, auth := testServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/admin/quota-requests"},
		{"POST", "/api/v1/admin/credits/reset-all"},
		{"GET", "/api/v1/admin/credits/policy"},
		{"POST", "/api/v1/admin/users/" + uuid.NewString() + "/premium/toggle"},
	}

	for _, r := range routes {
		req := authedRequest(t, auth, models.UserTypeMember, r.method, r.path, "")
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected status 403 for member, got %d", r.method, r.path, w.Code)
		}
	}
}

func TestSendMessageRejectsInvalidBody(t *testing.T) {
	srv, auth := testServer(t)

	req := authedRequest(t, auth, models.UserTypeMember, "POST", "/api/v1/chat/messages", `{"context": "no prompt"}`)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing prompt, got %d", w.Code)
	}
}

func TestAdminAdjustRejectsInvalidUserID(t *testing.T) {
	srv, auth := testServer(t)

	req := authedRequest(t, auth, models.UserTypeAdmin, "POST", "/api/v1/admin/users/not-a-uuid/credits/adjust",
		`{"action": "add", "amount": "5"}`)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed user id, got %d", w.Code)
	}
}
