package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codelyst/projmart/internal/config"
	"github.com/codelyst/projmart/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testJWTConfig(secret string) *config.JWTConfig {
	return &config.JWTConfig{
		Secret:             secret,
		Issuer:             "projmart",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}
}

// Helper function to create a test JWT token
func createTestToken(secret, userID, userType, subject string, expiry time.Duration) string {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		UserType: userType,
		Email:    "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "projmart",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

func protectedRouter(authenticator *JWTAuthenticator, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	handlers := append([]gin.HandlerFunc{authenticator.JWTAuth()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   GetUserIDFromContext(c),
			"user_type": GetUserTypeFromContext(c),
		})
	})
	router.GET("/protected", handlers...)
	return router
}

func TestJWTAuth_ValidToken(t *testing.T) {
	secret := "test-secret-key-for-jwt-testing"
	authenticator := NewJWTAuthenticator(testJWTConfig(secret))

	userID := uuid.New()
	token := createTestToken(secret, userID.String(), "member", "access", 15*time.Minute)

	router := protectedRouter(authenticator)
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestJWTAuth_MissingToken(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig("test-secret"))

	router := protectedRouter(authenticator)
	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testJWTConfig(secret))

	token := createTestToken(secret, uuid.New().String(), "member", "access", -time.Minute)

	router := protectedRouter(authenticator)
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for expired token, got %d", w.Code)
	}
}

func TestJWTAuth_WrongSubject(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testJWTConfig(secret))

	// Refresh tokens must not pass the access-token gate.
	token := createTestToken(secret, uuid.New().String(), "member", "refresh", 15*time.Minute)

	router := protectedRouter(authenticator)
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for refresh token, got %d", w.Code)
	}
}

func TestJWTAuth_WrongSecret(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig("right-secret"))

	token := createTestToken("wrong-secret", uuid.New().String(), "member", "access", 15*time.Minute)

	router := protectedRouter(authenticator)
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for forged token, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testJWTConfig(secret))
	router := protectedRouter(authenticator, RequireAdmin())

	tests := []struct {
		name     string
		userType string
		want     int
	}{
		{"admin allowed", "admin", http.StatusOK},
		{"member forbidden", "member", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := createTestToken(secret, uuid.New().String(), tt.userType, "access", 15*time.Minute)
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestGenerateAccessTokenRoundTrip(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig("test-secret"))

	userID := uuid.New()
	token, err := authenticator.GenerateAccessToken(userID, models.UserTypeAdmin, "admin@example.com")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := authenticator.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.UserID != userID.String() {
		t.Errorf("Expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.UserType != string(models.UserTypeAdmin) {
		t.Errorf("Expected user_type admin, got %s", claims.UserType)
	}
}
