package server

import (
	"net/http"

	"github.com/codelyst/projmart/internal/cache"
	"github.com/codelyst/projmart/internal/chat"
	"github.com/codelyst/projmart/internal/config"
	"github.com/codelyst/projmart/internal/credits"
	apierrors "github.com/codelyst/projmart/internal/errors"
	"github.com/codelyst/projmart/internal/logging"
	"github.com/codelyst/projmart/internal/middleware"
	"github.com/codelyst/projmart/internal/monitoring"
	"github.com/codelyst/projmart/internal/quota"
	"github.com/codelyst/projmart/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIServer represents the main API server
type APIServer struct {
	config           *config.Config
	router           *gin.Engine
	db               *pgxpool.Pool
	creditService    *credits.Service
	quotaService     *quota.Service
	chatService      *chat.Service
	limiter          *ratelimit.Limiter
	jwtAuthenticator *middleware.JWTAuthenticator
}

// NewAPIServer creates a new API server instance. The Redis client and
// completer may be nil; the server then runs without the balance cache,
// rate limiting, or a live model upstream.
func NewAPIServer(cfg *config.Config, db *pgxpool.Pool, rdb *cache.Redis, completer chat.Completer) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	creditService := credits.NewService(db, rdb, &cfg.Credits)
	quotaService := quota.NewService(db, &cfg.Credits)
	if completer == nil {
		completer = chat.NewHTTPCompleter(&cfg.Chat)
	}
	chatService := chat.NewService(completer, creditService)

	srv := &APIServer{
		config:           cfg,
		router:           router,
		db:               db,
		creditService:    creditService,
		quotaService:     quotaService,
		chatService:      chatService,
		limiter:          ratelimit.NewLimiter(rdb, &cfg.RateLimit),
		jwtAuthenticator: middleware.NewJWTAuthenticator(&cfg.JWT),
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		// Chat routes (protected - any authenticated user)
		chatGroup := v1.Group("/chat")
		chatGroup.Use(s.jwtAuthenticator.JWTAuth())
		{
			chatGroup.POST("/messages", s.handleSendMessage)
		}

		// Credit routes (protected - own account only)
		creditGroup := v1.Group("/credits")
		creditGroup.Use(s.jwtAuthenticator.JWTAuth())
		{
			creditGroup.GET("/me", s.handleGetMyCredits)
			creditGroup.GET("/me/balance", s.handleGetMyBalance)
			creditGroup.GET("/me/history", s.handleGetMyHistory)
		}

		// Project quota routes (protected)
		projects := v1.Group("/projects")
		projects.Use(s.jwtAuthenticator.JWTAuth())
		{
			projects.GET("/quota", s.handleGetMyQuota)
			projects.POST("/slots", s.handleConsumeSlot)
			projects.DELETE("/slots", s.handleReleaseSlot)
		}

		// Quota request routes (protected)
		requests := v1.Group("/quota-requests")
		requests.Use(s.jwtAuthenticator.JWTAuth())
		{
			requests.POST("/", s.handleRequestQuotaIncrease)
			requests.GET("/", s.handleListMyQuotaRequests)
		}

		// Admin routes (protected - requires admin role)
		admin := v1.Group("/admin")
		admin.Use(s.jwtAuthenticator.JWTAuth())
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/users/:id/credits", s.handleAdminGetCredits)
			admin.GET("/users/:id/credits/history", s.handleAdminGetHistory)
			admin.POST("/users/:id/credits/adjust", s.handleAdminAdjustCredits)
			admin.POST("/users/:id/premium/toggle", s.handleAdminTogglePremium)
			admin.POST("/credits/reset-all", s.handleAdminResetAll)
			admin.GET("/credits/policy", s.handleAdminGetPolicy)
			admin.PUT("/credits/policy", s.handleAdminUpdatePolicy)
			admin.GET("/quota-requests", s.handleAdminListPendingRequests)
			admin.POST("/quota-requests/:id/approve", s.handleAdminApproveRequest)
			admin.POST("/quota-requests/:id/reject", s.handleAdminRejectRequest)
		}
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "api",
	})
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)

	c.JSON(err.HTTPStatus, apierrors.ErrorResponse{
		Error:     *err,
		RequestID: reqIDStr,
	})
}
