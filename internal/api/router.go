package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/doclens/internal/api/history"
	"github.com/liliang-cn/doclens/internal/api/middleware"
	"github.com/liliang-cn/doclens/internal/api/session"
	"github.com/liliang-cn/doclens/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
	Logger       *zap.Logger
}

// SetupRouter sets up the Gin router. historyService may be nil when the
// archive is disabled; the history routes are then not registered
func SetupRouter(
	orchestrator *service.Orchestrator,
	stager *service.Stager,
	historyService *service.HistoryService,
	cfg RouterConfig,
) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check, re-probes the backend
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"backend": orchestrator.CheckHealth(c.Request.Context()),
		})
	})

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Auth(cfg.APIKey))

	sessionHandler := session.NewHandler(orchestrator, stager, logger)
	sessionHandler.RegisterRoutes(apiGroup.Group("/session"))

	if historyService != nil {
		historyHandler := history.NewHandler(historyService)
		historyHandler.RegisterRoutes(apiGroup.Group("/history"))
	}

	return r
}
