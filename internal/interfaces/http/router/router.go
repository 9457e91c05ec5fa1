package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pos/backend/internal/infrastructure/auth"
	"github.com/pos/backend/internal/interfaces/http/handler"
	"github.com/pos/backend/internal/interfaces/http/middleware"
)

// Dependencies holds everything the HTTP surface needs
type Dependencies struct {
	Logger     *zap.Logger
	JWTService *auth.JWTService
	FBR        *handler.FBRHandler
	System     *handler.SystemHandler
	// CORS is optional; zero value leaves cross-origin requests rejected
	CORS *middleware.CORSConfig
	// GinMode overrides gin's mode (debug, release, test); empty keeps release
	GinMode string
}

// New builds the gin engine with the full middleware chain and all routes
func New(deps Dependencies) *gin.Engine {
	mode := deps.GinMode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger(deps.Logger))
	engine.Use(middleware.Secure())
	if deps.CORS != nil {
		engine.Use(middleware.CORSWithConfig(*deps.CORS))
	}
	if deps.JWTService != nil {
		engine.Use(middleware.JWTAuthMiddleware(deps.JWTService))
	}

	// Probes stay outside the versioned API and outside auth
	engine.GET("/health", deps.System.Health)
	engine.GET("/ready", deps.System.Ready)

	api := engine.Group("/api/v1")
	registerFBRRoutes(api, deps.FBR)

	return engine
}

// registerFBRRoutes wires the submission queue endpoints
func registerFBRRoutes(api *gin.RouterGroup, h *handler.FBRHandler) {
	sales := api.Group("/sales")
	{
		sales.POST("/:id/fbr/submit", h.SubmitSale)
		sales.POST("/:id/fbr/validate", h.ValidateSale)
		sales.GET("/:id/fbr/history", h.SaleHistory)
	}

	queue := api.Group("/fbr/queue")
	{
		queue.GET("", h.ListQueue)
		queue.GET("/summary", h.QueueSummary)
		queue.POST("/:id/requeue", h.RequeueEntry)
		queue.POST("/run", h.RunQueue)
	}
}
