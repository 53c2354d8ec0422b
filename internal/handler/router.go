package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lacocina/onboarding/internal/config"
	"lacocina/onboarding/internal/handler/middleware"
	jwtpkg "lacocina/onboarding/pkg/jwt"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	clientHandler *ClientHandler,
	storeHandler *StoreHandler,
	sessionHandler *SessionHandler,
	draftHandler *DraftHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public routes
	r.POST("/api/v1/clients", clientHandler.Register)

	// Client-scoped routes
	api := r.Group("/api/v1")
	api.Use(middleware.ClientAuth(jwtManager))
	{
		api.PUT("/store/:key", storeHandler.Set)
		api.GET("/store/:key", storeHandler.Get)
		api.DELETE("/store/:key", storeHandler.Remove)
		api.DELETE("/store", storeHandler.Clear)

		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/:id", sessionHandler.Get)
		api.PUT("/sessions/:id", sessionHandler.Save)
		api.POST("/sessions/:id/enter", sessionHandler.Enter)
		api.POST("/sessions/:id/forms/:form/complete", sessionHandler.CompleteForm)

		api.POST("/drafts/:key", draftHandler.Open)
		api.PUT("/drafts/:key", draftHandler.Put)
		api.PATCH("/drafts/:key", draftHandler.Patch)
		api.GET("/drafts/:key", draftHandler.Get)
		api.DELETE("/drafts/:key", draftHandler.Close)
	}

	return r
}
