package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"system_bridge/internal/logger"
	"system_bridge/internal/models"
	"system_bridge/internal/service"
)

// KeyValidator checks the api-key header. It fails closed until a key is loaded.
type KeyValidator interface {
	Valid(candidate string) bool
}

// InfoSource describes the running node.
type InfoSource interface {
	Information(ctx context.Context) (models.Information, error)
}

// WSServer serves the event bus on an upgraded connection.
type WSServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	keys     KeyValidator
	info     InfoSource
	bus      WSServer
	log      *logger.Logger
}

func NewHandler(services *service.Service, keys KeyValidator, info InfoSource, bus WSServer, log *logger.Logger) *Handler {
	return &Handler{services: services, keys: keys, info: info, bus: bus, log: log}
}

// InitAPIRoutes builds the REST router served on the api port.
func (h *Handler) InitAPIRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)

	protected := router.Group("/", h.apiKeyMiddleware)
	{
		protected.GET("/information", h.information)
		// older peers relay here
		protected.POST("/open", h.open)
	}

	api := router.Group("/api", h.apiKeyMiddleware)
	{
		api.POST("/open", h.open)
		h.registerBridgeRoutes(api)
	}

	return router
}

func (h *Handler) registerBridgeRoutes(api *gin.RouterGroup) {
	bridges := api.Group("/bridges")
	{
		bridges.GET("", h.listBridges)
		bridges.POST("", h.createBridge)
		bridges.GET("/:key", h.getBridge)
		bridges.PUT("/:key", h.updateBridge)
		bridges.DELETE("/:key", h.deleteBridge)
		bridges.POST("/:key/open", h.openOnBridge)
		bridges.GET("/:key/test", h.testBridge)
	}
}

// InitWSRoutes builds the router served on the websocket port.
func (h *Handler) InitWSRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/", h.wsConnect)
	router.GET("/api/websocket", h.wsConnect)
	return router
}
