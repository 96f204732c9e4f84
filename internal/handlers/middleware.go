package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"system_bridge/internal/service"
)

func (h *Handler) apiKeyMiddleware(c *gin.Context) {
	key := c.GetHeader(service.APIKeyHeader)
	if key == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing api-key header",
		})
		return
	}
	if h.keys == nil || !h.keys.Valid(key) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid api key",
		})
		return
	}
	c.Next()
}
