package handlers

import (
	"github.com/gin-gonic/gin"
)

// Authentication happens per frame inside the bus, not on the upgrade.
func (h *Handler) wsConnect(c *gin.Context) {
	h.bus.ServeWS(c.Writer, c.Request)
}
