package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"system_bridge/internal/service"
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Node information
// @Description  Identity and addressing of this node; used by peers to probe a bridge
// @Tags         system
// @Produce      json
// @Success      200  {object}  models.Information
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /information [get]
// @Security     ApiKeyAuth
func (h *Handler) information(c *gin.Context) {
	info, err := h.info.Information(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errInternal, "information_failed", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// @Summary      Open a path or URL on this node
// @Tags         system
// @Accept       json
// @Produce      json
// @Param        body  body      service.OpenRequest  true  "Exactly one of path or url"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/open [post]
// @Security     ApiKeyAuth
func (h *Handler) open(c *gin.Context) {
	var req service.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Opener.Open(c.Request.Context(), req); err != nil {
		h.serviceError(c, "open_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOpened})
}
