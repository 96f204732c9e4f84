package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"system_bridge/internal/models"
	"system_bridge/internal/service"
)

// CreateBridgeRequest is the payload for adding a bridge by hand.
type CreateBridgeRequest struct {
	// Optional; a uuid is generated when empty
	Key    string `json:"key,omitempty" example:"b3c1b0e2-8a0c-4f7e-9c55-1f2a3b4c5d6e"`
	Name   string `json:"name,omitempty" example:"office"`
	Host   string `json:"host" binding:"required" example:"192.168.1.20"`
	Port   int    `json:"port" binding:"required" example:"9170"`
	APIKey string `json:"apiKey,omitempty"`
}

// @Summary      List bridges
// @Tags         bridges
// @Produce      json
// @Success      200  {array}   models.Bridge
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/bridges [get]
// @Security     ApiKeyAuth
func (h *Handler) listBridges(c *gin.Context) {
	list, err := h.services.Bridges.List(c.Request.Context())
	if err != nil {
		h.serviceError(c, "bridges_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Add a bridge
// @Tags         bridges
// @Accept       json
// @Produce      json
// @Param        body  body      CreateBridgeRequest  true  "Bridge"
// @Success      201   {object}  models.Bridge
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/bridges [post]
// @Security     ApiKeyAuth
func (h *Handler) createBridge(c *gin.Context) {
	var req CreateBridgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	b, err := h.services.Bridges.Create(c.Request.Context(), models.Bridge{
		Key:    req.Key,
		Name:   req.Name,
		Host:   req.Host,
		Port:   req.Port,
		APIKey: req.APIKey,
	})
	if err != nil {
		h.serviceError(c, "bridge_create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// @Summary      Get a bridge
// @Tags         bridges
// @Produce      json
// @Param        key  path      string  true  "Bridge key"
// @Success      200  {object}  models.Bridge
// @Failure      404  {object}  map[string]string
// @Router       /api/bridges/{key} [get]
// @Security     ApiKeyAuth
func (h *Handler) getBridge(c *gin.Context) {
	b, err := h.services.Bridges.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.serviceError(c, "bridge_get_failed", err, "key", c.Param("key"))
		return
	}
	c.JSON(http.StatusOK, b)
}

// @Summary      Update a bridge
// @Description  Only the fields present in the body change
// @Tags         bridges
// @Accept       json
// @Produce      json
// @Param        key   path      string               true  "Bridge key"
// @Param        body  body      models.BridgeUpdate  true  "Partial bridge"
// @Success      200   {object}  models.Bridge
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/bridges/{key} [put]
// @Security     ApiKeyAuth
func (h *Handler) updateBridge(c *gin.Context) {
	var u models.BridgeUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	b, err := h.services.Bridges.Update(c.Request.Context(), c.Param("key"), u)
	if err != nil {
		h.serviceError(c, "bridge_update_failed", err, "key", c.Param("key"))
		return
	}
	c.JSON(http.StatusOK, b)
}

// @Summary      Remove a bridge
// @Tags         bridges
// @Produce      json
// @Param        key  path      string  true  "Bridge key"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/bridges/{key} [delete]
// @Security     ApiKeyAuth
func (h *Handler) deleteBridge(c *gin.Context) {
	if err := h.services.Bridges.Remove(c.Request.Context(), c.Param("key")); err != nil {
		h.serviceError(c, "bridge_delete_failed", err, "key", c.Param("key"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusDeleted})
}

// @Summary      Open a path or URL on a bridge
// @Tags         bridges
// @Accept       json
// @Produce      json
// @Param        key   path      string               true  "Bridge key"
// @Param        body  body      service.OpenRequest  true  "Exactly one of path or url"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/bridges/{key}/open [post]
// @Security     ApiKeyAuth
func (h *Handler) openOnBridge(c *gin.Context) {
	var req service.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Bridges.Open(c.Request.Context(), c.Param("key"), req); err != nil {
		h.serviceError(c, "bridge_open_failed", err, "key", c.Param("key"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOpened})
}

// @Summary      Test a bridge
// @Description  Fetches the peer's /information with the stored api key
// @Tags         bridges
// @Produce      json
// @Param        key  path      string  true  "Bridge key"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/bridges/{key}/test [get]
// @Security     ApiKeyAuth
func (h *Handler) testBridge(c *gin.Context) {
	info, err := h.services.Bridges.Probe(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.serviceError(c, "bridge_probe_failed", err, "key", c.Param("key"))
		return
	}
	c.JSON(http.StatusOK, info)
}
