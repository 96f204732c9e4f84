package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"system_bridge/internal/service"
)

// Common response constants to avoid magic strings and typos.
const (
	statusOK      = "ok"
	statusOpened  = "opened"
	statusDeleted = "deleted"

	errInvalidBodyPref = "invalid body: "
	errInternal        = "internal error"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// serviceError maps domain errors to a status code and a client message.
// Anything unknown is logged and reported as a 500.
func (h *Handler) serviceError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	switch {
	case errors.Is(err, service.ErrBridgeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrBridgeExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidBridge), errors.Is(err, service.ErrInvalidOpenRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrBridgeNotConfigured):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRelayFailed):
		h.logAndJSONError(c, http.StatusBadGateway, err.Error(), logKey, err, kv...)
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errInternal, logKey, err, kv...)
	}
}
