package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"arcade-rental-backend/internal/lifecycle"
)

type deviceStatusRequest struct {
	Status lifecycle.DeviceStatus `json:"status" binding:"required"`
}

// PutDeviceStatus handles PUT /api/devices/:id/status.
func (h *Handler) PutDeviceStatus(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req deviceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	dev, err := h.booking.SetDeviceStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeviceResponse(dev))
}

// PostReconcile handles POST /api/reconcile, the entry point for an external
// scheduler. It bypasses the debounce gate.
func (h *Handler) PostReconcile(c *gin.Context) {
	if h.reconciler == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "reconciler disabled"})
		return
	}
	c.JSON(http.StatusOK, h.reconciler.Run(c.Request.Context()))
}
