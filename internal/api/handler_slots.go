package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arcade-rental-backend/internal/booking"
	"arcade-rental-backend/internal/mw"
)

// GetSlots handles GET /api/slots?date=&device_type_id=|device_id=.
func (h *Handler) GetSlots(c *gin.Context) {
	q := booking.SlotQuery{
		Date:   c.Query("date"),
		UserID: mw.UserID(c),
	}
	if raw := c.Query("device_type_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "invalid device_type_id")
			return
		}
		q.DeviceTypeID = id
	}
	deviceID, ok := optionalInt64Query(c, "device_id")
	if !ok {
		return
	}
	q.DeviceID = deviceID

	h.syncStatuses(c)

	views, err := h.booking.AvailableSlots(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAvailabilityResponse(views))
}

// GetDeviceTypes handles GET /api/device-types.
func (h *Handler) GetDeviceTypes(c *gin.Context) {
	types, err := h.store.DeviceTypes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]deviceTypeResponse, 0, len(types))
	for _, t := range types {
		resp = append(resp, newDeviceTypeResponse(t))
	}
	c.JSON(http.StatusOK, resp)
}
