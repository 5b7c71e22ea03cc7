package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"arcade-rental-backend/internal/booking"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
	"arcade-rental-backend/internal/mw"
)

type createReservationRequest struct {
	Date         string           `json:"date" binding:"required"`
	DeviceTypeID int64            `json:"device_type_id"`
	DeviceID     *int64           `json:"device_id"`
	StartHour    *int             `json:"start_hour" binding:"required"`
	EndHour      *int             `json:"end_hour" binding:"required"`
	CreditType   model.CreditType `json:"credit_type" binding:"required"`
	PlayerCount  int              `json:"player_count"`
}

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if req.PlayerCount == 0 {
		req.PlayerCount = 1
	}

	r, err := h.booking.CreateReservation(c.Request.Context(), booking.Request{
		UserID:       mw.UserID(c),
		Date:         req.Date,
		DeviceTypeID: req.DeviceTypeID,
		DeviceID:     req.DeviceID,
		StartHour:    *req.StartHour,
		EndHour:      *req.EndHour,
		CreditType:   req.CreditType,
		PlayerCount:  req.PlayerCount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newReservationResponse(r))
}

// GetReservation handles GET /api/reservations/:id. Customers see only their own.
func (h *Handler) GetReservation(c *gin.Context) {
	h.syncStatuses(c)

	r, err := h.booking.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if mw.OperatorID(c) == "" && r.UserID != mw.UserID(c) {
		writeError(c, booking.ErrNotOwner)
		return
	}
	c.JSON(http.StatusOK, newReservationResponse(r))
}

type approveRequest struct {
	DeviceID *int64 `json:"device_id"`
}

// ApproveReservation handles POST /api/reservations/:id/approve.
func (h *Handler) ApproveReservation(c *gin.Context) {
	var req approveRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	r, err := h.booking.Approve(c.Request.Context(), c.Param("id"), booking.ApproveInput{
		OperatorID: mw.OperatorID(c),
		DeviceID:   req.DeviceID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newReservationResponse(r))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// RejectReservation handles POST /api/reservations/:id/reject.
func (h *Handler) RejectReservation(c *gin.Context) {
	var req reasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	r, err := h.booking.Reject(c.Request.Context(), c.Param("id"), mw.OperatorID(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newReservationResponse(r))
}

// CancelReservation handles POST /api/reservations/:id/cancel. Staff may cancel
// any reservation; customers only their own.
func (h *Handler) CancelReservation(c *gin.Context) {
	var req reasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	by, actor := lifecycle.TriggerUser, mw.UserID(c)
	if op := mw.OperatorID(c); op != "" {
		by, actor = lifecycle.TriggerOperator, op
	}
	if actor == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + mw.UserIDHeader + " header"})
		return
	}

	r, err := h.booking.Cancel(c.Request.Context(), c.Param("id"), by, actor, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newReservationResponse(r))
}

type checkInRequest struct {
	DeviceID *int64 `json:"device_id"`
}

// CheckInReservation handles POST /api/reservations/:id/check-in.
func (h *Handler) CheckInReservation(c *gin.Context) {
	var req checkInRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	r, err := h.booking.CheckIn(c.Request.Context(), c.Param("id"), req.DeviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newReservationResponse(r))
}

// bindOptionalJSON binds the body when one was sent.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid request")
		return false
	}
	return true
}
