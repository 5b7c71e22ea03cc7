package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arcade-rental-backend/internal/booking"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/reconcile"
	"arcade-rental-backend/internal/schedule"
	"arcade-rental-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	booking    *booking.Service
	reconciler *reconcile.Reconciler
}

// NewHandler creates a new API handler. A nil reconciler disables inline sync.
func NewHandler(s store.Store, svc *booking.Service, rc *reconcile.Reconciler) *Handler {
	return &Handler{
		store:      s,
		booking:    svc,
		reconciler: rc,
	}
}

// syncStatuses runs the gated inline reconcile pass before a read.
func (h *Handler) syncStatuses(c *gin.Context) {
	if h.reconciler != nil {
		h.reconciler.Trigger(c.Request.Context())
	}
}

type conflictResponse struct {
	Error     string              `json:"error"`
	Reason    string              `json:"reason"`
	Intervals []schedule.Interval `json:"intervals,omitempty"`
	Remaining *int                `json:"remaining_capacity,omitempty"`
}

// writeError maps domain errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var verr *booking.ValidationError
	var cerr *booking.ConflictError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.As(err, &cerr):
		c.AbortWithStatusJSON(http.StatusConflict, conflictResponse{
			Error:     cerr.Error(),
			Reason:    cerr.Reason,
			Intervals: cerr.Intervals,
			Remaining: cerr.Remaining,
		})
	case errors.Is(err, booking.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, store.ErrStaleStatus):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrNotOwner):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// int64Param parses a path parameter; ok is false once a 400 has been written.
func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// optionalInt64Query parses an optional positive integer query parameter.
func optionalInt64Query(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &v, true
}
