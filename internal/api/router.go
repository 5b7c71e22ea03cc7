package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"arcade-rental-backend/config"
	"arcade-rental-backend/internal/booking"
	"arcade-rental-backend/internal/mw"
	"arcade-rental-backend/internal/reconcile"
	"arcade-rental-backend/internal/store"
)

// Deps are the services the router wires into handlers.
type Deps struct {
	Store      store.Store
	Booking    *booking.Service
	Reconciler *reconcile.Reconciler
	Server     config.ServerConfig
}

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(d.Store, d.Booking, d.Reconciler)

	limit := rate.Limit(d.Server.RateLimitPerSec)
	if d.Server.RateLimitPerSec <= 0 {
		limit = rate.Inf
	}
	burst := int(d.Server.RateLimitPerSec)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := mw.RateLimiter(limit, burst, d.Server.RequestIPHeader)

	// Only reference data is cached; availability must always be live.
	ttl := time.Duration(d.Server.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(mw.Identity(), rateLimiter)
	{
		api.GET("/device-types", caching, handler.GetDeviceTypes)
		api.GET("/slots", handler.GetSlots)

		api.POST("/reservations", mw.RequireUser(), handler.CreateReservation)
		api.GET("/reservations/:id", handler.GetReservation)
		api.POST("/reservations/:id/cancel", handler.CancelReservation)

		staff := api.Group("", mw.RequireOperator())
		staff.POST("/reservations/:id/approve", handler.ApproveReservation)
		staff.POST("/reservations/:id/reject", handler.RejectReservation)
		staff.POST("/reservations/:id/check-in", handler.CheckInReservation)
		staff.PUT("/devices/:id/status", handler.PutDeviceStatus)
		staff.POST("/reconcile", handler.PostReconcile)
	}

	return r
}
