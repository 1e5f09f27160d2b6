package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/tickin/dock-slot-service/internal/handler"    // import the handlers that implement business logic
	"github.com/tickin/dock-slot-service/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterSlots registers the sales-facing slot endpoints under /v1.
// Every route requires a valid access token; both SALES and MANAGER
// roles may view the grid and place or cancel bookings.  The ledger
// enforces the capacity rules, so the routing layer only deals with
// authentication and role membership.
func RegisterSlots(e *echo.Echo, h *handler.SlotHandler, jwtSecret string) {
	// Create a route group for authenticated slot operations.  All handlers
	// registered on this group will execute the JWTAuth middleware before
	// being invoked.
	g := e.Group("/v1/slots")
	// Apply the JWTAuth middleware to the group using the provided secret.
	g.Use(middleware.JWTAuth(jwtSecret))
	// Both sales users and managers may operate the booking surface.
	g.Use(middleware.RequireRole("SALES", "MANAGER"))
	// Render the full day grid for a tenant and date.
	g.GET("", h.GetGrid)
	// Place one booking; the ledger routes it FULL, HALF or WAITING.
	g.POST("/book", h.BookSlot)
	// Release a full-vehicle booking held by the caller.
	g.POST("/cancel", h.CancelSlot)
	// Explicitly queue a contribution behind an existing bucket.
	g.POST("/waiting", h.JoinWaiting)
}

// RegisterManager registers the manager-only override endpoints under
// /v1/manager.  These routes require the MANAGER role in addition to a
// valid access token.
func RegisterManager(e *echo.Echo, m *handler.ManagerHandler, jwtSecret string) {
	g := e.Group("/v1/manager")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("MANAGER"))
	// Lock a threshold-reaching bucket in as a dispatched trip.
	g.POST("/buckets/confirm", m.ConfirmBucket)
	// Override the dispatch threshold of one bucket.
	g.POST("/buckets/threshold", m.SetBucketThreshold)
	// Reassign a pooled booking between buckets.
	g.POST("/bookings/move", m.MoveBooking)
	// Change the tenant-wide FULL/HALF amount boundary.
	g.POST("/threshold", m.SetGlobalThreshold)
	// Take a position or bucket out of service / return it to service.
	g.POST("/slots/disable", m.DisableSlot)
	g.POST("/slots/enable", m.EnableSlot)
	// Open or close the gated final time slot.
	g.POST("/reserve-slot", m.ToggleReserveSlot)
	// Pin an order/distributor pair to a named merge group.
	g.POST("/clusters", m.AssignCluster)
}
