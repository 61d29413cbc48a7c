package routes

import (
	"net/http"
	"time"

	"staybook/handlers"
	"staybook/middleware"
	"staybook/models"
	"staybook/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterReservationRoutes registers the reservation endpoints. Every route
// requires a bearer token.
func RegisterReservationRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	h := hb.Reservations
	api := r.Group("/api")
	api.Use(middleware.JWTAuthMiddleware())
	{
		api.GET("/availability", h.CheckAvailabilityHandler)

		reservations := api.Group("/reservations")
		reservations.GET("", h.ListReservationsHandler)
		reservations.GET("/upcoming", h.UpcomingReservationsHandler)
		reservations.GET("/:id", h.GetReservationHandler)

		customer := reservations.Group("")
		customer.Use(middleware.RequireRole(models.RoleCustomer))
		customer.POST("", h.CreateReservationHandler)
		customer.POST("/:id/cancel-request", h.RequestCancellationHandler)
		customer.POST("/:id/extension", h.RequestExtensionHandler)

		vendor := reservations.Group("")
		vendor.Use(middleware.RequireRole(models.RoleVendor, models.RoleAdmin))
		vendor.POST("/:id/decision", h.DecideHandler)
		vendor.POST("/:id/refund", h.RefundHandler)
		vendor.POST("/:id/extension/resolve", h.ResolveExtensionHandler)

		api.GET("/vendors/:vendorId/stats", middleware.RequireRole(models.RoleVendor, models.RoleAdmin), h.VendorStatsHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint backed by the
// periodic dependency probe.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Hi, I'm staybook", "dependencies": utils.GetHealthStatus()})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r)
	RegisterReservationRoutes(r, hb)
}
