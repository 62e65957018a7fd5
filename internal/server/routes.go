package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/haven-org/haven/internal/auth"
	"github.com/haven-org/haven/internal/settings"
)

type routeDeps struct {
	store    settings.Store
	verifier *auth.Verifier
	logger   *zap.Logger
	metrics  *metrics
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, d routeDeps) {
	router.GET("/health", handleHealth(d.store))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.metrics.registry, promhttp.HandlerOpts{})))

	adminOnly := auth.RequireRole(d.verifier, d.logger, auth.RoleAdmin)

	api := router.Group("/api/settings")
	// Static segments win over :key in gin's tree, so the donations routes
	// are never shadowed by the generic ones.
	api.GET("/donations", handleGetDonations(d.store, d.logger.Named("donations")))
	api.PUT("/donations", adminOnly, handleUpdateDonations(d.store, d.logger.Named("donations")))

	api.GET("", adminOnly, handleListSettings(d.store, d.logger.Named("settings")))
	api.GET("/:key", adminOnly, handleGetSetting(d.store, d.logger.Named("settings")))
	api.PUT("/:key", adminOnly, handlePutSetting(d.store, d.logger.Named("settings")))
}

func handleHealth(store settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
