package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/haven-org/haven/internal/donations"
	"github.com/haven-org/haven/internal/settings"
)

func handleGetDonations(store settings.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := donations.Load(c.Request.Context(), store)
		if err != nil {
			log.Error("Load donation settings", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Failed to fetch donation settings")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": s})
	}
}

func handleUpdateDonations(store settings.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			fail(c, http.StatusBadRequest, "Could not read request body")
			return
		}
		update, err := donations.ParseUpdate(body)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}

		if update.Empty() {
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "Donation settings updated successfully"})
			return
		}

		written, err := donations.Apply(c.Request.Context(), store, update)
		if err != nil {
			log.Error("Update donation settings",
				zap.Strings("written", written),
				zap.Error(err),
			)
			fail(c, http.StatusInternalServerError, "Failed to update donation settings")
			return
		}
		log.Info("Donation settings updated", zap.Strings("keys", written), zap.String("by", subject(c)))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Donation settings updated successfully"})
	}
}
