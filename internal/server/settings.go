package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/haven-org/haven/internal/auth"
	"github.com/haven-org/haven/internal/settings"
)

// putSettingRequest keeps Value raw so any JSON document is stored as sent.
type putSettingRequest struct {
	Value       json.RawMessage `json:"value"`
	Description *string         `json:"description"`
	Category    string          `json:"category"`
}

func handleListSettings(store settings.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := store.List(c.Request.Context(), c.Query("category"))
		if err != nil {
			log.Error("List settings", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Failed to fetch settings")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
	}
}

func handleGetSetting(store settings.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := store.Get(c.Request.Context(), c.Param("key"))
		switch {
		case errors.Is(err, settings.ErrNotFound), errors.Is(err, settings.ErrInvalidKey):
			fail(c, http.StatusNotFound, "Setting not found")
			return
		case err != nil:
			log.Error("Get setting", zap.String("key", c.Param("key")), zap.Error(err))
			fail(c, http.StatusInternalServerError, "Failed to fetch setting")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
	}
}

func handlePutSetting(store settings.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		var req putSettingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Invalid request body")
			return
		}
		if len(req.Value) == 0 || string(req.Value) == "null" {
			fail(c, http.StatusBadRequest, "Setting value is required")
			return
		}

		rec, err := store.Upsert(c.Request.Context(), key, req.Value, settings.Meta{
			Description: req.Description,
			Category:    req.Category,
		})
		if errors.Is(err, settings.ErrInvalidKey) {
			fail(c, http.StatusBadRequest, "Invalid setting key")
			return
		}
		if err != nil {
			log.Error("Upsert setting", zap.String("key", key), zap.Error(err))
			fail(c, http.StatusInternalServerError, "Failed to update setting")
			return
		}
		log.Info("Setting updated", zap.String("key", key), zap.String("category", rec.Category), zap.String("by", subject(c)))
		c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
	}
}

func subject(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return claims.Subject
	}
	return ""
}
