package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mail-archivist/internal/settings"
)

type SettingsHandler struct {
	store *settings.Store
}

func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"google_api_key":  h.store.MaskedAPIKey(),
		"has_credentials": h.store.HasCredentials(),
	})
}

// Update handles POST /api/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var req struct {
		GoogleAPIKey *string `json:"google_api_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.GoogleAPIKey != nil {
		h.store.SetAPIKey(*req.GoogleAPIKey)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "success",
		"google_api_key":  h.store.MaskedAPIKey(),
		"has_credentials": h.store.HasCredentials(),
	})
}
