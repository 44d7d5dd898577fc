package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mail-archivist/internal/repository"
)

// RuleCounter is satisfied by *rules.Store.
type RuleCounter interface {
	Len() int
}

type StatsHandler struct {
	emails repository.EmailRepository
	rules  RuleCounter
	logger *zap.Logger
}

func NewStatsHandler(emails repository.EmailRepository, rules RuleCounter, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{emails: emails, rules: rules, logger: logger}
}

// Dashboard handles GET /api/stats
func (h *StatsHandler) Dashboard(c *gin.Context) {
	stats, err := h.emails.Stats(c.Request.Context())
	if err != nil {
		internalError(c, h.logger, "failed to load stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Database handles GET /api/database/stats
func (h *StatsHandler) Database(c *gin.Context) {
	counts, err := h.emails.Counts(c.Request.Context())
	if err != nil {
		internalError(c, h.logger, "failed to load database stats", err)
		return
	}
	counts.Rules = h.rules.Len()
	c.JSON(http.StatusOK, counts)
}

// Clear handles POST /api/database/clear. Rules are kept.
func (h *StatsHandler) Clear(c *gin.Context) {
	deleted, err := h.emails.Clear(c.Request.Context())
	if err != nil {
		internalError(c, h.logger, "failed to clear database", err)
		return
	}
	h.logger.Info("Database cleared", zap.Int64("deleted", deleted))
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "deleted": deleted})
}
