package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mail-archivist/pkg/logger"
)

// internalError logs err with the request trace id and answers 500.
func internalError(c *gin.Context, log *zap.Logger, msg string, err error) {
	logger.WithTrace(c.Request.Context(), log).Error(msg,
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
