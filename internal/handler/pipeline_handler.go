package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mail-archivist/internal/model"
	"mail-archivist/internal/pipeline"
)

// PipelineRunner is satisfied by *pipeline.Orchestrator.
type PipelineRunner interface {
	Start(action model.Action, params pipeline.Params) (model.RunInfo, error)
	Status() model.RunInfo
}

type PipelineHandler struct {
	runner PipelineRunner
	logger *zap.Logger
}

func NewPipelineHandler(runner PipelineRunner, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{runner: runner, logger: logger}
}

// looseString decodes a JSON string or number, so both "year": 2024 and
// "year": "2024" are accepted.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

type pipelineRequest struct {
	Action string      `json:"action"`
	After  string      `json:"after"`
	Before string      `json:"before"`
	Year   looseString `json:"year"`
	Month  string      `json:"month"`
}

// Start handles POST /api/pipeline
func (h *PipelineHandler) Start(c *gin.Context) {
	var req pipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	info, err := h.runner.Start(model.Action(req.Action), pipeline.Params{
		After:  req.After,
		Before: req.Before,
		Year:   string(req.Year),
		Month:  req.Month,
	})
	var invalid *pipeline.ValidationError
	var running *pipeline.AlreadyRunningError
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"status": "started",
			"action": info.Action,
			"run_id": info.RunID,
			"after":  info.After,
			"before": info.Before,
		})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
	case errors.As(err, &running):
		c.JSON(http.StatusConflict, gin.H{
			"error":  running.Error(),
			"run_id": running.Current.RunID,
			"action": running.Current.Action,
		})
	case errors.Is(err, pipeline.ErrShutdown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		internalError(c, h.logger, "failed to start pipeline", err)
	}
}

// Status handles GET /api/pipeline/status
func (h *PipelineHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.Status())
}
