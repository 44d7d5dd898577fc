package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "mail-archivist/contracts/mq"
	"mail-archivist/internal/model"
	"mail-archivist/internal/pipeline"
	"mail-archivist/pkg/logger"
	"mail-archivist/pkg/mq"
)

// Starter is satisfied by *pipeline.Orchestrator.
type Starter interface {
	Start(action model.Action, params pipeline.Params) (model.RunInfo, error)
}

// PipelineRequestedHandler turns pipeline.requested messages into runs.
type PipelineRequestedHandler struct {
	starter Starter
	logger  *zap.Logger
}

func NewPipelineRequestedHandler(starter Starter, logger *zap.Logger) *PipelineRequestedHandler {
	return &PipelineRequestedHandler{starter: starter, logger: logger}
}

// Handle starts the requested run. Requests that can never succeed as sent
// (bad payload, invalid params, a run already in flight) are permanent
// failures; the orchestrator does not queue runs.
func (h *PipelineRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.PipelineRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal pipeline request", zap.Error(err))
		return fmt.Errorf("%w: json decode: %v", mq.ErrPermanent, err)
	}

	info, err := h.starter.Start(model.Action(p.Action), pipeline.Params{
		After:  p.After,
		Before: p.Before,
		Year:   p.Year,
		Month:  p.Month,
	})
	var invalid *pipeline.ValidationError
	var running *pipeline.AlreadyRunningError
	switch {
	case err == nil:
		log.Info("Pipeline run started from queue",
			zap.String("action", string(info.Action)),
			zap.String("run_id", info.RunID),
		)
		return nil
	case errors.As(err, &invalid), errors.As(err, &running):
		log.Warn("Pipeline request rejected", zap.String("action", p.Action), zap.Error(err))
		return fmt.Errorf("%w: %v", mq.ErrPermanent, err)
	default:
		return err
	}
}
