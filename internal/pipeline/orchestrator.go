// Package pipeline runs the sync, rules, classify and archive phases one at
// a time in the background.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "mail-archivist/contracts/mq"
	"mail-archivist/internal/classifier"
	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
	"mail-archivist/pkg/metrics"
	"mail-archivist/pkg/otel"
	"mail-archivist/pkg/util"
)

// MailFetcher lists the messages dated inside a window.
type MailFetcher interface {
	Fetch(ctx context.Context, window model.DateWindow) ([]model.Email, error)
}

// MailArchiver files one message under label and removes it from the inbox.
type MailArchiver interface {
	Archive(ctx context.Context, id, label string) error
}

// RuleProposer suggests a category per sender.
type RuleProposer interface {
	ProposeRules(ctx context.Context, senders []string) (map[string]string, error)
}

// RuleStore is satisfied by *rules.Store.
type RuleStore interface {
	Add(ctx context.Context, rule model.Rule) (model.Rule, error)
	HasSender(sender string) bool
}

// Classifier is satisfied by *classifier.Classifier.
type Classifier interface {
	Classify(ctx context.Context, email model.Email) (classifier.Result, bool, error)
}

// Deduper is satisfied by *util.Deduper.
type Deduper interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}

type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// Deps are the collaborators of an Orchestrator. Proposer, Deduper and
// Publisher may be nil.
type Deps struct {
	Emails     repository.EmailRepository
	Rules      RuleStore
	Classifier Classifier
	Fetcher    MailFetcher
	Archiver   MailArchiver
	Proposer   RuleProposer
	Deduper    Deduper
	Publisher  EventPublisher
}

type Options struct {
	// Cooldown is how long a failed run stays Failed before Idle.
	Cooldown time.Duration
	// CallTimeout bounds every collaborator call.
	CallTimeout time.Duration
	// SenderLimit caps the senders sent to the proposer per rules phase.
	SenderLimit int
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = 2 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
	if o.SenderLimit <= 0 {
		o.SenderLimit = 200
	}
	return o
}

// autoPhases is the order of an auto run.
var autoPhases = []model.Action{model.ActionSync, model.ActionRules, model.ActionClassify, model.ActionArchive}

// Orchestrator allows at most one run at a time. Runs execute on the
// orchestrator's own context and outlive the request that started them.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	info     model.RunInfo
	cooldown *time.Timer
	closed   bool
}

// New returns an idle Orchestrator. logger receives every phase log line;
// tee it into a logstream core to expose them to pollers.
func New(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		info:   model.RunInfo{Status: model.StatusIdle},
	}
}

// Start validates the request and launches the run in the background.
// A Start while Running returns *AlreadyRunningError; Failed does not block.
func (o *Orchestrator) Start(action model.Action, params Params) (model.RunInfo, error) {
	if !action.Valid() {
		return model.RunInfo{}, &ValidationError{Field: "action", Msg: fmt.Sprintf("unknown action %q", action)}
	}

	var window model.DateWindow
	if action == model.ActionSync || action == model.ActionAuto {
		w, err := ParseWindow(params, o.now())
		if err != nil {
			return model.RunInfo{}, err
		}
		window = w
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return model.RunInfo{}, ErrShutdown
	}
	if o.info.Status == model.StatusRunning {
		current := o.info
		o.mu.Unlock()
		return model.RunInfo{}, &AlreadyRunningError{Current: current}
	}
	if o.cooldown != nil {
		o.cooldown.Stop()
		o.cooldown = nil
	}

	startedAt := o.now()
	o.info = model.RunInfo{
		RunID:     uuid.NewString(),
		Status:    model.StatusRunning,
		Action:    action,
		StartedAt: &startedAt,
	}
	if !window.IsZero() {
		o.info.After = window.After.Format(model.DateLayout)
		o.info.Before = window.Before.Format(model.DateLayout)
	}
	info := o.info
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(info, window)
	return info, nil
}

// Status returns a snapshot of the current or last run.
func (o *Orchestrator) Status() model.RunInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.info
}

// Shutdown rejects new runs, cancels the in-flight one and waits for it.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	if o.cooldown != nil {
		o.cooldown.Stop()
		o.cooldown = nil
	}
	o.mu.Unlock()

	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(info model.RunInfo, window model.DateWindow) {
	defer o.wg.Done()

	o.publish(mqcontracts.RoutingPipelineStarted, mqcontracts.PipelineStartedPayload{
		RunID:     info.RunID,
		Action:    string(info.Action),
		After:     info.After,
		Before:    info.Before,
		StartedAt: *info.StartedAt,
	})
	o.logger.Info(fmt.Sprintf("Pipeline %s started", info.Action), zap.String("run_id", info.RunID))

	ctx, span := otel.StartSpan(o.ctx, "pipeline."+string(info.Action))
	err := o.execute(ctx, info.Action, window)
	otel.EndSpan(span, err)

	o.finish(info, err)
}

func (o *Orchestrator) execute(ctx context.Context, action model.Action, window model.DateWindow) error {
	if action != model.ActionAuto {
		return o.runPhase(ctx, action, window)
	}
	for _, phase := range autoPhases {
		if err := o.runPhase(ctx, phase, window); err != nil {
			return &PhaseError{Phase: phase, Err: err}
		}
	}
	return nil
}

// runPhase converts a panic in the phase into its error, so the span and
// duration are recorded and the run always ends.
func (o *Orchestrator) runPhase(ctx context.Context, phase model.Action, window model.DateWindow) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	ctx, span := otel.StartSpan(ctx, "phase."+string(phase))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		otel.EndSpan(span, err)

		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.RecordPhaseDuration(string(phase), status, time.Since(start))
	}()

	switch phase {
	case model.ActionSync:
		return o.syncPhase(ctx, window)
	case model.ActionRules:
		return o.rulesPhase(ctx)
	case model.ActionClassify:
		return o.classifyPhase(ctx)
	case model.ActionArchive:
		return o.archivePhase(ctx)
	}
	return fmt.Errorf("unknown phase %q", phase)
}

func (o *Orchestrator) finish(info model.RunInfo, err error) {
	finishedAt := o.now()
	elapsed := finishedAt.Sub(*info.StartedAt)

	if err == nil {
		o.logger.Info(fmt.Sprintf("Pipeline %s completed in %s", info.Action, elapsed.Round(time.Millisecond)),
			zap.String("run_id", info.RunID))
		metrics.RecordPipelineRun(string(info.Action), "success")
		o.publish(mqcontracts.RoutingPipelineCompleted, mqcontracts.PipelineCompletedPayload{
			RunID:      info.RunID,
			Action:     string(info.Action),
			DurationMs: elapsed.Milliseconds(),
			FinishedAt: finishedAt,
		})
	} else {
		_, class := util.IsRetryableError(err)
		o.logger.Error(fmt.Sprintf("Pipeline %s failed", info.Action),
			zap.String("run_id", info.RunID),
			zap.String("error_class", class),
			zap.Error(err),
		)
		metrics.RecordPipelineRun(string(info.Action), "failed")
		phase := info.Action
		var perr *PhaseError
		if errors.As(err, &perr) {
			phase = perr.Phase
		}
		o.publish(mqcontracts.RoutingPipelineFailed, mqcontracts.PipelineFailedPayload{
			RunID:      info.RunID,
			Action:     string(info.Action),
			Phase:      string(phase),
			Error:      err.Error(),
			FinishedAt: finishedAt,
		})
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.info.FinishedAt = &finishedAt
	if err == nil {
		o.info.Status = model.StatusIdle
		return
	}
	o.info.Status = model.StatusFailed
	o.info.LastError = err.Error()
	if o.closed {
		o.info.Status = model.StatusIdle
		return
	}
	runID := info.RunID
	o.cooldown = time.AfterFunc(o.opts.Cooldown, func() { o.resetFailed(runID) })
}

// resetFailed returns a failed run to Idle unless another run replaced it.
func (o *Orchestrator) resetFailed(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.info.RunID == runID && o.info.Status == model.StatusFailed {
		o.info.Status = model.StatusIdle
		o.cooldown = nil
	}
}

func (o *Orchestrator) publish(routingKey string, payload any) {
	if o.deps.Publisher == nil {
		return
	}
	if err := o.deps.Publisher.Publish(routingKey, payload); err != nil {
		o.logger.Warn("Failed to publish pipeline event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.opts.CallTimeout)
}
