package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seantiz/tubetree/internal/backend"
	"github.com/seantiz/tubetree/internal/model"
	"github.com/seantiz/tubetree/internal/store"
	"github.com/seantiz/tubetree/internal/tubetree"
)

// Compile-time interface satisfaction check.
var _ tubetree.Executor = (*Engine)(nil)

// Engine runs command-line modules on behalf of execution records.
type Engine struct {
	store    store.Store
	registry *backend.Registry
	logger   *slog.Logger
	broker   *LogBroker
	timeout  time.Duration
}

// NewEngine creates a new execution engine.
func NewEngine(s store.Store, reg *backend.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		store:    s,
		registry: reg,
		logger:   logger,
		broker:   NewLogBroker(),
	}
}

// SetTimeout bounds every ApplyAndWait call. Zero, the default, leaves runs
// bounded only by the caller's context.
func (e *Engine) SetTimeout(d time.Duration) {
	e.timeout = d
}

// Broker returns the engine's log broker for SSE subscription.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// CreateRecord stores a fresh pending execution record for module.
func (e *Engine) CreateRecord(ctx context.Context, module string) (*model.ExecutionRecord, error) {
	r := &model.ExecutionRecord{
		ID:        model.NewID(),
		Module:    module,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateRecord(ctx, r); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	e.logger.Debug("execution record created", "record_id", r.ID, "module", module)
	return r, nil
}

// ApplyAndWait runs the module of r with its current parameters and blocks
// until the process exits. On return r carries the terminal status and result
// fields that were written to the store. A process that exits non-zero leaves
// r completed with a non-zero ExitCode and is not an error here.
func (e *Engine) ApplyAndWait(ctx context.Context, r *model.ExecutionRecord) error {
	if r == nil {
		return errors.New("nil execution record")
	}
	defer e.broker.Close(r.ID)

	if err := e.store.UpdateRecordParams(ctx, r.ID, r.Params); err != nil {
		return fmt.Errorf("store params: %w", err)
	}

	if err := e.store.UpdateRecordStatus(ctx, r.ID, model.StatusRunning); err != nil {
		e.logger.Error("failed to transition to running", "record_id", r.ID, "error", err)
		e.finishFailed(r, nil, fmt.Sprintf("failed to start: %v", err))
		return fmt.Errorf("start record: %w", err)
	}
	r.Status = model.StatusRunning

	// Capture start time right after the running transition so started_at is
	// consistent across success, failure and resolve-error paths.
	start := time.Now().UTC()
	r.StartedAt = &start

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	b, err := e.registry.Resolve(r.Module)
	if err != nil {
		e.finishFailed(r, &start, fmt.Sprintf("resolve backend: %v", err))
		return fmt.Errorf("resolve backend: %w", err)
	}

	// The LogWriter dual-writes: persist to SQLite for history, then publish
	// to the LogBroker for live SSE subscribers.
	var seq atomic.Int32
	spec := backend.CommandSpec{
		RecordID: r.ID,
		Module:   r.Module,
		Params:   r.Params,
		LogWriter: func(line string) {
			currentSeq := int(seq.Add(1) - 1)
			if err := e.store.InsertLogLine(context.WithoutCancel(ctx), r.ID, currentSeq, line); err != nil {
				e.logger.Error("failed to persist log line", "record_id", r.ID, "seq", currentSeq, "error", err)
			}
			e.broker.Publish(r.ID, line)
		},
	}

	result, err := b.Execute(runCtx, spec)
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		errMsg := err.Error()
		status := model.StatusFailed
		if runCtx.Err() != nil {
			status = model.StatusCancelled
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				errMsg = fmt.Sprintf("record timed out after %s", e.timeout)
			}
		}
		e.finish(r, status, &start, errMsg)
		return fmt.Errorf("execute %s: %w", r.Module, err)
	}

	dur := durationMS
	if result.DurationMS > 0 {
		dur = result.DurationMS
	}
	now := time.Now().UTC()
	exitCode := result.ExitCode

	r.Status = model.StatusCompleted
	r.Output = result.Output
	r.ExitCode = &exitCode
	r.Error = result.Error
	r.DurationMS = &dur
	r.FinishedAt = &now

	if err := e.store.UpdateRecord(context.WithoutCancel(ctx), r); err != nil {
		e.logger.Error("failed to update completed record", "record_id", r.ID, "error", err)
	}
	return nil
}

// RemoveRecord deletes a record and its output lines from the store and
// releases any backend resources still held for it.
func (e *Engine) RemoveRecord(ctx context.Context, id string) error {
	e.broker.Close(id)

	r, err := e.store.GetRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("get record: %w", err)
	}
	if b, err := e.registry.Resolve(r.Module); err == nil {
		if err := b.Cleanup(ctx, id); err != nil {
			e.logger.Warn("backend cleanup failed", "record_id", id, "error", err)
		}
	}

	if err := e.store.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	e.broker.Forget(id)
	e.logger.Debug("execution record removed", "record_id", id)
	return nil
}

// finishFailed marks a record as failed with the given error message.
// startedAt may be nil if execution never started.
func (e *Engine) finishFailed(r *model.ExecutionRecord, startedAt *time.Time, errMsg string) {
	e.finish(r, model.StatusFailed, startedAt, errMsg)
}

func (e *Engine) finish(r *model.ExecutionRecord, status string, startedAt *time.Time, errMsg string) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(time.Since(*startedAt).Milliseconds())
	}

	r.Status = status
	r.Error = errMsg
	r.DurationMS = &durationMS
	r.StartedAt = startedAt
	r.FinishedAt = &now

	if err := e.store.UpdateRecord(context.Background(), r); err != nil {
		e.logger.Error("failed to update failed record", "record_id", r.ID, "error", err)
	}
}
