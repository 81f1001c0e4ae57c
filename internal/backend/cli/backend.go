package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/seantiz/tubetree/internal/backend"
)

// BackendName is the name reported in the backend capabilities.
const BackendName = "cli"

// killGracePeriod bounds how long Wait lingers for output after the process
// has been killed.
const killGracePeriod = 2 * time.Second

// Backend implements backend.Backend by running a local executable.
type Backend struct {
	cfg    Config
	logger *slog.Logger
	slots  chan struct{}

	mu     sync.Mutex
	active map[string]context.CancelFunc // recordID → cancel
}

// NewBackend creates a command-line backend.
func NewBackend(cfg Config, logger *slog.Logger) *Backend {
	cfg = cfg.withDefaults()
	return &Backend{
		cfg:    cfg,
		logger: logger,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
		active: make(map[string]context.CancelFunc),
	}
}

// Verify checks that the configured executable can be found.
func (b *Backend) Verify() error {
	if b.cfg.Executable == "" {
		return errors.New("no executable configured")
	}
	if _, err := exec.LookPath(b.cfg.Executable); err != nil {
		return fmt.Errorf("module executable: %w", err)
	}
	return nil
}

// Execute runs the module executable and waits for it to exit. A process that
// runs and exits non-zero is reported through CommandResult.ExitCode; errors are
// returned only when the process could not be run to completion.
func (b *Backend) Execute(ctx context.Context, spec backend.CommandSpec) (backend.CommandResult, error) {
	module := b.cfg.Module.Name

	args, err := b.cfg.Module.BuildArgs(spec.Params)
	if err != nil {
		runsTotal.WithLabelValues(module, statusFailed).Inc()
		return backend.CommandResult{}, err
	}

	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		runsTotal.WithLabelValues(module, statusCancelled).Inc()
		return backend.CommandResult{}, ctx.Err()
	}
	defer func() { <-b.slots }()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if b.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	b.mu.Lock()
	b.active[spec.RecordID] = cancel
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.active, spec.RecordID)
		b.mu.Unlock()
	}()

	cmd := exec.CommandContext(runCtx, b.cfg.Executable, args...)
	cmd.Dir = b.cfg.WorkDir
	cmd.WaitDelay = killGracePeriod

	// Stdout and stderr share one lock so LogWriter never runs concurrently.
	var emitMu sync.Mutex
	emit := func(line string) {
		if spec.LogWriter == nil {
			return
		}
		emitMu.Lock()
		defer emitMu.Unlock()
		spec.LogWriter(line)
	}
	stdout := newLineWriter(emit)
	stderr := newLineWriter(emit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	b.logger.Info("module starting",
		"record_id", spec.RecordID,
		"module", module,
		"executable", b.cfg.Executable,
		"args", args,
	)

	start := time.Now()
	activeRuns.Inc()
	waitErr := cmd.Run()
	activeRuns.Dec()
	duration := time.Since(start)
	runDuration.Observe(duration.Seconds())

	stdout.Flush()
	stderr.Flush()

	result := backend.CommandResult{
		Output:     append(stdout.Bytes(), stderr.Bytes()...),
		DurationMS: int(duration.Milliseconds()),
		LogLines:   append(stdout.Lines(), stderr.Lines()...),
	}

	if waitErr != nil {
		if runCtx.Err() != nil {
			runsTotal.WithLabelValues(module, statusCancelled).Inc()
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return result, fmt.Errorf("module %s timed out after %s", module, b.cfg.Timeout)
			}
			return result, fmt.Errorf("module %s cancelled: %w", module, runCtx.Err())
		}
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			runsTotal.WithLabelValues(module, statusFailed).Inc()
			return result, fmt.Errorf("run %s: %w", module, waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
		result.Error = waitErr.Error()
		runsTotal.WithLabelValues(module, statusNonZero).Inc()
	} else {
		runsTotal.WithLabelValues(module, statusCompleted).Inc()
	}

	b.logger.Info("module finished",
		"record_id", spec.RecordID,
		"module", module,
		"exit_code", result.ExitCode,
		"duration_ms", result.DurationMS,
	)
	return result, nil
}

// Capabilities reports what this backend supports.
func (b *Backend) Capabilities() backend.BackendCapabilities {
	return backend.BackendCapabilities{
		Name:             BackendName,
		SupportedModules: []string{b.cfg.Module.Name},
		Executable:       b.cfg.Executable,
		MaxConcurrency:   b.cfg.MaxConcurrent,
	}
}

// Cleanup kills the process running for recordID, if any.
func (b *Backend) Cleanup(_ context.Context, recordID string) error {
	b.mu.Lock()
	cancel, ok := b.active[recordID]
	b.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Shutdown kills every running process.
func (b *Backend) Shutdown(ctx context.Context) {
	b.mu.Lock()
	ids := make([]string, 0, len(b.active))
	for id := range b.active {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		if err := b.Cleanup(ctx, id); err != nil {
			b.logger.Error("shutdown cleanup failed", "record_id", id, "error", err)
		}
	}
}

// lineWriter is an io.Writer that keeps everything written to it and hands
// each complete line to emit.
type lineWriter struct {
	emit    func(string)
	all     bytes.Buffer
	partial []byte
	lines   []string
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.all.Write(p)
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.line(string(bytes.TrimRight(w.partial[:i], "\r")))
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing line that was not newline-terminated.
func (w *lineWriter) Flush() {
	if len(w.partial) > 0 {
		w.line(string(w.partial))
		w.partial = nil
	}
}

func (w *lineWriter) line(s string) {
	w.lines = append(w.lines, s)
	w.emit(s)
}

func (w *lineWriter) Bytes() []byte {
	return bytes.Clone(w.all.Bytes())
}

func (w *lineWriter) Lines() []string {
	return w.lines
}
