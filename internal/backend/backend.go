package backend

import (
	"context"

	"github.com/seantiz/tubetree/internal/model"
)

// Backend is the interface that all command-line module runners implement.
type Backend interface {
	// Execute runs one invocation of a module and blocks until it exits.
	// The context carries cancellation and optional deadlines.
	Execute(ctx context.Context, spec CommandSpec) (CommandResult, error)

	// Capabilities reports which modules this backend can run.
	Capabilities() BackendCapabilities

	// Cleanup releases any resources associated with the given record.
	Cleanup(ctx context.Context, recordID string) error
}

// CommandSpec describes one module invocation.
type CommandSpec struct {
	RecordID string        `json:"record_id"`
	Module   string        `json:"module"`
	Params   []model.Param `json:"params"`

	// LogWriter is an optional callback invoked once per line of process output.
	LogWriter func(line string) `json:"-"`
}

// CommandResult holds what a backend observed about a finished invocation.
// A non-zero ExitCode is not an error from Execute: the process ran.
type CommandResult struct {
	ExitCode   int      `json:"exit_code"`
	Output     []byte   `json:"output"`
	Error      string   `json:"error"`
	DurationMS int      `json:"duration_ms"`
	LogLines   []string `json:"log_lines"`
}

// BackendCapabilities describes what a backend supports.
type BackendCapabilities struct {
	Name             string   `json:"name"`
	SupportedModules []string `json:"supported_modules"`
	Executable       string   `json:"executable,omitempty"`
	MaxConcurrency   int      `json:"max_concurrency"`
}
