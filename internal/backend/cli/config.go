package cli

import "time"

// DefaultMaxConcurrent is the default number of module processes allowed to
// run at the same time.
const DefaultMaxConcurrent = 4

// Config holds configuration for the command-line backend.
type Config struct {
	// Executable is the path to the module binary.
	Executable string

	// Module describes the argument layout of the binary.
	Module ModuleDescriptor

	// Timeout bounds a single run. Zero means no limit beyond the caller's context.
	Timeout time.Duration

	// MaxConcurrent caps the number of simultaneous runs.
	MaxConcurrent int

	// WorkDir is the working directory of the process; empty inherits ours.
	WorkDir string
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Module.Name == "" {
		c.Module = TubesToTree
	}
	return c
}
