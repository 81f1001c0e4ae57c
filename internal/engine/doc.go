// Package engine provides the command-line module execution engine.
// It creates execution records in the store, resolves the backend for a
// record's module via the registry, runs it synchronously, and keeps the
// record and its output lines current while it runs.
package engine
