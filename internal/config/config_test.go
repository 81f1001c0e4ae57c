package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configEnvVars = []string{
	"TUBETREE_LISTEN_ADDR",
	"TUBETREE_DB_PATH",
	"TUBETREE_LOG_LEVEL",
	"TUBETREE_TEMP_DIR",
	"TUBETREE_TOOL_PATH",
	"TUBETREE_TOOL_TIMEOUT",
	"TUBETREE_MAX_CONCURRENT",
	"TUBETREE_KEEP_TEMP_FILES",
}

// clearEnv blanks every config variable for the duration of the test.
// Blank variables are ignored by Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tubetree.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.ToolPath != defaultToolPath {
		t.Errorf("ToolPath = %q, want %q", cfg.ToolPath, defaultToolPath)
	}
	if cfg.MaxConcurrent != defaultMaxConcurrent {
		t.Errorf("MaxConcurrent = %d, want %d", cfg.MaxConcurrent, defaultMaxConcurrent)
	}
	if cfg.ToolTimeout != 0 {
		t.Errorf("ToolTimeout = %v, want 0", cfg.ToolTimeout)
	}
	if cfg.KeepTempFiles {
		t.Error("KeepTempFiles = true, want false")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TUBETREE_LISTEN_ADDR", ":9090")
	t.Setenv("TUBETREE_DB_PATH", "/tmp/test.db")
	t.Setenv("TUBETREE_LOG_LEVEL", "debug")
	t.Setenv("TUBETREE_TOOL_TIMEOUT", "90s")
	t.Setenv("TUBETREE_KEEP_TEMP_FILES", "true")
	t.Setenv("TUBETREE_MAX_CONCURRENT", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ToolTimeout != 90*time.Second {
		t.Errorf("ToolTimeout = %v, want 90s", cfg.ToolTimeout)
	}
	if !cfg.KeepTempFiles {
		t.Error("KeepTempFiles = false, want true")
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", cfg.MaxConcurrent)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
listen_addr: ":7070"
temp_dir: /var/tmp/tubetree
tool_path: /opt/slicer/TubesToTree
tool_timeout: 5m
log_level: warn
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":7070")
	}
	if cfg.TempDir != "/var/tmp/tubetree" {
		t.Errorf("TempDir = %q", cfg.TempDir)
	}
	if cfg.ToolPath != "/opt/slicer/TubesToTree" {
		t.Errorf("ToolPath = %q", cfg.ToolPath)
	}
	if cfg.ToolTimeout != 5*time.Minute {
		t.Errorf("ToolTimeout = %v, want 5m", cfg.ToolTimeout)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want default %q", cfg.DBPath, defaultDBPath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "listen_addr: \":7070\"\ndb_path: file.db\n")
	t.Setenv("TUBETREE_LISTEN_ADDR", ":6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":6060" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":6060")
	}
	if cfg.DBPath != "file.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "file.db")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "listen_addr: [unterminated\n"},
		{"negative timeout", "tool_timeout: -1s\n"},
		{"zero concurrency", "max_concurrent: 0\n"},
		{"bad duration", "tool_timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeFile(t, tt.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
}
