package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "tubetree.db"
	defaultLogLevel      = "info"
	defaultToolPath      = "TubesToTree"
	defaultMaxConcurrent = 4

	// EnvPrefix is stripped from environment variables before they are
	// matched against config keys.
	EnvPrefix = "TUBETREE_"
	// EnvConfigFile names the optional YAML config file.
	EnvConfigFile = EnvPrefix + "CONFIG"
)

// Config holds application configuration.
type Config struct {
	ListenAddr    string        `koanf:"listen_addr"`
	DBPath        string        `koanf:"db_path"`
	LogLevelName  string        `koanf:"log_level"`
	TempDir       string        `koanf:"temp_dir"`
	ToolPath      string        `koanf:"tool_path"`
	ToolTimeout   time.Duration `koanf:"tool_timeout"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	KeepTempFiles bool          `koanf:"keep_temp_files"`

	LogLevel slog.Level `koanf:"-"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty or the file does not exist), then environment
// variables prefixed with TUBETREE_.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevelName:  defaultLogLevel,
		ToolPath:      defaultToolPath,
		MaxConcurrent: defaultMaxConcurrent,
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// Empty variables are skipped so that an exported but blank value does
	// not erase a default.
	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("tool_timeout must not be negative, got %s", c.ToolTimeout)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
