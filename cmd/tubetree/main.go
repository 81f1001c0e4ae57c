package main

import (
	"context"
	"log"
	"os"

	"github.com/seantiz/tubetree/internal/api"
	"github.com/seantiz/tubetree/internal/backend"
	"github.com/seantiz/tubetree/internal/backend/cli"
	"github.com/seantiz/tubetree/internal/config"
	"github.com/seantiz/tubetree/internal/engine"
	"github.com/seantiz/tubetree/internal/spatial"
	"github.com/seantiz/tubetree/internal/store"
	"github.com/seantiz/tubetree/internal/tubetree"
)

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("tubetree: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"tool_path", cfg.ToolPath,
		"temp_dir", cfg.TempDir,
	)

	if cfg.TempDir != "" {
		if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
			log.Fatalf("failed to create temp dir: %v", err)
		}
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	tool := cli.NewBackend(cli.Config{
		Executable:    cfg.ToolPath,
		Module:        cli.TubesToTree,
		Timeout:       cfg.ToolTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
	}, logger)
	if err := tool.Verify(); err != nil {
		// Conversions fail until the tool is installed; the API stays usable.
		logger.Warn("tubes-to-tree tool unavailable", "error", err)
	}
	defer tool.Shutdown(context.Background())

	reg := backend.NewRegistry()
	reg.Register(tubetree.ModuleName, tool)

	eng := engine.NewEngine(db, reg, logger)
	objects := spatial.NewLogic(db, logger)
	converter := tubetree.NewLogic(eng, objects, cfg.TempDir, logger)
	converter.SetKeepTempFiles(cfg.KeepTempFiles)

	srv := api.NewServer(cfg.ListenAddr, db, reg, eng, objects, converter, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
