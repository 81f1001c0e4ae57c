// testserver starts a tubetree API server whose TubesToTree module is a stub,
// for E2E testing without the real tool installed.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/seantiz/tubetree/internal/api"
	"github.com/seantiz/tubetree/internal/backend"
	"github.com/seantiz/tubetree/internal/config"
	"github.com/seantiz/tubetree/internal/engine"
	"github.com/seantiz/tubetree/internal/spatial"
	"github.com/seantiz/tubetree/internal/store"
	"github.com/seantiz/tubetree/internal/tubetree"
)

// stubBackend copies the input .tre file to the output path, which is enough
// for the conversion round trip to be observed end to end.
type stubBackend struct {
	delay    time.Duration
	logLines []string
}

func (s *stubBackend) Execute(ctx context.Context, spec backend.CommandSpec) (backend.CommandResult, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return backend.CommandResult{}, ctx.Err()
	}

	params := make(map[string]string, len(spec.Params))
	for _, p := range spec.Params {
		params[p.Name] = p.Value
	}
	if spec.LogWriter != nil {
		for _, line := range s.logLines {
			spec.LogWriter(line)
		}
	}

	data, err := os.ReadFile(params[tubetree.ParamInputFile])
	if err != nil {
		msg := fmt.Sprintf("read input: %v", err)
		return backend.CommandResult{ExitCode: 1, Output: []byte(msg), Error: msg}, nil
	}
	if err := os.WriteFile(params[tubetree.ParamOutputFile], data, 0o644); err != nil {
		msg := fmt.Sprintf("write output: %v", err)
		return backend.CommandResult{ExitCode: 1, Output: []byte(msg), Error: msg}, nil
	}
	return backend.CommandResult{Output: []byte("tree written")}, nil
}

func (s *stubBackend) Capabilities() backend.BackendCapabilities {
	return backend.BackendCapabilities{
		Name:             "stub",
		SupportedModules: []string{tubetree.ModuleName},
		MaxConcurrency:   10,
	}
}

func (s *stubBackend) Cleanup(_ context.Context, _ string) error { return nil }

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg := backend.NewRegistry()
	reg.Register(tubetree.ModuleName, &stubBackend{
		delay:    200 * time.Millisecond,
		logLines: []string{"[stub] reading tubes", "[stub] linking tubes", "[stub] writing tree"},
	})

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)
	eng := engine.NewEngine(db, reg, logger)
	objects := spatial.NewLogic(db, logger)
	converter := tubetree.NewLogic(eng, objects, cfg.TempDir, logger)
	srv := api.NewServer(cfg.ListenAddr, db, reg, eng, objects, converter, logger)

	logger.Info("testserver: starting", "addr", cfg.ListenAddr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
