package tubetree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/seantiz/tubetree/internal/model"
)

// ModuleName is the execution-engine module that performs the conversion.
const ModuleName = "TubesToTree"

// Parameter names understood by the TubesToTree module.
const (
	ParamInputFile         = "inputTREFile"
	ParamOutputFile        = "outputTREFile"
	ParamMaxDistanceRatio  = "maxTubeDistanceToRadiusRatio"
	ParamMaxContinuityErr  = "maxContinuityAngleError"
	ParamRemoveOrphanTubes = "removeOrphanTubes"
	ParamRootTubeIDList    = "rootTubeIdList"
)

// Executor runs command-line modules through transient execution records.
type Executor interface {
	CreateRecord(ctx context.Context, module string) (*model.ExecutionRecord, error)
	ApplyAndWait(ctx context.Context, r *model.ExecutionRecord) error
	RemoveRecord(ctx context.Context, id string) error
}

// Persister moves spatial objects between nodes and .tre files.
type Persister interface {
	SaveSpatialObject(ctx context.Context, path string, node *model.SpatialObjectNode) error
	LoadSpatialObject(ctx context.Context, node *model.SpatialObjectNode, path string) error
	RenameNode(ctx context.Context, node *model.SpatialObjectNode, name string) error
}

// Params are the tolerances and options of one conversion.
type Params struct {
	MaxTubeDistanceToRadiusRatio float64
	MaxContinuityAngleError      float64
	RemoveOrphanTubes            bool
	RootTubeIDList               string

	// OutputName names the output node. When empty the output node takes the
	// input node's name.
	OutputName string
}

// Logic orchestrates tubes-to-tree conversions.
type Logic struct {
	tempDir string
	logger  *slog.Logger

	mu        sync.RWMutex
	executor  Executor
	persister Persister
	keepTemp  bool
}

// NewLogic creates a conversion orchestrator. Either collaborator may be nil
// and set later; Apply fails until both are present. An empty tempDir selects
// os.TempDir().
func NewLogic(executor Executor, persister Persister, tempDir string, logger *slog.Logger) *Logic {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Logic{
		tempDir:   tempDir,
		logger:    logger,
		executor:  executor,
		persister: persister,
	}
}

// SetExecutor replaces the execution engine.
func (l *Logic) SetExecutor(e Executor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executor = e
}

// Executor returns the configured execution engine, or nil.
func (l *Logic) Executor() Executor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.executor
}

// SetPersister replaces the spatial-object persister.
func (l *Logic) SetPersister(p Persister) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.persister = p
}

// Persister returns the configured spatial-object persister, or nil.
func (l *Logic) Persister() Persister {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.persister
}

// SetKeepTempFiles leaves the temporary .tre files in place after each
// conversion when keep is true.
func (l *Logic) SetKeepTempFiles(keep bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keepTemp = keep
}

// TempDir returns the directory temporary .tre files are written to.
func (l *Logic) TempDir() string {
	return l.tempDir
}

// Apply converts the tubes of in into a tree and stores the result in out.
// It blocks until the module exits or ctx is done. The execution record it
// creates is removed on every return path.
func (l *Logic) Apply(ctx context.Context, in, out *model.SpatialObjectNode, p Params) error {
	if in == nil || out == nil {
		return l.reject(ErrNilNode)
	}

	l.mu.RLock()
	executor, persister, keepTemp := l.executor, l.persister, l.keepTemp
	l.mu.RUnlock()

	if executor == nil {
		return l.reject(ErrNoExecutor)
	}
	if persister == nil {
		return l.reject(ErrNoPersister)
	}

	displayName := p.OutputName
	if displayName == "" {
		displayName = in.Name
	}

	start := time.Now()
	defer func() { conversionDuration.Observe(time.Since(start).Seconds()) }()

	rec, err := executor.CreateRecord(ctx, ModuleName)
	if err != nil {
		return l.fail(resultCreateRecord, in, fmt.Errorf("%w: %w", ErrCreateRecord, err))
	}
	defer l.removeRecord(ctx, executor, rec.ID)

	log := l.logger.With("record_id", rec.ID, "input_node_id", in.ID, "output_node_id", out.ID)

	inPath := l.TempFileName(in.ID)
	outPath := l.TempFileName(out.ID)
	if !keepTemp {
		defer removeTempFiles(log, inPath, outPath)
	}

	if err := persister.SaveSpatialObject(ctx, inPath, in); err != nil {
		return l.fail(resultSaveInput, in, fmt.Errorf("%w: %w", ErrSaveInput, err))
	}

	rec.SetString(ParamInputFile, inPath)
	rec.SetString(ParamOutputFile, outPath)
	rec.SetDouble(ParamMaxDistanceRatio, p.MaxTubeDistanceToRadiusRatio)
	rec.SetDouble(ParamMaxContinuityErr, p.MaxContinuityAngleError)
	rec.SetBool(ParamRemoveOrphanTubes, p.RemoveOrphanTubes)
	rec.SetString(ParamRootTubeIDList, p.RootTubeIDList)

	log.Info("conversion starting", "input_file", inPath, "output_file", outPath)

	if err := executor.ApplyAndWait(ctx, rec); err != nil {
		return l.fail(resultExecute, in, fmt.Errorf("%w: %w", ErrExecute, err))
	}
	if rec.ExitCode != nil && *rec.ExitCode != 0 {
		err := fmt.Errorf("%w: %s exited with code %d", ErrConversionFailed, ModuleName, *rec.ExitCode)
		return l.fail(resultConversionFailed, in, err)
	}

	if err := persister.LoadSpatialObject(ctx, out, outPath); err != nil {
		return l.fail(resultLoadOutput, in, fmt.Errorf("%w: %w", ErrLoadOutput, err))
	}
	if err := persister.RenameNode(ctx, out, displayName); err != nil {
		return l.fail(resultLoadOutput, in, fmt.Errorf("%w: rename: %w", ErrLoadOutput, err))
	}

	conversionsTotal.WithLabelValues(resultSuccess).Inc()
	log.Info("conversion completed",
		"output_name", out.Name,
		"tubes", len(out.Tubes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// reject reports a call that failed validation. Nothing was created.
func (l *Logic) reject(err error) error {
	conversionsTotal.WithLabelValues(resultInvalid).Inc()
	l.logger.Error("conversion rejected", "error", err)
	return err
}

func (l *Logic) fail(result string, in *model.SpatialObjectNode, err error) error {
	conversionsTotal.WithLabelValues(result).Inc()
	l.logger.Error("conversion failed", "input_node_id", in.ID, "error", err)
	return err
}

// removeRecord runs even when ctx has been cancelled so that an aborted
// conversion does not leave its record behind.
func (l *Logic) removeRecord(ctx context.Context, executor Executor, id string) {
	if err := executor.RemoveRecord(context.WithoutCancel(ctx), id); err != nil {
		l.logger.Error("failed to remove execution record", "record_id", id, "error", err)
	}
}

func removeTempFiles(log *slog.Logger, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("failed to remove temp file", "path", p, "error", err)
		}
	}
}
