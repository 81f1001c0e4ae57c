package tubetree

import "errors"

var (
	// ErrNilNode is returned when the input or output node is nil.
	ErrNilNode = errors.New("input and output nodes are required")
	// ErrNoExecutor is returned when no execution engine is configured.
	ErrNoExecutor = errors.New("execution engine not configured")
	// ErrNoPersister is returned when no spatial-object persister is configured.
	ErrNoPersister = errors.New("spatial object persister not configured")

	ErrCreateRecord = errors.New("create execution record")
	ErrSaveInput    = errors.New("save input spatial object")
	ErrExecute      = errors.New("execute module")
	ErrLoadOutput   = errors.New("load output spatial object")

	// ErrConversionFailed is returned when the module ran but exited non-zero.
	// The output file is not imported in that case.
	ErrConversionFailed = errors.New("conversion failed")
)
