package store

import (
	"context"
	"errors"

	"github.com/seantiz/tubetree/internal/model"
)

// ErrInvalidTransition is returned when a record status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// SceneStats holds aggregate scene statistics.
type SceneStats struct {
	Nodes         int            `json:"nodes"`
	Tubes         int            `json:"tubes"`
	Records       int            `json:"records"`
	CountByStatus map[string]int `json:"count_by_status"`
}

// Store defines the persistence operations for scene nodes and execution records.
type Store interface {
	CreateNode(ctx context.Context, n *model.SpatialObjectNode) error
	GetNode(ctx context.Context, id string) (*model.SpatialObjectNode, error)
	ListNodes(ctx context.Context, limit, offset int) ([]*model.SpatialObjectNode, int, error)
	UpdateNode(ctx context.Context, n *model.SpatialObjectNode) error
	DeleteNode(ctx context.Context, id string) error

	CreateRecord(ctx context.Context, r *model.ExecutionRecord) error
	GetRecord(ctx context.Context, id string) (*model.ExecutionRecord, error)
	ListRecords(ctx context.Context, limit, offset int) ([]*model.ExecutionRecord, int, error)
	UpdateRecordParams(ctx context.Context, id string, params []model.Param) error
	UpdateRecordStatus(ctx context.Context, id, status string) error
	UpdateRecord(ctx context.Context, r *model.ExecutionRecord) error
	DeleteRecord(ctx context.Context, id string) error

	InsertLogLine(ctx context.Context, recordID string, seq int, line string) error
	GetLogLines(ctx context.Context, recordID string) ([]model.LogLine, error)

	GetSceneStats(ctx context.Context) (*SceneStats, error)
	Close() error
}
