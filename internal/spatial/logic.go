// Package spatial moves spatial object nodes between the scene store and
// MetaIO tube files.
package spatial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/tubetree/internal/model"
	"github.com/seantiz/tubetree/internal/store"
	"github.com/seantiz/tubetree/internal/tre"
	"github.com/seantiz/tubetree/internal/tubetree"
)

// Compile-time interface satisfaction check.
var _ tubetree.Persister = (*Logic)(nil)

// Logic reads and writes spatial object nodes as .tre files.
type Logic struct {
	store  store.Store
	logger *slog.Logger
}

// NewLogic creates spatial-object logic backed by s.
func NewLogic(s store.Store, logger *slog.Logger) *Logic {
	return &Logic{store: s, logger: logger}
}

// SaveSpatialObject writes the tubes of node to a .tre file at path,
// replacing any existing file.
func (l *Logic) SaveSpatialObject(_ context.Context, path string, node *model.SpatialObjectNode) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := tre.Write(f, node.Tubes); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	l.logger.Debug("spatial object saved", "node_id", node.ID, "path", path, "tubes", len(node.Tubes))
	return nil
}

// LoadSpatialObject replaces the tubes of node with the content of the .tre
// file at path. The node is written back to the store if it is stored there.
func (l *Logic) LoadSpatialObject(ctx context.Context, node *model.SpatialObjectNode, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scene, err := tre.Read(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	node.Tubes = scene.Tubes

	if err := l.persist(ctx, node); err != nil {
		return err
	}
	l.logger.Debug("spatial object loaded", "node_id", node.ID, "path", path, "tubes", len(node.Tubes))
	return nil
}

// RenameNode sets the name of node and writes it back to the store if it is
// stored there.
func (l *Logic) RenameNode(ctx context.Context, node *model.SpatialObjectNode, name string) error {
	node.Name = name
	return l.persist(ctx, node)
}

// CreateNode stores a new node with the given name and tubes.
func (l *Logic) CreateNode(ctx context.Context, name string, tubes []model.Tube) (*model.SpatialObjectNode, error) {
	now := time.Now().UTC()
	n := &model.SpatialObjectNode{
		ID:        model.NewID(),
		Name:      name,
		Tubes:     tubes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.CreateNode(ctx, n); err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	return n, nil
}

// ImportFile parses a .tre stream into a new stored node.
func (l *Logic) ImportFile(ctx context.Context, name string, r io.Reader) (*model.SpatialObjectNode, error) {
	scene, err := tre.Read(r)
	if err != nil {
		return nil, err
	}
	n, err := l.CreateNode(ctx, name, scene.Tubes)
	if err != nil {
		return nil, err
	}
	l.logger.Info("spatial object imported", "node_id", n.ID, "name", name, "tubes", len(n.Tubes))
	return n, nil
}

// ExportFile writes the stored node with the given ID as a .tre stream.
func (l *Logic) ExportFile(ctx context.Context, id string, w io.Writer) error {
	n, err := l.store.GetNode(ctx, id)
	if err != nil {
		return err
	}
	return tre.Write(w, n.Tubes)
}

func (l *Logic) persist(ctx context.Context, node *model.SpatialObjectNode) error {
	if node.ID == "" {
		return nil
	}
	err := l.store.UpdateNode(ctx, node)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update node %s: %w", node.ID, err)
	}
	return nil
}
