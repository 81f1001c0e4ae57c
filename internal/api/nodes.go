package api

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/tubetree/internal/model"
	"github.com/seantiz/tubetree/internal/store"
	"github.com/seantiz/tubetree/internal/tre"
)

// maxUploadSize bounds the .tre body accepted by POST /v1/nodes.
const maxUploadSize = 64 << 20

// nodeSummary is the list representation of a node, without its points.
type nodeSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tubes     int       `json:"tubes"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listNodesResponse struct {
	Nodes  []nodeSummary `json:"nodes"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func summarize(n *model.SpatialObjectNode) nodeSummary {
	return nodeSummary{
		ID:        n.ID,
		Name:      n.Name,
		Tubes:     len(n.Tubes),
		Points:    n.NumPoints(),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

// handleImportNode stores the .tre request body as a new node named by the
// name query parameter.
func (s *Server) handleImportNode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	n, err := s.objects.ImportFile(r.Context(), r.URL.Query().Get("name"), r.Body)
	if errors.Is(err, tre.ErrMalformed) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge, "tre file too large")
		return
	}
	if err != nil {
		s.logger.Error("import node", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to import node")
		return
	}

	s.writeJSON(w, http.StatusCreated, summarize(n))
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	nodes, total, err := s.store.ListNodes(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list nodes", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}

	summaries := make([]nodeSummary, len(nodes))
	for i, n := range nodes {
		summaries[i] = summarize(n)
	}

	s.writeJSON(w, http.StatusOK, listNodesResponse{
		Nodes:  summaries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := s.store.GetNode(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "node not found")
		return
	}
	if err != nil {
		s.logger.Error("get node", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get node")
		return
	}

	s.writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleExportNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Render into a buffer so a failure can still produce a JSON error.
	var buf bytes.Buffer
	err := s.objects.ExportFile(r.Context(), id, &buf)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "node not found")
		return
	}
	if err != nil {
		s.logger.Error("export node", "node_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to export node")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Error("write tre response", "node_id", id, "error", err)
	}
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteNode(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "node not found")
			return
		}
		s.logger.Error("delete node", "node_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete node")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
