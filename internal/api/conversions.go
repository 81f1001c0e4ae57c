package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/seantiz/tubetree/internal/model"
	"github.com/seantiz/tubetree/internal/store"
	"github.com/seantiz/tubetree/internal/tubetree"
)

// Tolerances used when a conversion request leaves them out.
const (
	defaultMaxTubeDistanceToRadiusRatio = 2.0
	defaultMaxContinuityAngleError      = 180.0
)

// conversionRequest is the JSON body for POST /v1/conversions.
type conversionRequest struct {
	InputNodeID                  string   `json:"input_node_id"`
	OutputNodeID                 string   `json:"output_node_id"`
	MaxTubeDistanceToRadiusRatio *float64 `json:"max_tube_distance_to_radius_ratio"`
	MaxContinuityAngleError      *float64 `json:"max_continuity_angle_error"`
	RemoveOrphanTubes            bool     `json:"remove_orphan_tubes"`
	RootTubeIDList               string   `json:"root_tube_id_list"`
	OutputName                   string   `json:"output_name"`
}

func (req conversionRequest) params() tubetree.Params {
	p := tubetree.Params{
		MaxTubeDistanceToRadiusRatio: defaultMaxTubeDistanceToRadiusRatio,
		MaxContinuityAngleError:      defaultMaxContinuityAngleError,
		RemoveOrphanTubes:            req.RemoveOrphanTubes,
		RootTubeIDList:               req.RootTubeIDList,
		OutputName:                   req.OutputName,
	}
	if req.MaxTubeDistanceToRadiusRatio != nil {
		p.MaxTubeDistanceToRadiusRatio = *req.MaxTubeDistanceToRadiusRatio
	}
	if req.MaxContinuityAngleError != nil {
		p.MaxContinuityAngleError = *req.MaxContinuityAngleError
	}
	return p
}

// conversionResponse is returned by a successful conversion.
type conversionResponse struct {
	Output     nodeSummary `json:"output"`
	DurationMS int64       `json:"duration_ms"`
}

// handleCreateConversion runs a tubes-to-tree conversion and blocks until the
// module has finished. Without an output_node_id a new node receives the result
// and is deleted again if the conversion fails.
func (s *Server) handleCreateConversion(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.InputNodeID == "" {
		s.writeError(w, http.StatusBadRequest, "input_node_id is required")
		return
	}
	p := req.params()
	if p.MaxTubeDistanceToRadiusRatio <= 0 {
		s.writeError(w, http.StatusBadRequest, "max_tube_distance_to_radius_ratio must be positive")
		return
	}
	if p.MaxContinuityAngleError < 0 {
		s.writeError(w, http.StatusBadRequest, "max_continuity_angle_error must not be negative")
		return
	}

	ctx := r.Context()
	in, ok := s.lookupNode(w, r, req.InputNodeID, "input")
	if !ok {
		return
	}

	var out *model.SpatialObjectNode
	created := req.OutputNodeID == ""
	if created {
		var err error
		out, err = s.objects.CreateNode(ctx, "", nil)
		if err != nil {
			s.logger.Error("create output node", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to create output node")
			return
		}
	} else {
		out, ok = s.lookupNode(w, r, req.OutputNodeID, "output")
		if !ok {
			return
		}
	}

	// The module can outlast the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for conversion", "error", err)
	}

	start := time.Now()
	err := s.converter.Apply(ctx, in, out, p)
	if err != nil {
		if created {
			if derr := s.store.DeleteNode(context.WithoutCancel(ctx), out.ID); derr != nil {
				s.logger.Error("delete output node after failed conversion", "node_id", out.ID, "error", derr)
			}
		}
		s.writeError(w, conversionStatus(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, conversionResponse{
		Output:     summarize(out),
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// lookupNode loads a node for a conversion and writes the error response when
// it cannot.
func (s *Server) lookupNode(w http.ResponseWriter, r *http.Request, id, role string) (*model.SpatialObjectNode, bool) {
	n, err := s.store.GetNode(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, role+" node not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get "+role+" node", "node_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get "+role+" node")
		return nil, false
	}
	return n, true
}

// conversionStatus maps a conversion error to an HTTP status. Failures of the
// module itself are reported as a bad gateway.
func conversionStatus(err error) int {
	switch {
	case errors.Is(err, tubetree.ErrNilNode):
		return http.StatusBadRequest
	case errors.Is(err, tubetree.ErrExecute),
		errors.Is(err, tubetree.ErrConversionFailed),
		errors.Is(err, tubetree.ErrLoadOutput):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
