package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/tubetree/internal/tubetree"
)

func postConversion(t *testing.T, ts *httptest.Server, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(ts.URL+"/v1/conversions", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST /v1/conversions: %v", err)
	}
	return resp
}

func TestConversionCreatesOutputNode(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	in := importNode(t, ts, "liver")

	resp := postConversion(t, ts, map[string]any{
		"input_node_id":       in.ID,
		"remove_orphan_tubes": true,
		"root_tube_id_list":   "1",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body conversionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Output.ID == "" || body.Output.ID == in.ID {
		t.Errorf("output id = %q", body.Output.ID)
	}
	if body.Output.Name != "liver" {
		t.Errorf("output name = %q, want %q", body.Output.Name, "liver")
	}
	if body.Output.Tubes != 2 {
		t.Errorf("output tubes = %d, want 2", body.Output.Tubes)
	}

	stored, err := srv.store.GetNode(context.Background(), body.Output.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if stored.Name != "liver" || len(stored.Tubes) != 2 {
		t.Errorf("stored output = %q with %d tubes", stored.Name, len(stored.Tubes))
	}

	stats, _ := srv.store.GetSceneStats(context.Background())
	if stats.Records != 0 {
		t.Errorf("records left = %d, want 0", stats.Records)
	}
}

func TestConversionIntoExistingNode(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	in := importNode(t, ts, "liver")
	out, err := srv.objects.CreateNode(context.Background(), "target", nil)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	resp := postConversion(t, ts, map[string]any{
		"input_node_id":  in.ID,
		"output_node_id": out.ID,
		"output_name":    "liver tree",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	stored, _ := srv.store.GetNode(context.Background(), out.ID)
	if stored.Name != "liver tree" || len(stored.Tubes) != 2 {
		t.Errorf("stored output = %q with %d tubes", stored.Name, len(stored.Tubes))
	}
}

func TestConversionBadRequests(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	in := importNode(t, ts, "liver")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing input", map[string]any{}, http.StatusBadRequest},
		{"zero ratio", map[string]any{"input_node_id": in.ID, "max_tube_distance_to_radius_ratio": 0}, http.StatusBadRequest},
		{"negative angle", map[string]any{"input_node_id": in.ID, "max_continuity_angle_error": -1}, http.StatusBadRequest},
		{"unknown input", map[string]any{"input_node_id": "nope"}, http.StatusNotFound},
		{"unknown output", map[string]any{"input_node_id": in.ID, "output_node_id": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postConversion(t, ts, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp, err := http.Post(ts.URL+"/v1/conversions", "application/json", bytes.NewBufferString("not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d, want 400", resp.StatusCode)
	}
}

func TestConversionToolFailure(t *testing.T) {
	srv := newTestServerWithTool(t, &fakeTool{exitCode: 2})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	in := importNode(t, ts, "liver")

	resp := postConversion(t, ts, map[string]any{"input_node_id": in.ID})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}

	stats, _ := srv.store.GetSceneStats(context.Background())
	if stats.Nodes != 1 {
		t.Errorf("nodes = %d, want 1 (placeholder output removed)", stats.Nodes)
	}
	if stats.Records != 0 {
		t.Errorf("records left = %d, want 0", stats.Records)
	}
}

func TestConversionStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{tubetree.ErrNilNode, http.StatusBadRequest},
		{tubetree.ErrNoExecutor, http.StatusInternalServerError},
		{tubetree.ErrSaveInput, http.StatusInternalServerError},
		{tubetree.ErrExecute, http.StatusBadGateway},
		{tubetree.ErrConversionFailed, http.StatusBadGateway},
		{tubetree.ErrLoadOutput, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := conversionStatus(tt.err); got != tt.want {
			t.Errorf("conversionStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
