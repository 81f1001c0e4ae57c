package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

type sseEvent struct {
	Type string
	Data string
}

// readSSEEvents reads all SSE events from the response body until EOF.
func readSSEEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	scanner := bufio.NewScanner(resp.Body)
	var events []sseEvent
	var currentType string
	var currentData []string
	for scanner.Scan() {
		line := scanner.Text()
		if et, ok := strings.CutPrefix(line, "event: "); ok {
			currentType = et
		} else if data, ok := strings.CutPrefix(line, "data: "); ok {
			currentData = append(currentData, data)
		} else if line == "" && len(currentData) > 0 {
			events = append(events, sseEvent{Type: currentType, Data: strings.Join(currentData, "\n")})
			currentType = ""
			currentData = nil
		}
	}
	if len(currentData) > 0 {
		events = append(events, sseEvent{Type: currentType, Data: strings.Join(currentData, "\n")})
	}
	return events
}

// waitForRecord polls the record list until a record appears.
func (sp *serverProc) waitForRecord(t *testing.T, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var list struct {
			Records []struct {
				ID string `json:"id"`
			} `json:"records"`
		}
		sp.getJSON(t, "/v1/records", &list)
		if len(list.Records) > 0 {
			return list.Records[0].ID
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no execution record appeared within %v", timeout)
	return ""
}

func TestStubServerStreamsConversionLogs(t *testing.T) {
	sp := startServer(t, getBinary(t, "testserver"), "")

	in := sp.importNode(t, "portal")

	type result struct {
		code int
		body map[string]any
	}
	done := make(chan result, 1)
	go func() {
		body := fmt.Sprintf(`{"input_node_id":%q,"output_name":"portal tree"}`, in["id"])
		resp, err := http.Post(sp.url+"/v1/conversions", "application/json", strings.NewReader(body))
		if err != nil {
			done <- result{body: map[string]any{"error": err.Error()}}
			return
		}
		defer resp.Body.Close()
		var out map[string]any
		json.NewDecoder(resp.Body).Decode(&out)
		done <- result{resp.StatusCode, out}
	}()

	id := sp.waitForRecord(t, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", sp.url+"/v1/records/"+id+"/logs", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET logs: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := readSSEEvents(t, resp)
	var lines []string
	for _, e := range events {
		if e.Type == "" {
			lines = append(lines, e.Data)
		}
	}
	want := []string{"[stub] reading tubes", "[stub] linking tubes", "[stub] writing tree"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("streamed lines = %v, want %v", lines, want)
	}
	if len(events) == 0 || events[len(events)-1].Type != "done" {
		t.Errorf("last event = %+v, want done", events)
	}

	select {
	case r := <-done:
		if r.code != http.StatusOK {
			t.Fatalf("conversion status = %d: %v", r.code, r.body)
		}
		output, _ := r.body["output"].(map[string]any)
		if output["name"] != "portal tree" {
			t.Errorf("output name = %v, want portal tree", output["name"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("conversion did not return")
	}

	// The record is transient.
	resp2, err := http.Get(sp.url + "/v1/records/" + id)
	if err != nil {
		t.Fatalf("GET record: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("record status after conversion = %d, want 404", resp2.StatusCode)
	}
}

func TestStubServerExportsConvertedNode(t *testing.T) {
	sp := startServer(t, getBinary(t, "testserver"), "")

	in := sp.importNode(t, "portal")
	code, out := sp.convert(t, fmt.Sprintf(`{"input_node_id":%q}`, in["id"]))
	if code != http.StatusOK {
		t.Fatalf("conversion status = %d: %v", code, out)
	}
	output, _ := out["output"].(map[string]any)
	outID, _ := output["id"].(string)

	resp, err := http.Get(sp.url + "/v1/nodes/" + outID + "/tre")
	if err != nil {
		t.Fatalf("GET tre: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	scanner := bufio.NewScanner(resp.Body)
	tubes := 0
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "ObjectType = Tube" {
			tubes++
		}
	}
	if tubes != 2 {
		t.Errorf("exported tubes = %d, want 2", tubes)
	}

	var nodes map[string]any
	sp.getJSON(t, "/v1/nodes", &nodes)
	if nodes["total"] != float64(2) {
		t.Errorf("nodes total = %v, want 2", nodes["total"])
	}
}
