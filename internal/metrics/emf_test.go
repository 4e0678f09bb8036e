package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewEmitter_FunctionNameDimension(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "RunFunction")

	r := NewEmitter("TalPromptStudio", &bytes.Buffer{}).New()
	if r.dimensions["FunctionName"] != "RunFunction" {
		t.Errorf("expected FunctionName dimension RunFunction, got %s", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	var buf bytes.Buffer

	NewEmitter("TalPromptStudio", &buf).New().
		Dimension("Source", "model").
		Metric("GenerateLatencyMs", 1234.5, UnitMilliseconds).
		Metric("Attempts", 2, UnitCount).
		Property("runId", "abc-123").
		Flush()

	output := buf.String()
	if !strings.HasSuffix(output, "\n") || strings.Count(output, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", output)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "TalPromptStudio" {
		t.Errorf("expected namespace TalPromptStudio, got %v", cw["Namespace"])
	}
	defs := cw["Metrics"].([]interface{})
	if first := defs[0].(map[string]interface{})["Name"]; first != "Attempts" {
		t.Errorf("expected metric definitions sorted by name, first is %v", first)
	}

	if doc["Source"] != "model" {
		t.Errorf("expected Source=model, got %v", doc["Source"])
	}
	if doc["GenerateLatencyMs"] != 1234.5 {
		t.Errorf("expected GenerateLatencyMs=1234.5, got %v", doc["GenerateLatencyMs"])
	}
	if doc["Attempts"] != float64(2) {
		t.Errorf("expected Attempts=2, got %v", doc["Attempts"])
	}
	if doc["runId"] != "abc-123" {
		t.Errorf("expected runId=abc-123, got %v", doc["runId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewEmitter("Test", &buf).New().Dimension("Source", "mock").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := NewEmitter("Test", &bytes.Buffer{}).New().
		Dimension("Op", "test").
		Duration("Duration", 100*time.Millisecond).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) || rec.metrics["Duration"].Unit != UnitMilliseconds {
		t.Error("chaining Duration failed")
	}
	if rec.values["Calls"] != float64(1) || rec.metrics["Calls"].Unit != UnitCount {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}

func TestEmitter_ConcurrentFlush(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter("Test", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.New().Count("Runs").Flush()
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("interleaved output: %q", line)
		}
	}
}
