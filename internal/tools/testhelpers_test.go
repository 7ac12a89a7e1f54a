package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testDataset(t *testing.T) *Dataset {
	t.Helper()
	ds, err := DefaultDataset()
	if err != nil {
		t.Fatalf("DefaultDataset: %v", err)
	}
	return ds
}

// execute runs tool with params and decodes the output into out.
func execute(t *testing.T, tool Tool, params string, out any) {
	t.Helper()
	raw, err := tool.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("%s.Execute(%s): %v", tool.Name(), params, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshal %s output: %v", tool.Name(), err)
	}
}
