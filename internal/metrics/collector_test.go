package metrics

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCollectSnapshot(t *testing.T) {
	snapshot := Collect()

	raw, ok := snapshot["collected_at"].(string)
	if !ok {
		t.Fatalf("collected_at missing from snapshot: %v", snapshot)
	}
	if _, err := time.Parse(time.RFC3339, raw); err != nil {
		t.Fatalf("collected_at not RFC3339: %v", err)
	}

	// Heartbeats ship the snapshot as JSON; it must always encode.
	if _, err := json.Marshal(snapshot); err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
}
