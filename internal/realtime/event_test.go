package realtime

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventJSONFieldNames(t *testing.T) {
	ev := Event{
		Type:       EventJobProgress,
		MatterID:   "matter-1",
		DocumentID: "doc-1",
		JobID:      "job-1",
		Stage:      "ocr",
		Progress:   42,
		Timestamp:  time.Unix(0, 0).UTC(),
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	for _, field := range []string{"type", "matter_id", "document_id", "job_id", "stage", "progress", "timestamp"} {
		if _, ok := m[field]; !ok {
			t.Errorf("expected field %q in marshaled event, got %v", field, m)
		}
	}
	if m["type"] != "job_progress" {
		t.Errorf("type = %v, want job_progress", m["type"])
	}
}

func TestEventOmitsEmptyOptionalFields(t *testing.T) {
	ev := Event{Type: EventConnected, MatterID: "matter-1", UserID: "user-1"}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	for _, field := range []string{"document_id", "job_id", "status", "stage", "progress"} {
		if _, ok := m[field]; ok {
			t.Errorf("expected field %q to be omitted when empty, got %v", field, m[field])
		}
	}
}
