package jobs

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseType(t *testing.T) {
	for _, known := range Types() {
		parsed, err := ParseType(string(known))
		if err != nil {
			t.Errorf("ParseType(%q) error = %v", known, err)
		}
		if parsed != known {
			t.Errorf("ParseType(%q) = %q, want %q", known, parsed, known)
		}
	}
}

func TestParseTypeRejectsUnknown(t *testing.T) {
	for _, value := range []string{"", "insert", "INSERT-DATA", "pipeline "} {
		if _, err := ParseType(value); err == nil {
			t.Errorf("ParseType(%q) error = nil, want error", value)
		}
	}
}

func TestJobRoundTrip(t *testing.T) {
	job := Job{
		ID:          "abc",
		Type:        TypePipeline,
		SubmittedAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Job
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.ID != job.ID || decoded.Type != job.Type || !decoded.SubmittedAt.Equal(job.SubmittedAt) {
		t.Errorf("round trip = %+v, want %+v", decoded, job)
	}
}
