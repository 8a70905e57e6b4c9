package jobs

import (
	"fmt"
	"time"

	"datapipe/console/internal/params"
)

// Type identifies one of the closed set of background job kinds.
type Type string

const (
	TypeInsertData  Type = "insert-data"
	TypeInsertTable Type = "insert-table"
	TypePipeline    Type = "pipeline"
)

// Types lists every known job type.
func Types() []Type {
	return []Type{TypeInsertData, TypeInsertTable, TypePipeline}
}

// ParseType validates a wire value against the closed job type set.
func ParseType(value string) (Type, error) {
	for _, t := range Types() {
		if string(t) == value {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown job type: %q", value)
}

// Job describes one submitted unit of work. Immutable once submitted.
type Job struct {
	ID           string        `json:"id"`
	Type         Type          `json:"type"`
	Params       params.Params `json:"params"`
	IgnoreResult bool          `json:"ignore_result,omitempty"`
	SubmittedAt  time.Time     `json:"submitted_at"`
}

// Signal is the completion broadcast for one finished job.
type Signal struct {
	Channel string
	JobID   string
}
