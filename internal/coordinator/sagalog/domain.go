// Package sagalog is the append-only audit trail of saga executions. Each
// row is one transition, tagged with the trace it happened in, so a failed
// checkout can be followed from the log straight to its distributed trace.
package sagalog

import "time"

// Status represents the lifecycle state of a saga execution.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// SagaLog is a single row in the saga_logs table.
type SagaLog struct {
	// SagaID is the order id of the checkout being built.
	SagaID      string
	Status      Status
	CurrentStep string

	// Payload is the JSON input, stored on the STARTED row only.
	Payload string

	// ErrorMessages is a JSON array of failure details.
	ErrorMessages string

	TraceID   string
	SpanID    string
	UpdatedAt time.Time
}
