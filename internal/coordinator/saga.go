// Package coordinator runs a unit of work as ordered steps, each paired
// with a compensation that undoes it if a later step fails.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront-checkout/internal/coordinator/sagalog"
)

// Step represents a single unit of work in the Saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Orchestrator manages the execution of a collection of Steps and records
// every transition in the saga log when one is configured.
type Orchestrator struct {
	sagaID  string
	steps   []Step
	log     sagalog.Repository
	payload string
}

// NewOrchestrator builds an orchestrator. repo may be nil, in which case
// transitions are only written to the process log.
func NewOrchestrator(sagaID string, steps []Step, repo sagalog.Repository) *Orchestrator {
	return &Orchestrator{sagaID: sagaID, steps: steps, log: repo}
}

// WithPayload attaches the serialized input stored on the STARTED entry.
func (o *Orchestrator) WithPayload(payload string) *Orchestrator {
	o.payload = payload
	return o
}

// Start runs the saga steps sequentially.
// If a step fails, it triggers the compensation of all previously successful
// steps in reverse order and returns the step's error.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.record(ctx, sagalog.StatusStarted, "", o.payload, nil)

	var successfulSteps []Step
	for _, step := range o.steps {
		slog.DebugContext(ctx, "executing saga step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Execute(ctx); err != nil {
			stepErr := fmt.Sprintf("step %s failed: %v", step.Name(), err)
			slog.WarnContext(ctx, "saga step failed, rolling back",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			o.record(ctx, sagalog.StatusCompensating, step.Name(), "", []string{stepErr})

			errs := append([]string{stepErr}, o.rollback(ctx, successfulSteps)...)
			o.record(ctx, sagalog.StatusFailed, step.Name(), "", errs)
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
		successfulSteps = append(successfulSteps, step)
		o.record(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
	}

	o.record(ctx, sagalog.StatusCompleted, "", "", nil)
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step) []string {
	var errs []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to compensate saga step",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("compensation of %s failed: %v", step.Name(), err))
		}
	}
	return errs
}

// record appends to the saga log; a failed write is logged, never fatal.
func (o *Orchestrator) record(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if o.log == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, payload, errs)
	if err := o.log.Save(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to write saga log", "saga_id", o.sagaID, "status", status, "error", err)
	}
}
