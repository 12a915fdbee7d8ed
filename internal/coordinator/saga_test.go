package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-checkout/internal/coordinator/sagalog"
)

type recordedStep struct {
	name    string
	execErr error
	compErr error
	calls   *[]string
}

func (s *recordedStep) Name() string { return s.name }

func (s *recordedStep) Execute(context.Context) error {
	*s.calls = append(*s.calls, "exec:"+s.name)
	return s.execErr
}

func (s *recordedStep) Compensate(context.Context) error {
	*s.calls = append(*s.calls, "comp:"+s.name)
	return s.compErr
}

type memoryLog struct {
	entries []*sagalog.SagaLog
	err     error
}

func (m *memoryLog) Save(_ context.Context, e *sagalog.SagaLog) error {
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memoryLog) statuses() []sagalog.Status {
	out := make([]sagalog.Status, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Status)
	}
	return out
}

func TestOrchestrator_AllStepsSucceed(t *testing.T) {
	var calls []string
	log := &memoryLog{}
	steps := []Step{
		&recordedStep{name: "a", calls: &calls},
		&recordedStep{name: "b", calls: &calls},
	}

	err := NewOrchestrator("o1", steps, log).WithPayload(`{"x":1}`).Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"exec:a", "exec:b"}, calls)
	assert.Equal(t, []sagalog.Status{
		sagalog.StatusStarted, sagalog.StatusStepDone, sagalog.StatusStepDone, sagalog.StatusCompleted,
	}, log.statuses())
	assert.Equal(t, `{"x":1}`, log.entries[0].Payload)
	assert.Equal(t, "o1", log.entries[0].SagaID)
}

func TestOrchestrator_FailureCompensatesInReverse(t *testing.T) {
	var calls []string
	log := &memoryLog{}
	boom := errors.New("boom")
	steps := []Step{
		&recordedStep{name: "a", calls: &calls},
		&recordedStep{name: "b", calls: &calls, compErr: errors.New("stuck")},
		&recordedStep{name: "c", calls: &calls, execErr: boom},
		&recordedStep{name: "d", calls: &calls},
	}

	err := NewOrchestrator("o1", steps, log).Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "c: boom")

	// A failing compensation does not stop the remaining ones.
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "comp:b", "comp:a"}, calls)

	statuses := log.statuses()
	assert.Equal(t, sagalog.StatusCompensating, statuses[len(statuses)-2])
	last := log.entries[len(log.entries)-1]
	assert.Equal(t, sagalog.StatusFailed, last.Status)
	assert.Equal(t, "c", last.CurrentStep)
	assert.Contains(t, last.ErrorMessages, "step c failed: boom")
	assert.Contains(t, last.ErrorMessages, "compensation of b failed: stuck")
}

func TestOrchestrator_LogFailuresAreNotFatal(t *testing.T) {
	var calls []string
	log := &memoryLog{err: errors.New("read-only database")}

	err := NewOrchestrator("o1", []Step{&recordedStep{name: "a", calls: &calls}}, log).Start(context.Background())
	require.NoError(t, err)
	assert.Len(t, log.entries, 3)
}

func TestOrchestrator_WithoutLog(t *testing.T) {
	var calls []string
	err := NewOrchestrator("o1", []Step{&recordedStep{name: "a", calls: &calls}}, nil).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"exec:a"}, calls)
}
