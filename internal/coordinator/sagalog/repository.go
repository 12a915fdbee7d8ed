package sagalog

import "context"

// Repository persists saga log entries. Save appends; rows are never updated.
type Repository interface {
	Save(ctx context.Context, entry *SagaLog) error
}

// Reader exposes the recorded history of a saga, oldest entry first. A saga
// that never ran has no entries.
type Reader interface {
	Entries(ctx context.Context, sagaID string) ([]*SagaLog, error)
}
