package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists filled trades as append-only events.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByAlgorithm(ctx context.Context, algorithmID string, opts ListOpts) ([]Trade, error)
}

// OrderStore persists orders, including rejected ones so that every
// no-trade outcome remains visible.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	ListRejected(ctx context.Context, algorithmID string, opts ListOpts) ([]Order, error)
}

// MetricStore persists performance metric snapshots.
type MetricStore interface {
	Insert(ctx context.Context, m PerformanceMetricSnapshot) error
	Latest(ctx context.Context, algorithmID string) (PerformanceMetricSnapshot, error)
	ListByAlgorithm(ctx context.Context, algorithmID string, opts ListOpts) ([]PerformanceMetricSnapshot, error)
}

// DescriptorStore persists the algorithm pool for restart recovery and
// genealogy queries.
type DescriptorStore interface {
	Upsert(ctx context.Context, d AlgorithmDescriptor) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (AlgorithmDescriptor, error)
	ListByStatus(ctx context.Context, status AlgorithmStatus) ([]AlgorithmDescriptor, error)
}

// CycleStore persists evolution cycle records.
type CycleStore interface {
	Insert(ctx context.Context, rec EvolutionCycleRecord) error
	ListRecent(ctx context.Context, limit int) ([]EvolutionCycleRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Algorithm failures, skipped
// ticks, and aborted cycles surface here rather than as process faults.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
