package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// LedgerArchive is the archived, read-only form of a retired algorithm's
// ledger: full trade history plus the value series, nothing mutable.
type LedgerArchive struct {
	AlgorithmID string
	RetiredAt   time.Time
	Cash        float64
	Trades      []Trade
	ValueSeries []ValuePoint
}

// ValuePoint is one observation in a portfolio-value time series.
type ValuePoint struct {
	Timestamp time.Time
	Value     float64
}

// LedgerArchiver moves a retired algorithm's ledger to cold storage.
type LedgerArchiver interface {
	Archive(ctx context.Context, arch LedgerArchive) error
}
