package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/evoquant/evobot/internal/domain"
)

// Archiver implements domain.LedgerArchiver by serializing a retired
// algorithm's ledger to JSON and uploading it to object storage. Archives
// are immutable once written; re-archiving the same algorithm at the same
// retirement instant overwrites with identical content.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	logger *slog.Logger
}

// NewArchiver creates an Archiver storing objects under the given key
// prefix, e.g. "ledgers".
func NewArchiver(writer domain.BlobWriter, prefix string, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = "ledgers"
	}
	return &Archiver{
		writer: writer,
		prefix: prefix,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// archiveKey builds the object key for one archive:
// {prefix}/{date}/{algorithmID}.json
func (a *Archiver) archiveKey(arch domain.LedgerArchive) string {
	return fmt.Sprintf("%s/%s/%s.json",
		a.prefix, arch.RetiredAt.UTC().Format("2006-01-02"), arch.AlgorithmID)
}

// Archive uploads the full ledger archive as one JSON object.
func (a *Archiver) Archive(ctx context.Context, arch domain.LedgerArchive) error {
	payload, err := json.MarshalIndent(arch, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal archive %s: %w", arch.AlgorithmID, err)
	}

	key := a.archiveKey(arch)
	if err := a.writer.Put(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive ledger %s: %w", arch.AlgorithmID, err)
	}

	a.logger.Info("ledger archived",
		slog.String("algorithm_id", arch.AlgorithmID),
		slog.String("key", key),
		slog.Int("trades", len(arch.Trades)),
	)
	return nil
}

// Compile-time interface check.
var _ domain.LedgerArchiver = (*Archiver)(nil)
