package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vaultline/suisync/internal/domain"
)

// TradeArchiveStore provides the read access the archiver needs: it only
// requires the time-ranged query, not the full trade store surface.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// defaultMultipartThreshold is the serialised payload size past which the
// archive uploads in parts instead of a single PutObject.
const defaultMultipartThreshold = 16 * 1024 * 1024

// ArchiveImpl implements domain.Archiver by querying the trade store for old
// rows, serialising them to JSONL, and uploading the result to S3.
//
// Deletion of archived rows from the primary store is intentionally NOT
// performed here; that is a separate, explicit step to run after the archive
// has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	trades TradeArchiveStore

	multipartThreshold int
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:             writer,
		trades:             trades,
		multipartThreshold: defaultMultipartThreshold,
	}
}

// ArchiveTrades queries all trades before the cutoff, serialises them to
// JSONL, and uploads the file at archive/trades/YYYY-MM.jsonl. It returns
// the number of archived records.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	const contentType = "application/x-ndjson"
	if len(buf) >= a.multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), contentType, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	return int64(len(trades)), nil
}

// archivePath builds the object key for an archive file, grouped by the
// cutoff month.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// marshalJSONL serialises a slice of records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
